package domain

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultLabelField is the field that supplies a parent record's label
// when no override is configured.
const DefaultLabelField = "Name"

// IndexRow associates one downloaded file with one parent record.
// Rows are derived data and can be regenerated at any time.
type IndexRow struct {
	ParentType    string
	ParentID      string
	ParentLabel   string
	RecordID      string
	DocumentID    string
	LinkID        string
	FileSource    string
	FileName      string
	FileExtension string
	LocalPath     string
}

// FileID is the identifier users look files up by: the document for
// modern files, the attachment itself for legacy ones.
func (r IndexRow) FileID() string {
	if r.DocumentID != "" {
		return r.DocumentID
	}
	return r.RecordID
}

// LabelFields maps a parent object type to the field holding its
// human-readable label.
type LabelFields map[string]string

// builtinLabelFields covers standard objects that have no Name field.
var builtinLabelFields = LabelFields{
	"Case":            "CaseNumber",
	"ContentDocument": "Title",
	"EmailMessage":    "Subject",
	"Event":           "Subject",
	"Note":            "Title",
	"Task":            "Subject",
}

// apiName matches object and field API names, including custom (__c) and
// namespaced (ns__Obj__c) ones.
var apiName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// IsAPIName reports whether s is a valid object or field API name.
func IsAPIName(s string) bool {
	return apiName.MatchString(s)
}

// DefaultLabelFields returns a copy of the built-in overrides.
func DefaultLabelFields() LabelFields {
	out := make(LabelFields, len(builtinLabelFields))
	for k, v := range builtinLabelFields {
		out[k] = v
	}
	return out
}

// Merge returns a copy of l with overrides applied on top.
func (l LabelFields) Merge(overrides map[string]string) LabelFields {
	out := make(LabelFields, len(l)+len(overrides))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Field returns the label field for a parent type.
func (l LabelFields) Field(parentType string) string {
	if f, ok := l[parentType]; ok && f != "" {
		return f
	}
	return DefaultLabelField
}

// Validate checks every entry is a pair of API names.
func (l LabelFields) Validate() error {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !IsAPIName(k) {
			return fmt.Errorf("%w: label mapping has invalid object type %q", ErrInvalidInput, k)
		}
		if !IsAPIName(l[k]) {
			return fmt.Errorf("%w: label field %q for %s is not a field name", ErrInvalidInput, l[k], k)
		}
	}
	return nil
}
