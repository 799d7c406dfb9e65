package salesforce

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ksteptoe/sfdump/internal/core/domain"
	"github.com/ksteptoe/sfdump/internal/core/ports/driven"
	"github.com/ksteptoe/sfdump/internal/logger"
)

// Ensure Client implements the interface.
var _ driven.FileSource = (*Client)(nil)

// dateLayout is the format of datetime fields in REST responses.
const dateLayout = "2006-01-02T15:04:05.000-0700"

const (
	contentVersionSOQL = "SELECT Id, ContentDocumentId, Title, FileExtension, ContentSize, CreatedDate, " +
		"FirstPublishLocationId, FirstPublishLocation.Type " +
		"FROM ContentVersion WHERE IsLatest = true"
	attachmentSOQL = "SELECT Id, ParentId, Parent.Type, Name, BodyLength, CreatedDate FROM Attachment"
	linkSOQL       = "SELECT Id, ContentDocumentId, LinkedEntityId, LinkedEntity.Type " +
		"FROM ContentDocumentLink WHERE ContentDocumentId IN (%s)"
)

type relation struct {
	Type string `json:"Type"`
}

type contentVersionRow struct {
	ID                string `json:"Id"`
	ContentDocumentID string `json:"ContentDocumentId"`
	Title             string `json:"Title"`
	FileExtension     string `json:"FileExtension"`
	ContentSize       int64  `json:"ContentSize"`
	CreatedDate       string `json:"CreatedDate"`

	FirstPublishLocationID string    `json:"FirstPublishLocationId"`
	FirstPublishLocation   *relation `json:"FirstPublishLocation"`
}

type attachmentRow struct {
	ID          string    `json:"Id"`
	ParentID    string    `json:"ParentId"`
	Parent      *relation `json:"Parent"`
	Name        string    `json:"Name"`
	BodyLength  int64     `json:"BodyLength"`
	CreatedDate string    `json:"CreatedDate"`
}

type linkRow struct {
	ID                string    `json:"Id"`
	ContentDocumentID string    `json:"ContentDocumentId"`
	LinkedEntityID    string    `json:"LinkedEntityId"`
	LinkedEntity      *relation `json:"LinkedEntity"`
}

// ListFiles returns every record of a kind matching filter.Where.
func (c *Client) ListFiles(ctx context.Context, kind domain.SourceKind, filter domain.ListFilter) ([]domain.FileRecord, error) {
	soql, err := listQuery(kind, filter)
	if err != nil {
		return nil, err
	}
	logger.Debug("salesforce: %s", soql)

	switch kind {
	case domain.KindModernDocument:
		rows, err := queryAll[contentVersionRow](ctx, c, soql)
		if err != nil {
			return nil, fmt.Errorf("list content versions: %w", err)
		}
		out := make([]domain.FileRecord, 0, len(rows))
		for _, r := range rows {
			rec := domain.FileRecord{
				ID:         r.ID,
				DocumentID: r.ContentDocumentID,
				Kind:       kind,
				ParentID:   r.FirstPublishLocationID,
				Title:      r.Title,
				Extension:  r.FileExtension,
				SizeBytes:  r.ContentSize,
				CreatedAt:  parseDate(r.CreatedDate),
			}
			if r.FirstPublishLocation != nil {
				rec.ParentType = r.FirstPublishLocation.Type
			}
			out = append(out, rec)
		}
		return out, nil

	default:
		rows, err := queryAll[attachmentRow](ctx, c, soql)
		if err != nil {
			return nil, fmt.Errorf("list attachments: %w", err)
		}
		out := make([]domain.FileRecord, 0, len(rows))
		for _, r := range rows {
			rec := domain.FileRecord{
				ID:        r.ID,
				Kind:      kind,
				ParentID:  r.ParentID,
				Title:     r.Name,
				Extension: strings.TrimPrefix(filepath.Ext(r.Name), "."),
				SizeBytes: r.BodyLength,
				CreatedAt: parseDate(r.CreatedDate),
			}
			if r.Parent != nil {
				rec.ParentType = r.Parent.Type
			}
			out = append(out, rec)
		}
		return out, nil
	}
}

// listQuery builds the SOQL listing for a kind.
func listQuery(kind domain.SourceKind, filter domain.ListFilter) (string, error) {
	where := strings.TrimSpace(filter.Where)
	switch kind {
	case domain.KindModernDocument:
		if where == "" {
			return contentVersionSOQL, nil
		}
		return contentVersionSOQL + " AND (" + where + ")", nil
	case domain.KindLegacyAttachment:
		if where == "" {
			return attachmentSOQL, nil
		}
		return attachmentSOQL + " WHERE (" + where + ")", nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
	}
}

// ListLinks returns the ContentDocumentLinks of the given documents.
func (c *Client) ListLinks(ctx context.Context, documentIDs []string) ([]domain.FileLink, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := queryAll[linkRow](ctx, c, fmt.Sprintf(linkSOQL, quoteList(documentIDs)))
	if err != nil {
		return nil, fmt.Errorf("list document links: %w", err)
	}

	out := make([]domain.FileLink, 0, len(rows))
	for _, r := range rows {
		link := domain.FileLink{
			ID:             r.ID,
			DocumentID:     r.ContentDocumentID,
			LinkedEntityID: r.LinkedEntityID,
		}
		if r.LinkedEntity != nil {
			link.LinkedEntityType = r.LinkedEntity.Type
		}
		out = append(out, link)
	}
	return out, nil
}

// QueryLabels returns labelField for each record of objectType in ids.
func (c *Client) QueryLabels(ctx context.Context, objectType, labelField string, ids []string) (map[string]string, error) {
	if !domain.IsAPIName(objectType) || !domain.IsAPIName(labelField) {
		return nil, fmt.Errorf("%w: %q.%q is not an object and field name", domain.ErrInvalidInput, objectType, labelField)
	}
	labels := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return labels, nil
	}

	soql := fmt.Sprintf("SELECT Id, %s FROM %s WHERE Id IN (%s)", labelField, objectType, quoteList(ids))
	rows, err := queryAll[map[string]any](ctx, c, soql)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", objectType, labelField, err)
	}

	for _, row := range rows {
		id, _ := row["Id"].(string)
		if id == "" {
			continue
		}
		switch v := row[labelField].(type) {
		case nil:
			labels[id] = ""
		case string:
			labels[id] = v
		default:
			labels[id] = fmt.Sprint(v)
		}
	}
	return labels, nil
}

// Fetch opens the binary body of a record.
func (c *Client) Fetch(ctx context.Context, rec domain.FileRecord) (io.ReadCloser, error) {
	var resource string
	switch rec.Kind {
	case domain.KindLegacyAttachment:
		resource = "sobjects/Attachment/" + url.PathEscape(rec.ID) + "/Body"
	case domain.KindModernDocument:
		resource = "sobjects/ContentVersion/" + url.PathEscape(rec.ID) + "/VersionData"
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, rec.Kind)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: record has no ID", domain.ErrInvalidInput)
	}

	resp, err := c.get(ctx, c.dataPath(resource))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rec.ID, err)
	}
	return resp.Body, nil
}

// quoteList renders ids as a SOQL string list.
func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return strings.Join(quoted, ", ")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
