package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFields_Field(t *testing.T) {
	labels := DefaultLabelFields()

	assert.Equal(t, "CaseNumber", labels.Field("Case"))
	assert.Equal(t, "Subject", labels.Field("Task"))
	assert.Equal(t, "Title", labels.Field("ContentDocument"))
	assert.Equal(t, "Name", labels.Field("Opportunity"))
	assert.Equal(t, "Name", LabelFields(nil).Field("Account"))
}

func TestLabelFields_DefaultIsCopy(t *testing.T) {
	labels := DefaultLabelFields()
	labels["Case"] = "Subject"

	assert.Equal(t, "CaseNumber", DefaultLabelFields().Field("Case"))
}

func TestLabelFields_Merge(t *testing.T) {
	base := DefaultLabelFields()
	merged := base.Merge(map[string]string{"Invoice__c": "Invoice_Number__c", "Case": "Subject"})

	assert.Equal(t, "Invoice_Number__c", merged.Field("Invoice__c"))
	assert.Equal(t, "Subject", merged.Field("Case"))
	assert.Equal(t, "CaseNumber", base.Field("Case"), "merge must not mutate the receiver")
}

func TestLabelFields_Validate(t *testing.T) {
	require.NoError(t, DefaultLabelFields().Validate())
	require.NoError(t, LabelFields{"ns__Thing__c": "ns__Label__c"}.Validate())

	err := LabelFields{"Bad Type": "Name"}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = LabelFields{"Account": "Name; DROP"}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "Account")
}

func TestIsAPIName(t *testing.T) {
	assert.True(t, IsAPIName("Account"))
	assert.True(t, IsAPIName("My_Object__c"))
	assert.False(t, IsAPIName(""))
	assert.False(t, IsAPIName("1Account"))
	assert.False(t, IsAPIName("Parent.Name"))
}
