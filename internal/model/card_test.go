package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStatus(t *testing.T) {
	for _, s := range []CardStatus{StatusFinished, StatusActive, StatusWaiting, StatusFailed} {
		assert.NoError(t, ValidateStatus(s), "status %s should be valid", s)
	}

	for _, s := range []CardStatus{"BOGUS", "", "active", "DONE"} {
		err := ValidateStatus(s)
		require.Error(t, err, "status %q should be rejected", s)
		assert.Contains(t, err.Error(), "invalid status")
	}
}

func TestCardIndexText(t *testing.T) {
	c := Card{Name: "Acme Fire Policy", Detail: "covers fire damage"}
	assert.Equal(t, "Acme Fire Policy\ncovers fire damage", c.IndexText())
}

func TestCardPatchValidate(t *testing.T) {
	assert.NoError(t, CardPatch{}.Validate())

	name := "renamed"
	assert.NoError(t, CardPatch{Name: &name}.Validate())

	good := StatusActive
	assert.NoError(t, CardPatch{Status: &good}.Validate())

	bad := CardStatus("NOPE")
	assert.Error(t, CardPatch{Status: &bad}.Validate())

	// Patches obey the same length bounds as creation.
	longName := strings.Repeat("x", MaxNameLen+1)
	assert.ErrorContains(t, CardPatch{Name: &longName}.Validate(), "exceeds maximum length")

	longDetail := strings.Repeat("x", MaxDetailLen+1)
	assert.ErrorContains(t, CardPatch{Detail: &longDetail}.Validate(), "exceeds maximum length")
}

func TestCardPatchIsZero(t *testing.T) {
	assert.True(t, CardPatch{}.IsZero())

	flag := true
	assert.False(t, CardPatch{TalebMade: &flag}.IsZero())
	assert.False(t, CardPatch{Metadata: map[string]any{}}.IsZero())
}

func TestCreateCardRequestValidate(t *testing.T) {
	valid := CreateCardRequest{
		Name:    "Acme Fire Policy",
		Detail:  "covers fire damage",
		Creator: "underwriter-1",
		Status:  StatusWaiting,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*CreateCardRequest)
		wantErr string
	}{
		{"missing name", func(r *CreateCardRequest) { r.Name = "" }, "name is required"},
		{"missing detail", func(r *CreateCardRequest) { r.Detail = "" }, "detail is required"},
		{"missing creator", func(r *CreateCardRequest) { r.Creator = "" }, "creator is required"},
		{"bad status", func(r *CreateCardRequest) { r.Status = "BOGUS" }, "invalid status"},
		{"oversized name", func(r *CreateCardRequest) { r.Name = strings.Repeat("x", MaxNameLen+1) }, "exceeds maximum length"},
		{"oversized detail", func(r *CreateCardRequest) { r.Detail = strings.Repeat("x", MaxDetailLen+1) }, "exceeds maximum length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSearchRequestValidate(t *testing.T) {
	assert.Error(t, SearchRequest{}.Validate(), "nil query list is rejected")
	assert.NoError(t, SearchRequest{Queries: []string{}}.Validate(), "empty list is legal")
	assert.NoError(t, SearchRequest{Queries: []string{"fire damage"}}.Validate())

	many := make([]string, MaxQueries+1)
	assert.Error(t, SearchRequest{Queries: many}.Validate())
}
