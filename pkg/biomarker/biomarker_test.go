package biomarker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"EGFR", "EGFR"},
		{"egfr", "EGFR"},
		{"  alk ", "ALK"},
		{"PDL1", "PD-L1"},
		{"CD274", "PD-L1"},
		{"ERBB2", "HER2"},
		{"c-met", "MET"},
		{"NTRK1", "NTRK"},
		{"UNKNOWN9", "UNKNOWN9"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestMentions(t *testing.T) {
	terms := Mentions("PDL1")

	assert.Contains(t, terms, "pd-l1")
	assert.Contains(t, terms, "cd274")
	assert.Contains(t, terms, "pdl1")
}

func TestMentions_NoAliases(t *testing.T) {
	assert.Equal(t, []string{"kras"}, Mentions("KRAS"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("EGFR"))
	assert.NoError(t, Validate("pd-l1"))
	assert.NoError(t, Validate("P"))
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"internal space", "PD L1"},
		{"underscore", "PD_L1"},
		{"trailing hyphen", "EGFR-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			require.Error(t, err)
			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "biomarker", validationErr.Field)
		})
	}
}
