// Package biomarker provides normalization and validation of tumor biomarker
// symbols as they appear in patient profiles and trial eligibility text.
package biomarker

import (
	"regexp"
	"strings"

	"github.com/trial-match-server/internal/domain"
)

// Symbol patterns
var (
	// Standard marker symbol pattern (HUGO-style, plus PD-L1 style hyphens)
	standardPattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]*[A-Z0-9]$`)

	// Single letter symbols are rare but legal
	singleLetterPattern = regexp.MustCompile(`^[A-Z]$`)
)

// Common are the lung cancer markers scanned for in trial records.
var Common = []string{"EGFR", "ALK", "ROS1", "BRAF", "KRAS", "MET", "RET", "NTRK", "PD-L1"}

// aliases maps canonical symbols to the alternative names seen in registry
// text and lab reports.
var aliases = map[string][]string{
	"EGFR":  {"ERBB1", "HER1"},
	"PD-L1": {"PDL1", "CD274"},
	"HER2":  {"ERBB2", "NEU"},
	"MET":   {"C-MET"},
	"NTRK":  {"TRK", "NTRK1", "NTRK2", "NTRK3"},
}

// aliasToCanonical is the reverse lookup over aliases.
var aliasToCanonical = func() map[string]string {
	m := make(map[string]string)
	for canonical, names := range aliases {
		for _, name := range names {
			m[name] = canonical
		}
	}
	return m
}()

// Normalize returns the canonical form of a biomarker symbol: trimmed,
// uppercased and with known aliases mapped to their canonical name. Unknown
// symbols are returned cleaned but otherwise unchanged.
func Normalize(symbol string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical, ok := aliasToCanonical[cleaned]; ok {
		return canonical
	}
	return cleaned
}

// Mentions returns the lowercased search terms for a symbol: the canonical
// name plus every known alias. Intended for substring scans over free-text
// eligibility criteria.
func Mentions(symbol string) []string {
	canonical := Normalize(symbol)
	terms := []string{strings.ToLower(canonical)}
	for _, alias := range aliases[canonical] {
		terms = append(terms, strings.ToLower(alias))
	}
	return terms
}

// Validate checks that a biomarker symbol is plausibly formed. Lowercase
// input is accepted since profiles arrive from user-facing clients.
func Validate(symbol string) error {
	cleaned := strings.ToUpper(strings.TrimSpace(symbol))
	if cleaned == "" {
		return domain.NewValidationError("biomarker",
			"biomarker symbol must not be empty", symbol)
	}
	if !standardPattern.MatchString(cleaned) && !singleLetterPattern.MatchString(cleaned) {
		return domain.NewValidationError("biomarker",
			"biomarker symbol must contain only letters, numbers and hyphens", symbol)
	}
	return nil
}
