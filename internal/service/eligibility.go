package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/pkg/biomarker"
)

// EligibilityEngine applies patient-specific eligibility rules that cannot be
// expressed as registry search parameters: biomarker requirements, treatment
// history and ECOG performance status. The rules are substring scans over the
// trial's free-text eligibility criteria, which approximates real criteria
// parsing; the known imprecisions are kept intentionally and documented on
// each criterion.
type EligibilityEngine struct {
	logger   *logrus.Logger
	criteria []*eligibilityCriterion
}

// CriterionResult describes the outcome of one eligibility criterion for one
// trial/profile pair.
type CriterionResult struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Reasoning string `json:"reasoning,omitempty"`
}

// eligibilityCriterion is an individual rule implementation.
type eligibilityCriterion struct {
	Code      string
	Name      string
	Evaluator func(trial *domain.TrialCandidate, profile *domain.PatientProfile) CriterionResult
}

// NewEligibilityEngine creates a new eligibility rule engine.
func NewEligibilityEngine(logger *logrus.Logger) *EligibilityEngine {
	engine := &EligibilityEngine{logger: logger}

	engine.addCriterion("BIOMARKER", "Biomarker status requirements", engine.evaluateBiomarkers)
	engine.addCriterion("TREATMENT_HISTORY", "Prior treatment requirements", engine.evaluateTreatmentHistory)
	engine.addCriterion("PERFORMANCE_STATUS", "ECOG performance status requirements", engine.evaluatePerformanceStatus)

	return engine
}

func (e *EligibilityEngine) addCriterion(code, name string, evaluator func(*domain.TrialCandidate, *domain.PatientProfile) CriterionResult) {
	e.criteria = append(e.criteria, &eligibilityCriterion{Code: code, Name: name, Evaluator: evaluator})
}

// Matches reports whether the trial is eligible for the patient. All criteria
// must pass.
func (e *EligibilityEngine) Matches(trial *domain.TrialCandidate, profile *domain.PatientProfile) bool {
	for _, criterion := range e.criteria {
		result := criterion.Evaluator(trial, profile)
		if !result.Passed {
			e.logger.WithFields(logrus.Fields{
				"nct_id":     trial.NCTID,
				"patient_id": profile.PatientID,
				"criterion":  criterion.Code,
				"reason":     result.Reasoning,
			}).Debug("Trial excluded by eligibility criterion")
			return false
		}
	}
	return true
}

// Evaluate runs every criterion and returns the per-criterion results. Unlike
// Matches it does not stop at the first failure, so the caller can explain a
// rejection fully.
func (e *EligibilityEngine) Evaluate(trial *domain.TrialCandidate, profile *domain.PatientProfile) []CriterionResult {
	results := make([]CriterionResult, 0, len(e.criteria))
	for _, criterion := range e.criteria {
		results = append(results, criterion.Evaluator(trial, profile))
	}
	return results
}

// Filter returns the candidates that pass all eligibility criteria, preserving
// input order.
func (e *EligibilityEngine) Filter(trials []domain.TrialCandidate, profile *domain.PatientProfile) []domain.TrialCandidate {
	filtered := make([]domain.TrialCandidate, 0, len(trials))
	for i := range trials {
		if e.Matches(&trials[i], profile) {
			filtered = append(filtered, trials[i])
		}
	}

	e.logger.WithFields(logrus.Fields{
		"patient_id": profile.PatientID,
		"candidates": len(trials),
		"matched":    len(filtered),
	}).Info("Applied eligibility filters")

	return filtered
}

// evaluateBiomarkers checks the patient's biomarker statuses against biomarker
// mentions in the criteria text. The "positive"/"negative" scan is text-global:
// either word appearing anywhere in the criteria triggers the rule for every
// mentioned biomarker, regardless of which clause it belongs to. Clause-scoped
// parsing would be more precise but would change which trials match; the
// coarser rule is kept on purpose.
func (e *EligibilityEngine) evaluateBiomarkers(trial *domain.TrialCandidate, profile *domain.PatientProfile) CriterionResult {
	result := CriterionResult{Code: "BIOMARKER", Name: "Biomarker status requirements", Passed: true}

	// Without biomarker data a mismatch cannot be proven.
	if len(profile.Biomarkers) == 0 {
		result.Reasoning = "no biomarker data on profile"
		return result
	}

	criteriaText := strings.ToLower(trial.EligibilityCriteria)

	for marker, positive := range profile.Biomarkers {
		// Alias-aware mention scan, so an ERBB2 clause matches a HER2
		// profile entry and vice versa.
		if !mentionsAny(criteriaText, biomarker.Mentions(marker)) {
			continue
		}

		if strings.Contains(criteriaText, "positive") && !positive {
			result.Passed = false
			result.Reasoning = fmt.Sprintf("trial requires %s positive, patient is negative", marker)
			return result
		}
		if strings.Contains(criteriaText, "negative") && positive {
			result.Passed = false
			result.Reasoning = fmt.Sprintf("trial requires %s negative, patient is positive", marker)
			return result
		}
	}

	return result
}

func mentionsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// evaluateTreatmentHistory checks treatment-naive requirements and per-drug
// exclusions of the form "no prior <drug>".
func (e *EligibilityEngine) evaluateTreatmentHistory(trial *domain.TrialCandidate, profile *domain.PatientProfile) CriterionResult {
	result := CriterionResult{Code: "TREATMENT_HISTORY", Name: "Prior treatment requirements", Passed: true}

	criteriaText := strings.ToLower(trial.EligibilityCriteria)

	if strings.Contains(criteriaText, "treatment-naive") || strings.Contains(criteriaText, "no prior therapy") {
		if len(profile.PriorTreatments) > 0 {
			result.Passed = false
			result.Reasoning = "trial requires treatment-naive patients"
			return result
		}
	}

	for _, treatment := range profile.PriorTreatments {
		if strings.Contains(criteriaText, "no prior "+strings.ToLower(treatment)) {
			result.Passed = false
			result.Reasoning = fmt.Sprintf("trial excludes prior %s", treatment)
			return result
		}
	}

	return result
}

// evaluatePerformanceStatus extracts the required ECOG score from the criteria
// text and compares it with the patient's score. The 0..5 scan does not break
// on the first match, so when the text mentions several ECOG scores the
// highest-numbered mention overwrites the earlier ones and alone decides the
// outcome. That differs from a first-match-wins reading and is preserved as-is
// rather than silently fixed; see the engine tests for the boundary cases.
func (e *EligibilityEngine) evaluatePerformanceStatus(trial *domain.TrialCandidate, profile *domain.PatientProfile) CriterionResult {
	result := CriterionResult{Code: "PERFORMANCE_STATUS", Name: "ECOG performance status requirements", Passed: true}

	if profile.PerformanceStatus == nil {
		result.Reasoning = "no performance status on profile"
		return result
	}

	criteriaText := strings.ToLower(trial.EligibilityCriteria)
	if !strings.Contains(criteriaText, "ecog") {
		return result
	}

	requiredECOG := -1
	for i := domain.MinPerformanceStatus; i <= domain.MaxPerformanceStatus; i++ {
		if strings.Contains(criteriaText, fmt.Sprintf("ecog %d", i)) ||
			strings.Contains(criteriaText, fmt.Sprintf("ecog performance status %d", i)) {
			requiredECOG = i // later matches overwrite earlier ones
		}
	}

	if requiredECOG >= 0 && *profile.PerformanceStatus > requiredECOG {
		result.Passed = false
		result.Reasoning = fmt.Sprintf("patient ECOG %d exceeds required ECOG %d", *profile.PerformanceStatus, requiredECOG)
	}

	return result
}
