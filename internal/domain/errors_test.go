package domain

import (
	"testing"
	"time"
)

func TestAgentError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Invalid profile",
			code:      ErrInvalidProfile,
			message:   "Patient profile is missing a patient ID",
			details:   "patient_id is required for trial matching",
			requestID: "req-123",
		},
		{
			name:      "External API error",
			code:      ErrExternalAPI,
			message:   "Trial registry search failed",
			details:   "ClinicalTrials.gov returned status 503",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAgentError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}

			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}

			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}

			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}

			// Check that timestamp is recent (within last minute)
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			// Test Error() method
			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("performance_status", "ECOG performance status must be between 0 and 5", 7)

	if err.Field != "performance_status" {
		t.Errorf("Expected field performance_status, got %s", err.Field)
	}

	expected := "validation error for field 'performance_status': ECOG performance status must be between 0 and 5"
	if err.Error() != expected {
		t.Errorf("Expected error string %q, got %q", expected, err.Error())
	}
}

func TestPatientProfileValidate(t *testing.T) {
	ecog := 2
	negativeAge := -1
	badECOG := 6

	tests := []struct {
		name    string
		profile PatientProfile
		wantErr bool
	}{
		{"Valid minimal profile", PatientProfile{PatientID: "PT001"}, false},
		{"Valid full profile", PatientProfile{PatientID: "PT002", PerformanceStatus: &ecog}, false},
		{"Missing patient ID", PatientProfile{}, true},
		{"Negative age", PatientProfile{PatientID: "PT003", Age: &negativeAge}, true},
		{"ECOG out of range", PatientProfile{PatientID: "PT004", PerformanceStatus: &badECOG}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
