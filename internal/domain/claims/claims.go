// Package claims assembles and submits insurance claims: the implicit claim
// the orchestrator files after a successful unified request, and the explicit
// finalization form a user fills in afterwards with supporting evidence.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/unihealth/careportal/internal/domain/eligibility"
	"github.com/unihealth/careportal/internal/domain/patient"
	"github.com/unihealth/careportal/internal/platform/rest"
)

// Draft is the claim payload sent in the multipart data field.
type Draft struct {
	ClientID         string         `json:"clientId"`
	Description      string         `json:"description"`
	Amount           float64        `json:"amount"`
	ServiceDate      string         `json:"serviceDate"`
	Diagnosis        string         `json:"diagnosis,omitempty"`
	TreatmentDetails string         `json:"treatmentDetails,omitempty"`
	RoleData         map[string]any `json:"roleSpecificData,omitempty"`
}

// Document is an optional file attached as supporting evidence.
type Document struct {
	Name    string
	Content io.Reader
}

// MultipartPoster abstracts the transport for testability.
type MultipartPoster interface {
	PostMultipart(ctx context.Context, path, dataField string, dataJSON []byte, fileField, fileName string, file io.Reader, out any) error
}

// Service submits claims to the backend.
type Service struct {
	client MultipartPoster
}

// NewService creates a claims Service over the given transport.
func NewService(client *rest.Client) *Service {
	return &Service{client: client}
}

// NewServiceWith creates a Service over any MultipartPoster (used in tests).
func NewServiceWith(p MultipartPoster) *Service {
	return &Service{client: p}
}

// Submit files a claim. doc may be nil; the backend accepts claims without a
// document part.
func (s *Service) Submit(ctx context.Context, draft Draft, doc *Document) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}

	var (
		fileName string
		file     io.Reader
	)
	if doc != nil {
		fileName = doc.Name
		file = doc.Content
	}

	err = s.client.PostMultipart(ctx, "/api/healthcare-provider-claims/create",
		"data", data, "document", fileName, file, nil)
	if err != nil {
		return fmt.Errorf("submit claim: %w", err)
	}
	return nil
}

// ServiceSummary describes the dispensed items for the claim's treatment
// details.
type ServiceSummary struct {
	Medicines      []string `json:"medicines,omitempty"`
	LabTests       []string `json:"labTests,omitempty"`
	RadiologyTests []string `json:"radiologyTests,omitempty"`
}

// AutoDraft builds the orchestrator's implicit claim: consultation price from
// the doctor's specialization plus a structured item summary, no document.
func AutoDraft(res *patient.Resolution, profile eligibility.SpecializationProfile, diagnosis, treatment, serviceDate string, summary ServiceSummary) Draft {
	summaryJSON, _ := json.Marshal(summary)
	return Draft{
		ClientID:         res.Patient.ID,
		Description:      fmt.Sprintf("Consultation with %s", profile.DisplayName),
		Amount:           profile.ConsultationPrice,
		ServiceDate:      serviceDate,
		Diagnosis:        diagnosis,
		TreatmentDetails: treatment,
		RoleData: map[string]any{
			"specialization": profile.DisplayName,
			"services":       json.RawMessage(summaryJSON),
		},
	}
}
