package claims

import (
	"context"
	"fmt"

	"github.com/unihealth/careportal/internal/domain/eligibility"
)

// FinalizationForm collects the user's own claim after the unified request:
// a description and a required supporting document. The amount is read-only,
// pre-filled from the specialization consultation price; for follow-up visits
// insurance does not cover the consultation fee, so the submitted amount is
// forced to zero while OriginalFee keeps the fee for display.
type FinalizationForm struct {
	ClientID    string
	Description string
	ServiceDate string
	FollowUp    bool

	amount      float64
	originalFee float64
	skipped     bool
}

// NewFinalizationForm prepares a form for the given client and specialization.
func NewFinalizationForm(clientID, serviceDate string, profile eligibility.SpecializationProfile, followUp bool) *FinalizationForm {
	f := &FinalizationForm{
		ClientID:    clientID,
		ServiceDate: serviceDate,
		FollowUp:    followUp,
		amount:      profile.ConsultationPrice,
		originalFee: profile.ConsultationPrice,
	}
	if followUp {
		f.amount = 0
	}
	return f
}

// Amount is the read-only amount that will be submitted.
func (f *FinalizationForm) Amount() float64 { return f.amount }

// OriginalFee is the consultation fee before any follow-up zeroing, kept for
// display purposes.
func (f *FinalizationForm) OriginalFee() float64 { return f.originalFee }

// Skip completes the form without submitting anything.
func (f *FinalizationForm) Skip() { f.skipped = true }

// Skipped reports whether the user chose to skip claim finalization.
func (f *FinalizationForm) Skipped() bool { return f.skipped }

// Submit files the finalization claim. Unlike the orchestrator's implicit
// claim, the supporting document is required here.
func (f *FinalizationForm) Submit(ctx context.Context, svc *Service, doc *Document) error {
	if f.skipped {
		return fmt.Errorf("form was skipped")
	}
	if doc == nil || doc.Content == nil {
		return fmt.Errorf("a supporting document is required")
	}
	if f.Description == "" {
		return fmt.Errorf("a description is required")
	}

	draft := Draft{
		ClientID:    f.ClientID,
		Description: f.Description,
		Amount:      f.amount,
		ServiceDate: f.ServiceDate,
		RoleData: map[string]any{
			"followUpVisit": f.FollowUp,
			"originalFee":   f.originalFee,
		},
	}
	return svc.Submit(ctx, draft, doc)
}
