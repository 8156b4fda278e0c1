// Package visit creates the encounter record that every prescription, lab,
// and radiology request hangs off. The backend decides whether the encounter
// is a normal visit or a follow-up within the recency window.
package visit

import (
	"context"
	"fmt"

	"github.com/unihealth/careportal/internal/domain/patient"
	"github.com/unihealth/careportal/internal/platform/rest"
)

// VisitType classifies the created encounter.
type VisitType string

const (
	Normal   VisitType = "NORMAL"
	FollowUp VisitType = "FOLLOW_UP"
)

// CreateRequest is the body for POST /api/visits/create. Exactly one of
// PatientID/FamilyMemberID is marshalled; NewCreateRequest enforces that.
type CreateRequest struct {
	DoctorID       string `json:"doctorId"`
	VisitDate      string `json:"visitDate"`
	Notes          string `json:"notes,omitempty"`
	PatientID      string `json:"patientId,omitempty"`
	FamilyMemberID string `json:"familyMemberId,omitempty"`
}

// CreateResponse echoes the visit classification back to the client.
type CreateResponse struct {
	VisitType       VisitType `json:"visitType"`
	RemainingVisits int       `json:"remainingVisits"`
}

// NewCreateRequest builds a CreateRequest for the active subject. The subject
// invariant (exactly one of member/family-member id) carries into the payload.
func NewCreateRequest(doctorID, visitDate, notes string, subject patient.Subject) (CreateRequest, error) {
	req := CreateRequest{DoctorID: doctorID, VisitDate: visitDate, Notes: notes}
	switch {
	case subject.IsFamilyMember():
		req.FamilyMemberID = subject.FamilyMemberID
	case subject.MemberID != "":
		req.PatientID = subject.MemberID
	default:
		return CreateRequest{}, fmt.Errorf("subject has neither a member nor a family member id")
	}
	return req, nil
}

// Poster abstracts the transport for testability.
type Poster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Service creates visits against the claims backend.
type Service struct {
	client Poster
}

// NewService creates a visit Service over the given transport.
func NewService(client *rest.Client) *Service {
	return &Service{client: client}
}

// NewServiceWith creates a Service over any Poster (used in tests).
func NewServiceWith(p Poster) *Service {
	return &Service{client: p}
}

// Create issues the visit creation call.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	var resp CreateResponse
	if err := s.client.PostJSON(ctx, "/api/visits/create", req, &resp); err != nil {
		return nil, fmt.Errorf("create visit: %w", err)
	}
	return &resp, nil
}
