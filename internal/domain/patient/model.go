// Package patient resolves insurance clients and their approved dependents
// from the claims backend. A Resolution is the transient subject state the
// unified request workflow operates on: the main patient plus an optional
// mutually-exclusive selected family member.
package patient

import (
	"errors"
	"time"

	"github.com/unihealth/careportal/internal/domain/catalog"
)

var (
	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("patient not found")
	// ErrInvalidRole is returned when the looked-up identity exists but is
	// not an insurance client.
	ErrInvalidRole = errors.New("identity is not an insurance client")
)

// Patient is a resolved insurance client.
type Patient struct {
	ID              string         `json:"id"`
	FullName        string         `json:"fullName"`
	Phone           string         `json:"phone"`
	EmployeeID      string         `json:"employeeId"`
	NationalID      string         `json:"nationalId"`
	Age             int            `json:"age"`
	DateOfBirth     string         `json:"dateOfBirth,omitempty"`
	Gender          catalog.Gender `json:"gender"`
	ChronicDiseases []string       `json:"chronicDiseases,omitempty"`
}

// FamilyMember is a dependent covered under a client's policy. Only APPROVED
// members are visible to the workflow.
type FamilyMember struct {
	ID              string         `json:"id"`
	FullName        string         `json:"fullName"`
	Relation        string         `json:"relation"`
	Age             int            `json:"age"`
	Gender          catalog.Gender `json:"gender"`
	InsuranceNumber string         `json:"insuranceNumber"`
	Status          string         `json:"status"`
}

// Subject is the active person a request is being built for: the main patient
// or exactly one family member, never both.
type Subject struct {
	Name     string
	Age      int
	Gender   catalog.Gender
	MemberID string
	// FamilyMemberID is set instead of MemberID when a dependent is active.
	FamilyMemberID string
	// Relation is the family relation when a dependent is active.
	Relation string
}

// IsFamilyMember reports whether the active subject is a dependent.
func (s Subject) IsFamilyMember() bool {
	return s.FamilyMemberID != ""
}

// deriveAge computes whole years from an ISO date of birth when the server
// omits the age field.
func deriveAge(dateOfBirth string, now time.Time) (int, bool) {
	dob, err := time.Parse("2006-01-02", dateOfBirth)
	if err != nil {
		return 0, false
	}
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}
