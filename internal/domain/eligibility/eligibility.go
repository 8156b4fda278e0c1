// Package eligibility filters catalog items against a doctor's specialization
// restrictions and the active subject's attributes. The specialization-level
// gender/age check is a hard stop that empties the whole workflow; per-item
// restrictions only narrow the available list.
package eligibility

import (
	"fmt"

	"github.com/unihealth/careportal/internal/domain/catalog"
	"github.com/unihealth/careportal/internal/domain/patient"
)

// SpecializationProfile is the read-only reference data scoped to the
// logged-in doctor. Absent restriction fields mean unrestricted.
type SpecializationProfile struct {
	DisplayName         string              `json:"displayName"`
	AllowedGenders      []catalog.Gender    `json:"allowedGenders,omitempty"`
	MinAge              *int                `json:"minAge,omitempty"`
	MaxAge              *int                `json:"maxAge,omitempty"`
	Diagnoses           []string            `json:"diagnoses,omitempty"`
	TreatmentPlans      []string            `json:"treatmentPlans,omitempty"`
	DiagnosisTreatments map[string][]string `json:"diagnosisTreatmentMappings,omitempty"`
	ConsultationPrice   float64             `json:"consultationPrice"`
}

// Result is the outcome of filtering a catalog for one subject.
type Result struct {
	Items       []catalog.Item
	HardFailure bool
	Reason      string
}

// CheckSubject applies the specialization-level restrictions to a subject.
// A failure here is the hard stop: the reason names the violated restriction.
func CheckSubject(profile SpecializationProfile, subject patient.Subject) (bool, string) {
	if len(profile.AllowedGenders) > 0 {
		allowed := false
		for _, g := range profile.AllowedGenders {
			if g == subject.Gender {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, fmt.Sprintf("%s only treats %s patients", profile.DisplayName, genderList(profile.AllowedGenders))
		}
	}
	if profile.MinAge != nil && subject.Age < *profile.MinAge {
		return false, fmt.Sprintf("%s requires patients to be at least %d years old", profile.DisplayName, *profile.MinAge)
	}
	if profile.MaxAge != nil && subject.Age > *profile.MaxAge {
		return false, fmt.Sprintf("%s requires patients to be at most %d years old", profile.DisplayName, *profile.MaxAge)
	}
	return true, ""
}

// Filter is a pure function of (items, profile, subject). A specialization
// hard failure empties the list regardless of item-level restrictions; item
// restrictions merely drop single items. Callers recompute on every subject
// or profile change rather than caching.
func Filter(items []catalog.Item, profile SpecializationProfile, subject patient.Subject) Result {
	if ok, reason := CheckSubject(profile, subject); !ok {
		return Result{Items: nil, HardFailure: true, Reason: reason}
	}

	filtered := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		if !item.GenderAllowed(subject.Gender) {
			continue
		}
		if !item.AgeAllowed(subject.Age) {
			continue
		}
		filtered = append(filtered, item)
	}
	return Result{Items: filtered}
}

func genderList(genders []catalog.Gender) string {
	out := ""
	for i, g := range genders {
		if i > 0 {
			out += "/"
		}
		out += string(g)
	}
	return out
}
