// Package catalog models the priced, coverage-tagged reference data a doctor
// selects from when building a unified medical request: medicines, lab tests,
// and radiology tests. Items are fetched once per screen and never mutated.
package catalog

// ItemKind identifies which pricelist an item came from.
type ItemKind string

const (
	KindMedicine  ItemKind = "medicine"
	KindLabTest   ItemKind = "lab"
	KindRadiology ItemKind = "radiology"
)

// Gender is a patient or restriction gender value as the backend encodes it.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// CoverageStatus describes how the insurance plan treats an item.
type CoverageStatus string

const (
	Covered          CoverageStatus = "COVERED"
	RequiresApproval CoverageStatus = "REQUIRES_APPROVAL"
	NotCovered       CoverageStatus = "NOT_COVERED"
)

// Item is one pricelist entry. Restriction fields are optional: a nil
// AllowedGenders means unrestricted, a nil MinAge/MaxAge means unbounded.
type Item struct {
	ID                 string         `json:"id"`
	Kind               ItemKind       `json:"-"`
	Name               string         `json:"name"`
	ScientificName     string         `json:"scientificName,omitempty"`
	Form               string         `json:"form,omitempty"`
	UnionPrice         float64        `json:"unionPrice"`
	CoverageStatus     CoverageStatus `json:"coverageStatus"`
	CoveragePercentage float64        `json:"coveragePercentage"`
	AllowedGenders     []Gender       `json:"allowedGenders,omitempty"`
	MinAge             *int           `json:"minAge,omitempty"`
	MaxAge             *int           `json:"maxAge,omitempty"`
}

// GenderAllowed reports whether the item's own gender restriction permits g.
// An absent restriction permits everyone.
func (i Item) GenderAllowed(g Gender) bool {
	if len(i.AllowedGenders) == 0 {
		return true
	}
	for _, allowed := range i.AllowedGenders {
		if allowed == g {
			return true
		}
	}
	return false
}

// AgeAllowed reports whether the item's own age bounds permit age. Absent
// bounds are unbounded.
func (i Item) AgeAllowed(age int) bool {
	if i.MinAge != nil && age < *i.MinAge {
		return false
	}
	if i.MaxAge != nil && age > *i.MaxAge {
		return false
	}
	return true
}
