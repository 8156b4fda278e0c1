package prescription

import (
	"fmt"

	"github.com/unihealth/careportal/internal/domain/catalog"
)

// SelectedMedicine is one working entry in the doctor's prescription draft:
// a catalog item (or explicit custom medicine) plus its dosage fields.
type SelectedMedicine struct {
	Item catalog.Item
	// CustomName names a medicine not present in the pricelist. When set,
	// Item.ID may be empty.
	CustomName   string
	Dosage       string
	TimesPerDay  int
	DurationDays int
	NoDosage     bool
}

// Valid reports whether the entry is fully formed: an identifying catalog id
// or custom name, and dosage fields unless explicitly opted out.
func (m SelectedMedicine) Valid() bool {
	if m.Item.ID == "" && m.CustomName == "" {
		return false
	}
	if m.NoDosage {
		return true
	}
	return m.Dosage != "" && m.TimesPerDay > 0 && m.DurationDays > 0
}

// DisplayName returns the name shown for this entry.
func (m SelectedMedicine) DisplayName() string {
	if m.CustomName != "" {
		return m.CustomName
	}
	return m.Item.Name
}

// ValidateSelections rejects a draft containing malformed entries. An empty
// draft is fine here; the orchestrator enforces the no-items rule across all
// three selection kinds.
func ValidateSelections(entries []SelectedMedicine) error {
	for i, m := range entries {
		if !m.Valid() {
			name := m.DisplayName()
			if name == "" {
				return fmt.Errorf("medicine entry %d has neither a catalog id nor a custom name", i+1)
			}
			return fmt.Errorf("medicine %q is missing dosage details", name)
		}
	}
	return nil
}
