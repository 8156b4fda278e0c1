package sandbox

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// Seed loads the default synthetic dataset: one full client with an approved
// and a pending dependent, a second client with no dependents, a non-client
// identity for the invalid-role path, three pricelists with gender and age
// restricted entries, and check-active scenarios covering the guard states.
func (s *Server) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = []Client{
		{
			ID:         "c1",
			FullName:   "Jane Doe",
			Phone:      "+963-944-111-222",
			EmployeeID: "EMP001",
			NationalID: "10203040506",
			Age:        34,
			Gender:     "FEMALE",
		},
		{
			ID:              "c2",
			FullName:        "Omar Haddad",
			Phone:           "+963-944-333-444",
			EmployeeID:      "EMP002",
			NationalID:      "60504030201",
			Age:             51,
			Gender:          "MALE",
			ChronicDiseases: []string{"hypertension"},
		},
	}

	// identities that exist in the university directory but are not clients
	s.invalidRoles["EMP999"] = struct{}{}
	s.invalidRoles["99999999999"] = struct{}{}

	s.familyMembers = []FamilyMember{
		{
			ID:              "fm1",
			ClientID:        "c1",
			FullName:        "Sami Doe",
			Relation:        "SON",
			Age:             8,
			Gender:          "MALE",
			InsuranceNumber: "INS-1001",
			Status:          "APPROVED",
		},
		{
			ID:              "fm2",
			ClientID:        "c1",
			FullName:        "Lina Doe",
			Relation:        "DAUGHTER",
			Age:             3,
			Gender:          "FEMALE",
			InsuranceNumber: "INS-1002",
			Status:          "PENDING",
		},
	}

	s.medicines = []PricelistItem{
		{
			ID:                 "m1",
			Name:               "Amoxicillin 500mg",
			ScientificName:     "amoxicillin",
			Form:               "capsule",
			UnionPrice:         12000,
			CoverageStatus:     "COVERED",
			CoveragePercentage: 85,
		},
		{
			ID:                 "m2",
			Name:               "Prenatal Multivitamin",
			UnionPrice:         30000,
			CoverageStatus:     "COVERED",
			CoveragePercentage: 60,
			AllowedGenders:     []string{"FEMALE"},
			MinAge:             intPtr(18),
		},
		{
			ID:                 "m3",
			Name:               "Isotretinoin 20mg",
			UnionPrice:         45000,
			CoverageStatus:     "UNCOVERED",
			CoveragePercentage: 0,
			MinAge:             intPtr(12),
			MaxAge:             intPtr(40),
		},
	}

	s.labTests = []PricelistItem{
		{
			ID:                 "l1",
			Name:               "Complete Blood Count",
			UnionPrice:         25000,
			CoverageStatus:     "COVERED",
			CoveragePercentage: 90,
		},
		{
			ID:                 "l2",
			Name:               "PSA Total",
			UnionPrice:         60000,
			CoverageStatus:     "COVERED",
			CoveragePercentage: 70,
			AllowedGenders:     []string{"MALE"},
			MinAge:             intPtr(40),
		},
	}

	s.radiology = []PricelistItem{
		{
			ID:                 "r1",
			Name:               "Chest X-Ray",
			UnionPrice:         80000,
			CoverageStatus:     "COVERED",
			CoveragePercentage: 80,
		},
		{
			ID:                 "r2",
			Name:               "Mammogram",
			UnionPrice:         150000,
			CoverageStatus:     "COVERED",
			CoveragePercentage: 75,
			AllowedGenders:     []string{"FEMALE"},
			MinAge:             intPtr(35),
		},
	}

	// guard scenarios keyed by memberName/medicineId
	s.activeChecks["Jane Doe/m2"] = ActiveScenario{
		Active:     true,
		Status:     "PENDING",
		MemberType: "CLIENT",
	}
	s.activeChecks["Sami Doe/m1"] = ActiveScenario{
		Active:     true,
		Status:     "VERIFIED",
		MemberType: "FAMILY_MEMBER",
		Relation:   "SON",
	}
	s.activeChecks["Omar Haddad/m1"] = ActiveScenario{
		Active:      true,
		Status:      "BILLED",
		MemberType:  "CLIENT",
		AllowedDate: strPtr("2026-09-20"),
	}
	s.activeChecks["Omar Haddad/m3"] = ActiveScenario{
		Active:        true,
		Status:        "BILLED",
		MemberType:    "CLIENT",
		RemainingDays: intPtr(5),
	}

	s.doctor = Doctor{
		ID:       "d1",
		FullName: "Dr. Rania Khoury",
		Specialization: map[string]any{
			"displayName":       "Internal Medicine",
			"consultationPrice": 50000,
			"diagnoses":         []string{"Acute bronchitis", "Hypertension", "Type 2 diabetes"},
			"treatmentPlans":    []string{"Medication", "Lifestyle adjustment", "Referral"},
		},
	}

	s.notifications = []Notification{
		{ID: "n1", UserID: "d1", Subject: "Claim HP-2210 approved", Read: false},
		{ID: "n2", UserID: "d1", Subject: "Prescription for Sami Doe verified", Read: false},
		{ID: "n3", UserID: "d1", Subject: "Monthly statement available", Read: true},
	}
}
