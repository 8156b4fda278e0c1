package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/unihealth/careportal/internal/domain/catalog"
	"github.com/unihealth/careportal/internal/platform/rest"
)

// -- Mock Getter --

type mockGetter struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (m *mockGetter) GetJSON(_ context.Context, path string, out any) error {
	m.calls = append(m.calls, path)
	if err, ok := m.errs[path]; ok {
		return err
	}
	body, ok := m.responses[path]
	if !ok {
		return fmt.Errorf("unexpected path %s", path)
	}
	return json.Unmarshal([]byte(body), out)
}

func TestLookupByEmployeeID(t *testing.T) {
	g := &mockGetter{responses: map[string]string{
		"/api/clients/search/employeeId/EMP001": `{"id":"c1","fullName":"Jane Doe","age":30,"gender":"FEMALE","employeeId":"EMP001"}`,
	}}
	r := NewResolverWith(g)

	p, err := r.LookupByEmployeeID(context.Background(), "EMP001")
	if err != nil {
		t.Fatalf("LookupByEmployeeID() error: %v", err)
	}
	if p.ID != "c1" || p.FullName != "Jane Doe" || p.Gender != catalog.GenderFemale {
		t.Fatalf("unexpected patient: %+v", p)
	}
}

func TestLookup_TypedFailures(t *testing.T) {
	g := &mockGetter{errs: map[string]error{
		"/api/clients/search/employeeId/EMP404": &rest.APIError{StatusCode: http.StatusNotFound},
		"/api/clients/search/nationalId/N1":     &rest.APIError{StatusCode: http.StatusForbidden, Code: "INVALID_ROLE"},
	}}
	r := NewResolverWith(g)

	_, err := r.LookupByEmployeeID(context.Background(), "EMP404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = r.LookupByNationalID(context.Background(), "N1")
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestLookup_DerivesAgeFromDateOfBirth(t *testing.T) {
	g := &mockGetter{responses: map[string]string{
		"/api/clients/search/employeeId/EMP002": `{"id":"c2","fullName":"Sam Lee","dateOfBirth":"1995-03-10","gender":"MALE"}`,
	}}
	r := NewResolverWith(g)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	p, err := r.LookupByEmployeeID(context.Background(), "EMP002")
	if err != nil {
		t.Fatalf("LookupByEmployeeID() error: %v", err)
	}
	if p.Age != 30 {
		t.Fatalf("expected derived age 30, got %d", p.Age)
	}
}

func TestFamilyMembers_FiltersToApproved(t *testing.T) {
	g := &mockGetter{responses: map[string]string{
		"/api/family-members/client/c1": `[
			{"id":"f1","fullName":"Tim Doe","relation":"SON","age":8,"gender":"MALE","status":"APPROVED"},
			{"id":"f2","fullName":"Ann Doe","relation":"DAUGHTER","age":5,"gender":"FEMALE","status":"PENDING"},
			{"id":"f3","fullName":"Joe Doe","relation":"SPOUSE","age":33,"gender":"MALE","status":"REJECTED"}
		]`,
	}}
	r := NewResolverWith(g)

	members, err := r.FamilyMembers(context.Background(), "c1")
	if err != nil {
		t.Fatalf("FamilyMembers() error: %v", err)
	}
	if len(members) != 1 || members[0].ID != "f1" {
		t.Fatalf("expected only the APPROVED member, got %+v", members)
	}
}

func TestResolve_ActiveSubjectExclusivity(t *testing.T) {
	g := &mockGetter{responses: map[string]string{
		"/api/clients/search/employeeId/EMP001": `{"id":"c1","fullName":"Jane Doe","age":30,"gender":"FEMALE"}`,
		"/api/family-members/client/c1":         `[{"id":"f1","fullName":"Tim Doe","relation":"SON","age":8,"gender":"MALE","status":"APPROVED"}]`,
	}}
	r := NewResolverWith(g)

	res, err := r.Resolve(context.Background(), LookupQuery{EmployeeID: "EMP001"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	// main patient active by default
	subj := res.ActiveSubject()
	if subj.MemberID != "c1" || subj.FamilyMemberID != "" {
		t.Fatalf("expected main patient active, got %+v", subj)
	}

	if err := res.SelectFamilyMember("f1"); err != nil {
		t.Fatalf("SelectFamilyMember() error: %v", err)
	}
	subj = res.ActiveSubject()
	if subj.FamilyMemberID != "f1" || subj.MemberID != "" {
		t.Fatalf("expected family member active with no member id, got %+v", subj)
	}
	if subj.Relation != "SON" || !subj.IsFamilyMember() {
		t.Fatalf("expected relation SON on active dependent, got %+v", subj)
	}

	res.SelectMainPatient()
	subj = res.ActiveSubject()
	if subj.MemberID != "c1" || subj.FamilyMemberID != "" {
		t.Fatalf("expected main patient active again, got %+v", subj)
	}

	if err := res.SelectFamilyMember("nope"); err == nil {
		t.Fatal("expected error selecting an unknown family member")
	}
}

func TestResolve_ReplacesPriorSelection(t *testing.T) {
	g := &mockGetter{responses: map[string]string{
		"/api/clients/search/employeeId/EMP001": `{"id":"c1","fullName":"Jane Doe","age":30,"gender":"FEMALE"}`,
		"/api/family-members/client/c1":         `[{"id":"f1","fullName":"Tim Doe","relation":"SON","age":8,"gender":"MALE","status":"APPROVED"}]`,
	}}
	r := NewResolverWith(g)
	ctx := context.Background()

	first, err := r.Resolve(ctx, LookupQuery{EmployeeID: "EMP001"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if err := first.SelectFamilyMember("f1"); err != nil {
		t.Fatalf("SelectFamilyMember() error: %v", err)
	}

	// a fresh resolution starts from the main patient again
	second, err := r.Resolve(ctx, LookupQuery{EmployeeID: "EMP001"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if subj := second.ActiveSubject(); subj.FamilyMemberID != "" {
		t.Fatalf("re-resolution must reset the selected family member, got %+v", subj)
	}
}

func TestExists(t *testing.T) {
	g := &mockGetter{
		responses: map[string]string{
			"/api/clients/search/employeeId/EMP001": `{"id":"c1","fullName":"Jane Doe"}`,
		},
		errs: map[string]error{
			"/api/clients/search/employeeId/EMP404": &rest.APIError{StatusCode: http.StatusNotFound},
		},
	}
	r := NewResolverWith(g)
	ctx := context.Background()

	ok, err := r.Exists(ctx, LookupQuery{EmployeeID: "EMP001"})
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}

	ok, err = r.Exists(ctx, LookupQuery{EmployeeID: "EMP404"})
	if err != nil || ok {
		t.Fatalf("Exists() = %v, %v; want false, nil", ok, err)
	}
}
