package patient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/unihealth/careportal/internal/platform/rest"
)

// Getter abstracts the transport for testability.
type Getter interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Resolver looks up patients by employee or national id and lists their
// approved dependents.
type Resolver struct {
	client  Getter
	aborter rest.Aborter
	now     func() time.Time
}

// NewResolver creates a Resolver over the given transport.
func NewResolver(client *rest.Client) *Resolver {
	return &Resolver{client: client, now: time.Now}
}

// NewResolverWith creates a Resolver over any Getter (used in tests).
func NewResolverWith(g Getter) *Resolver {
	return &Resolver{client: g, now: time.Now}
}

// Resolution is the outcome of resolving a patient: the client, their
// approved dependents, and the currently selected subject.
type Resolution struct {
	Patient       Patient
	FamilyMembers []FamilyMember

	selected *FamilyMember
}

// LookupByEmployeeID resolves a patient by employee id.
func (r *Resolver) LookupByEmployeeID(ctx context.Context, employeeID string) (*Patient, error) {
	return r.lookup(ctx, "/api/clients/search/employeeId/"+url.PathEscape(employeeID))
}

// LookupByNationalID resolves a patient by national id.
func (r *Resolver) LookupByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	return r.lookup(ctx, "/api/clients/search/nationalId/"+url.PathEscape(nationalID))
}

func (r *Resolver) lookup(ctx context.Context, path string) (*Patient, error) {
	var p Patient
	if err := r.client.GetJSON(ctx, path, &p); err != nil {
		switch {
		case rest.IsCode(err, "INVALID_ROLE"):
			return nil, ErrInvalidRole
		case rest.IsStatus(err, http.StatusNotFound):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}
	if p.Age == 0 && p.DateOfBirth != "" {
		if age, ok := deriveAge(p.DateOfBirth, r.now()); ok {
			p.Age = age
		}
	}
	return &p, nil
}

// FamilyMembers lists a client's dependents, filtered to APPROVED status.
func (r *Resolver) FamilyMembers(ctx context.Context, clientID string) ([]FamilyMember, error) {
	var all []FamilyMember
	path := "/api/family-members/client/" + url.PathEscape(clientID)
	if err := r.client.GetJSON(ctx, path, &all); err != nil {
		return nil, fmt.Errorf("fetch family members: %w", err)
	}

	approved := make([]FamilyMember, 0, len(all))
	for _, m := range all {
		if m.Status == "APPROVED" {
			approved = append(approved, m)
		}
	}
	return approved, nil
}

// LookupQuery selects which identifier a Resolve call uses.
type LookupQuery struct {
	EmployeeID string
	NationalID string
}

// Resolve performs a full patient resolution: lookup plus approved dependents.
// Re-running with the same query simply replaces the prior state; any
// previously selected family member is discarded with the old Resolution.
func (r *Resolver) Resolve(ctx context.Context, q LookupQuery) (*Resolution, error) {
	var (
		p   *Patient
		err error
	)
	switch {
	case q.EmployeeID != "":
		p, err = r.LookupByEmployeeID(ctx, q.EmployeeID)
	case q.NationalID != "":
		p, err = r.LookupByNationalID(ctx, q.NationalID)
	default:
		return nil, fmt.Errorf("lookup query needs an employee or national id")
	}
	if err != nil {
		return nil, err
	}

	members, err := r.FamilyMembers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Patient: *p, FamilyMembers: members}, nil
}

// Exists is the search-as-you-type existence check. Each call aborts the
// previous in-flight one; an aborted call reports the context error.
func (r *Resolver) Exists(ctx context.Context, q LookupQuery) (bool, error) {
	callCtx := r.aborter.Start(ctx)
	var err error
	switch {
	case q.EmployeeID != "":
		_, err = r.LookupByEmployeeID(callCtx, q.EmployeeID)
	case q.NationalID != "":
		_, err = r.LookupByNationalID(callCtx, q.NationalID)
	default:
		return false, fmt.Errorf("lookup query needs an employee or national id")
	}
	switch err {
	case nil:
		return true, nil
	case ErrNotFound, ErrInvalidRole:
		return false, nil
	default:
		return false, err
	}
}

// SelectFamilyMember makes the given dependent the active subject. It fails
// when the member is not part of this resolution.
func (res *Resolution) SelectFamilyMember(id string) error {
	for i := range res.FamilyMembers {
		if res.FamilyMembers[i].ID == id {
			res.selected = &res.FamilyMembers[i]
			return nil
		}
	}
	return fmt.Errorf("family member %q is not part of this resolution", id)
}

// SelectMainPatient makes the main patient the active subject again.
func (res *Resolution) SelectMainPatient() {
	res.selected = nil
}

// ActiveSubject returns the person requests are built for. Exactly one of
// MemberID/FamilyMemberID is populated.
func (res *Resolution) ActiveSubject() Subject {
	if res.selected != nil {
		return Subject{
			Name:           res.selected.FullName,
			Age:            res.selected.Age,
			Gender:         res.selected.Gender,
			FamilyMemberID: res.selected.ID,
			Relation:       res.selected.Relation,
		}
	}
	return Subject{
		Name:     res.Patient.FullName,
		Age:      res.Patient.Age,
		Gender:   res.Patient.Gender,
		MemberID: res.Patient.ID,
	}
}
