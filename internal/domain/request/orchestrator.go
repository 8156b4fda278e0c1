// Package request sequences the unified medical request submission: local
// validation, doctor identity resolution, visit creation, concurrent
// prescription/lab/radiology creation, and claim auto-submission.
//
// The submission is a best-effort, non-transactional saga: each step's
// failure is reported independently and nothing already created is rolled
// back or compensated. That behavior is inherited from the product and kept
// deliberately; the narrow Submit interface and tagged Result exist so a
// compensating implementation could replace this one without touching
// callers.
package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unihealth/careportal/internal/domain/claims"
	"github.com/unihealth/careportal/internal/domain/eligibility"
	"github.com/unihealth/careportal/internal/domain/patient"
	"github.com/unihealth/careportal/internal/domain/prescription"
	"github.com/unihealth/careportal/internal/domain/visit"
	"github.com/unihealth/careportal/internal/platform/metrics"
)

// Step identifies where in the saga an outcome was decided.
type Step string

const (
	StepValidate        Step = "validate"
	StepResolveDoctor   Step = "resolve-doctor"
	StepCreateVisit     Step = "create-visit"
	StepCreateResources Step = "create-resources"
	StepSubmitClaim     Step = "submit-claim"
)

// ResultKind tags the overall outcome.
type ResultKind string

const (
	// Success: every step completed.
	Success ResultKind = "success"
	// Partial: the visit exists but one or more later steps failed; nothing
	// was rolled back.
	Partial ResultKind = "partial"
	// Aborted: a step before resource creation failed; nothing was created
	// beyond what the failing step itself did.
	Aborted ResultKind = "aborted"
)

// StepFailure describes one failed operation within the saga.
type StepFailure struct {
	Step     Step
	Resource string
	Err      string
}

// Result is the tagged outcome of one submission attempt.
type Result struct {
	Kind     ResultKind
	Step     Step
	Failures []StepFailure
	Visit    *visit.CreateResponse
}

// Err flattens the failures into a single error, or nil on full success.
func (r Result) Err() error {
	if r.Kind == Success {
		return nil
	}
	msg := ""
	for i, f := range r.Failures {
		if i > 0 {
			msg += "; "
		}
		if f.Resource != "" {
			msg += fmt.Sprintf("%s %s: %s", f.Step, f.Resource, f.Err)
		} else {
			msg += fmt.Sprintf("%s: %s", f.Step, f.Err)
		}
	}
	return fmt.Errorf("%s", msg)
}

// SelectedTest is one lab or radiology test in the working selection.
type SelectedTest struct {
	ID         string
	CustomName string
	Notes      string
}

// Valid reports whether the entry identifies a test.
func (t SelectedTest) Valid() bool {
	return t.ID != "" || t.CustomName != ""
}

// Input is everything a submission needs, passed explicitly: no ambient state.
type Input struct {
	Resolution *patient.Resolution
	Profile    eligibility.SpecializationProfile

	Diagnosis       string
	Treatment       string
	DiagnosisOptOut bool
	Notes           string
	VisitDate       string

	// SameDayRestriction is set when the patient already saw this
	// specialization today; submission is blocked locally.
	SameDayRestriction bool

	Medicines      []prescription.SelectedMedicine
	LabTests       []SelectedTest
	RadiologyTests []SelectedTest
}

// Doctor is the resolved identity of the submitting doctor.
type Doctor struct {
	ID             string                            `json:"id"`
	FullName       string                            `json:"fullName"`
	Specialization eligibility.SpecializationProfile `json:"specialization"`
}

// DoctorResolver fetches the logged-in doctor's identity.
type DoctorResolver interface {
	CurrentDoctor(ctx context.Context) (*Doctor, error)
}

// VisitCreator creates the encounter record.
type VisitCreator interface {
	Create(ctx context.Context, req visit.CreateRequest) (*visit.CreateResponse, error)
}

// ResourcePoster issues the dependent resource creation calls.
type ResourcePoster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// ClaimSubmitter files the implicit claim.
type ClaimSubmitter interface {
	Submit(ctx context.Context, draft claims.Draft, doc *claims.Document) error
}

// Orchestrator runs the unified request saga.
type Orchestrator struct {
	doctors DoctorResolver
	visits  VisitCreator
	poster  ResourcePoster
	claims  ClaimSubmitter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	doctor *Doctor
}

// New creates an Orchestrator.
func New(doctors DoctorResolver, visits VisitCreator, poster ResourcePoster, claimSvc ClaimSubmitter, logger zerolog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		doctors: doctors,
		visits:  visits,
		poster:  poster,
		claims:  claimSvc,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Submit runs the saga. The result is always returned, never panicked or
// thrown past the caller; inspect Kind and Failures.
func (o *Orchestrator) Submit(ctx context.Context, in Input) Result {
	result := o.submit(ctx, in)
	if o.metrics != nil {
		o.metrics.ObserveSubmission(string(result.Kind))
	}
	return result
}

func (o *Orchestrator) submit(ctx context.Context, in Input) Result {
	// Step 1: local validation. Each failure is terminal for this attempt.
	if err := o.validate(in); err != nil {
		return abort(StepValidate, err)
	}
	subject := in.Resolution.ActiveSubject()

	// Step 2: doctor identity, cached after the first fetch.
	doctor, err := o.resolveDoctor(ctx)
	if err != nil {
		return abort(StepResolveDoctor, err)
	}

	// Step 3: visit creation. Failure means no dependent calls at all.
	visitDate := in.VisitDate
	if visitDate == "" {
		visitDate = o.now().Format("2006-01-02")
	}
	visitReq, err := visit.NewCreateRequest(doctor.ID, visitDate, in.Notes, subject)
	if err != nil {
		return abort(StepCreateVisit, err)
	}
	visitResp, err := o.visits.Create(ctx, visitReq)
	if err != nil {
		return abort(StepCreateVisit, err)
	}
	o.logger.Info().
		Str("visit_type", string(visitResp.VisitType)).
		Int("remaining_visits", visitResp.RemainingVisits).
		Msg("visit created")

	// Step 4: dependent resources, issued concurrently and joined.
	failures := o.createResources(ctx, in, subject)
	if len(failures) > 0 {
		return Result{Kind: Partial, Step: StepCreateResources, Failures: failures, Visit: visitResp}
	}

	// Step 5: implicit claim. Failure is reported but not compensated.
	draft := claims.AutoDraft(in.Resolution, in.Profile, in.Diagnosis, in.Treatment, visitDate, summarize(in))
	if visitResp.VisitType == visit.FollowUp {
		// insurance does not cover the consultation fee on a follow-up
		draft.Amount = 0
	}
	if err := o.claims.Submit(ctx, draft, nil); err != nil {
		return Result{
			Kind:     Partial,
			Step:     StepSubmitClaim,
			Failures: []StepFailure{{Step: StepSubmitClaim, Err: err.Error()}},
			Visit:    visitResp,
		}
	}

	return Result{Kind: Success, Visit: visitResp}
}

func (o *Orchestrator) validate(in Input) error {
	if in.Resolution == nil {
		return fmt.Errorf("no patient is resolved")
	}
	if in.SameDayRestriction {
		return fmt.Errorf("the patient already has a visit with this specialization today")
	}

	subject := in.Resolution.ActiveSubject()
	if ok, reason := eligibility.CheckSubject(in.Profile, subject); !ok {
		return fmt.Errorf("%s", reason)
	}

	if !in.DiagnosisOptOut {
		if in.Diagnosis == "" {
			return fmt.Errorf("a diagnosis is required")
		}
		if in.Treatment == "" {
			return fmt.Errorf("a treatment plan is required")
		}
	}

	if err := prescription.ValidateSelections(in.Medicines); err != nil {
		return err
	}
	for _, t := range append(append([]SelectedTest{}, in.LabTests...), in.RadiologyTests...) {
		if !t.Valid() {
			return fmt.Errorf("a selected test has neither a catalog id nor a custom name")
		}
	}

	if len(in.Medicines)+len(in.LabTests)+len(in.RadiologyTests) == 0 {
		return fmt.Errorf("at least one medicine, lab test, or radiology test is required")
	}

	if subject.Name == "" {
		return fmt.Errorf("the active subject has no name")
	}
	if subject.MemberID == "" && subject.FamilyMemberID == "" {
		return fmt.Errorf("the active subject has no member identity")
	}
	return nil
}

func (o *Orchestrator) resolveDoctor(ctx context.Context) (*Doctor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.doctor != nil {
		return o.doctor, nil
	}
	doctor, err := o.doctors.CurrentDoctor(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor identity: %w", err)
	}
	o.doctor = doctor
	return doctor, nil
}

// resourcePayload carries the subject linkage every dependent resource needs.
// Exactly one of MemberID/FamilyMemberID is marshalled.
type resourcePayload struct {
	MemberName     string `json:"memberName,omitempty"`
	MemberID       string `json:"memberId,omitempty"`
	FamilyMemberID string `json:"familyMemberId,omitempty"`
}

func subjectPayload(subject patient.Subject) resourcePayload {
	if subject.IsFamilyMember() {
		return resourcePayload{FamilyMemberID: subject.FamilyMemberID}
	}
	return resourcePayload{MemberName: subject.Name, MemberID: subject.MemberID}
}

// prescriptionCreate is the body for POST /api/prescriptions/create.
type prescriptionCreate struct {
	resourcePayload
	Medicines []prescriptionItem `json:"medicines"`
}

type prescriptionItem struct {
	MedicineID   string `json:"medicineId,omitempty"`
	CustomName   string `json:"customName,omitempty"`
	Dosage       string `json:"dosage,omitempty"`
	TimesPerDay  int    `json:"timesPerDay,omitempty"`
	DurationDays int    `json:"durationDays,omitempty"`
	NoDosage     bool   `json:"noDosage,omitempty"`
}

// testCreate is the body for POST /api/labs/create and /api/radiology/create.
type testCreate struct {
	resourcePayload
	TestID     string `json:"testId,omitempty"`
	CustomName string `json:"customName,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// createResources issues the prescription call (when medicines exist) and one
// call per lab/radiology test, all concurrently, and waits for every one.
func (o *Orchestrator) createResources(ctx context.Context, in Input, subject patient.Subject) []StepFailure {
	type job struct {
		resource string
		path     string
		body     any
	}

	base := subjectPayload(subject)
	var jobs []job

	if len(in.Medicines) > 0 {
		items := make([]prescriptionItem, 0, len(in.Medicines))
		for _, m := range in.Medicines {
			items = append(items, prescriptionItem{
				MedicineID:   m.Item.ID,
				CustomName:   m.CustomName,
				Dosage:       m.Dosage,
				TimesPerDay:  m.TimesPerDay,
				DurationDays: m.DurationDays,
				NoDosage:     m.NoDosage,
			})
		}
		jobs = append(jobs, job{
			resource: "prescription",
			path:     "/api/prescriptions/create",
			body:     prescriptionCreate{resourcePayload: base, Medicines: items},
		})
	}
	for _, t := range in.LabTests {
		jobs = append(jobs, job{
			resource: "lab test " + nameOf(t),
			path:     "/api/labs/create",
			body:     testCreate{resourcePayload: base, TestID: t.ID, CustomName: t.CustomName, Notes: t.Notes},
		})
	}
	for _, t := range in.RadiologyTests {
		jobs = append(jobs, job{
			resource: "radiology test " + nameOf(t),
			path:     "/api/radiology/create",
			body:     testCreate{resourcePayload: base, TestID: t.ID, CustomName: t.CustomName, Notes: t.Notes},
		})
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []StepFailure
	)
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if err := o.poster.PostJSON(ctx, j.path, j.body, nil); err != nil {
				mu.Lock()
				failures = append(failures, StepFailure{Step: StepCreateResources, Resource: j.resource, Err: err.Error()})
				mu.Unlock()
			}
		}(j)
	}
	wg.Wait()
	return failures
}

func summarize(in Input) claims.ServiceSummary {
	s := claims.ServiceSummary{}
	for _, m := range in.Medicines {
		s.Medicines = append(s.Medicines, m.DisplayName())
	}
	for _, t := range in.LabTests {
		s.LabTests = append(s.LabTests, nameOf(t))
	}
	for _, t := range in.RadiologyTests {
		s.RadiologyTests = append(s.RadiologyTests, nameOf(t))
	}
	return s
}

func nameOf(t SelectedTest) string {
	if t.CustomName != "" {
		return t.CustomName
	}
	return t.ID
}

func abort(step Step, err error) Result {
	return Result{
		Kind:     Aborted,
		Step:     step,
		Failures: []StepFailure{{Step: step, Err: err.Error()}},
	}
}
