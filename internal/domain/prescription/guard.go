// Package prescription holds the doctor's working medicine selections and the
// active-prescription guard that decides whether a medicine may be added for
// the current subject.
package prescription

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/unihealth/careportal/internal/platform/metrics"
	"github.com/unihealth/careportal/internal/platform/rest"
)

// DefaultBlockDays is the assumed re-prescription window when the backend
// reports a BILLED prescription without an explicit allowed date.
// TODO(product): confirm whether 30 days is a clinical rule or a placeholder
// inherited from the billing system.
const DefaultBlockDays = 30

// CheckActiveResponse is the backend's answer to a check-active query.
// Optional fields are absent for inactive prescriptions.
type CheckActiveResponse struct {
	Active        bool    `json:"active"`
	Status        string  `json:"status,omitempty"`
	MemberType    string  `json:"memberType,omitempty"`
	Relation      string  `json:"relation,omitempty"`
	AllowedDate   *string `json:"allowedDate,omitempty"`
	RemainingDays *int    `json:"remainingDays,omitempty"`
	Duration      *int    `json:"duration,omitempty"`
}

// Decision is the guard's verdict on adding one medicine.
type Decision struct {
	Allow   bool
	Status  string
	Message string
}

// Evaluate turns a check-active response into a block-or-proceed decision.
// PENDING and VERIFIED prescriptions are hard blocks. BILLED prescriptions
// block until the allowed date (or the default window) has elapsed.
func Evaluate(resp CheckActiveResponse, now time.Time) Decision {
	if !resp.Active {
		return Decision{Allow: true}
	}

	switch resp.Status {
	case "BILLED":
		return evaluateBilled(resp, now)
	default:
		// PENDING, VERIFIED, and any unrecognized active status block outright.
		msg := fmt.Sprintf("an active prescription with status %s already exists", resp.Status)
		if resp.Relation != "" {
			msg = fmt.Sprintf("an active prescription with status %s already exists for the patient's %s", resp.Status, resp.Relation)
		}
		return Decision{Allow: false, Status: resp.Status, Message: msg}
	}
}

func evaluateBilled(resp CheckActiveResponse, now time.Time) Decision {
	if resp.AllowedDate != nil {
		allowed, err := time.Parse("2006-01-02", *resp.AllowedDate)
		if err == nil {
			if !now.Before(allowed) {
				return Decision{Allow: true}
			}
			remaining := int(allowed.Sub(now).Hours()/24) + 1
			return Decision{
				Allow:  false,
				Status: resp.Status,
				Message: fmt.Sprintf("this medicine was recently dispensed; it can be prescribed again in %d day(s), on %s",
					remaining, allowed.Format("2006-01-02")),
			}
		}
	}

	if resp.RemainingDays != nil {
		if *resp.RemainingDays <= 0 {
			return Decision{Allow: true}
		}
		available := now.AddDate(0, 0, *resp.RemainingDays)
		return Decision{
			Allow:  false,
			Status: resp.Status,
			Message: fmt.Sprintf("this medicine was recently dispensed; it can be prescribed again in %d day(s), on %s",
				*resp.RemainingDays, available.Format("2006-01-02")),
		}
	}

	// No date information at all: assume the default window from now.
	window := DefaultBlockDays
	if resp.Duration != nil && *resp.Duration > 0 {
		window = *resp.Duration
	}
	available := now.AddDate(0, 0, window)
	return Decision{
		Allow:  false,
		Status: resp.Status,
		Message: fmt.Sprintf("this medicine was recently dispensed; it can be prescribed again in %d day(s), on %s",
			window, available.Format("2006-01-02")),
	}
}

// Checker abstracts the transport for testability.
type Checker interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Guard performs check-active lookups before a medicine is added. FailOpen
// is a deliberate availability-over-enforcement policy: when the check itself
// fails at the transport level the guard allows the addition.
type Guard struct {
	client   Checker
	FailOpen bool
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewGuard creates a Guard over the given transport.
func NewGuard(client *rest.Client, failOpen bool, logger zerolog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{client: client, FailOpen: failOpen, logger: logger, metrics: m, now: time.Now}
}

// NewGuardWith creates a Guard over any Checker (used in tests).
func NewGuardWith(c Checker, failOpen bool) *Guard {
	return &Guard{client: c, FailOpen: failOpen, logger: zerolog.Nop(), now: time.Now}
}

// CheckActive queries the backend for a blocking prescription.
func (g *Guard) CheckActive(ctx context.Context, memberName, medicineID string) (CheckActiveResponse, error) {
	var resp CheckActiveResponse
	path := "/api/prescriptions/check-active/" + url.PathEscape(memberName) + "/" + url.PathEscape(medicineID)
	if err := g.client.GetJSON(ctx, path, &resp); err != nil {
		return CheckActiveResponse{}, err
	}
	return resp, nil
}

// Check runs the full guard: check-active plus evaluation. Transport or
// server errors follow the FailOpen policy rather than surfacing to the user.
func (g *Guard) Check(ctx context.Context, memberName, medicineID string) Decision {
	resp, err := g.CheckActive(ctx, memberName, medicineID)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("medicine_id", medicineID).
			Bool("fail_open", g.FailOpen).
			Msg("check-active failed")
		if g.FailOpen {
			return Decision{Allow: true}
		}
		return Decision{Allow: false, Message: "could not verify existing prescriptions; please try again"}
	}

	decision := Evaluate(resp, g.now())
	if !decision.Allow && g.metrics != nil {
		g.metrics.ObserveGuardBlock(decision.Status)
	}
	return decision
}
