package sandbox

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestServer(t *testing.T) (*Server, *echo.Echo) {
	t.Helper()
	s := New()
	s.Seed()
	e := echo.New()
	s.RegisterRoutes(e)
	return s, e
}

func do(e *echo.Echo, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestClientSearch(t *testing.T) {
	_, e := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"by employee id", "/api/clients/search/employeeId/EMP001", http.StatusOK, ""},
		{"by national id", "/api/clients/search/nationalId/10203040506", http.StatusOK, ""},
		{"non-client identity", "/api/clients/search/employeeId/EMP999", http.StatusForbidden, "INVALID_ROLE"},
		{"unknown id", "/api/clients/search/employeeId/EMP404", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantCode != "" {
				var env map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
					t.Fatalf("decode error envelope: %v", err)
				}
				if env["error"] != tt.wantCode {
					t.Fatalf("expected error code %q, got %q", tt.wantCode, env["error"])
				}
			}
		})
	}
}

func TestFamilyMembersReturnsAllStatuses(t *testing.T) {
	_, e := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/family-members/client/c1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var members []FamilyMember
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members including the pending one, got %d", len(members))
	}
}

func TestCheckActiveDefaultsToInactive(t *testing.T) {
	_, e := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/prescriptions/check-active/Jane%20Doe/m1", "", nil)
	var scenario ActiveScenario
	if err := json.Unmarshal(rec.Body.Bytes(), &scenario); err != nil {
		t.Fatalf("decode scenario: %v", err)
	}
	if scenario.Active {
		t.Fatal("expected unseeded pair to be inactive")
	}

	rec = do(e, http.MethodGet, "/api/prescriptions/check-active/Jane%20Doe/m2", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &scenario); err != nil {
		t.Fatalf("decode scenario: %v", err)
	}
	if !scenario.Active || scenario.Status != "PENDING" {
		t.Fatalf("expected active PENDING scenario, got %+v", scenario)
	}
}

func TestCreateVisitFollowUpDetection(t *testing.T) {
	s, e := newTestServer(t)

	body := []byte(`{"doctorId":"d1","patientId":"c1","visitDate":"2026-09-01"}`)
	rec := do(e, http.MethodPost, "/api/visits/create", echo.MIMEApplicationJSON, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var first struct {
		VisitType       string `json:"visitType"`
		RemainingVisits int    `json:"remainingVisits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode visit response: %v", err)
	}
	if first.VisitType != "NORMAL" || first.RemainingVisits != DefaultYearlyVisits-1 {
		t.Fatalf("expected NORMAL with %d remaining, got %+v", DefaultYearlyVisits-1, first)
	}

	// same doctor, same subject, inside the window: follow-up, no decrement
	body = []byte(`{"doctorId":"d1","patientId":"c1","visitDate":"2026-09-08"}`)
	rec = do(e, http.MethodPost, "/api/visits/create", echo.MIMEApplicationJSON, body)
	var second struct {
		VisitType       string `json:"visitType"`
		RemainingVisits int    `json:"remainingVisits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode visit response: %v", err)
	}
	if second.VisitType != "FOLLOW_UP" {
		t.Fatalf("expected FOLLOW_UP, got %q", second.VisitType)
	}
	if second.RemainingVisits != first.RemainingVisits {
		t.Fatalf("follow-up must not consume the allowance: %d -> %d", first.RemainingVisits, second.RemainingVisits)
	}
	if len(s.Visits()) != 2 {
		t.Fatalf("expected 2 stored visits, got %d", len(s.Visits()))
	}
}

func TestCreateVisitRequiresExactlyOneSubject(t *testing.T) {
	_, e := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"both ids", `{"doctorId":"d1","patientId":"c1","familyMemberId":"fm1","visitDate":"2026-09-01"}`},
		{"neither id", `{"doctorId":"d1","visitDate":"2026-09-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/visits/create", echo.MIMEApplicationJSON, []byte(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestVisitAllowanceExhaustion(t *testing.T) {
	s, e := newTestServer(t)
	s.mu.Lock()
	s.yearlyVisits["c2"] = 1
	s.mu.Unlock()

	body := []byte(`{"doctorId":"d1","patientId":"c2","visitDate":"2026-09-01"}`)
	if rec := do(e, http.MethodPost, "/api/visits/create", echo.MIMEApplicationJSON, body); rec.Code != http.StatusCreated {
		t.Fatalf("first visit should succeed, got %d", rec.Code)
	}
	// outside the follow-up window so it is a fresh NORMAL visit
	body = []byte(`{"doctorId":"d1","patientId":"c2","visitDate":"2026-12-01"}`)
	rec := do(e, http.MethodPost, "/api/visits/create", echo.MIMEApplicationJSON, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when the allowance is exhausted, got %d", rec.Code)
	}
}

func TestCreateResourceValidatesSubject(t *testing.T) {
	s, e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/prescriptions/create", echo.MIMEApplicationJSON,
		[]byte(`{"memberName":"Jane Doe","memberId":"c1","medicines":[{"medicineId":"m1"}]}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/labs/create", echo.MIMEApplicationJSON,
		[]byte(`{"memberId":"c1","familyMemberId":"fm1","testId":"l1"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for both ids, got %d", rec.Code)
	}

	if got := s.ResourceCount("prescription"); got != 1 {
		t.Fatalf("expected 1 stored prescription, got %d", got)
	}
	if got := s.ResourceCount("lab"); got != 0 {
		t.Fatalf("expected no stored labs, got %d", got)
	}
}

func TestCreateClaimMultipart(t *testing.T) {
	s, e := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("data", `{"clientId":"c1","description":"consultation","amount":50000}`); err != nil {
		t.Fatalf("write data field: %v", err)
	}
	fw, err := w.CreateFormFile("document", "invoice.pdf")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.4 fake")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rec := do(e, http.MethodPost, "/api/healthcare-provider-claims/create", w.FormDataContentType(), buf.Bytes())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	claims := s.Claims()
	if len(claims) != 1 {
		t.Fatalf("expected 1 stored claim, got %d", len(claims))
	}
	if claims[0].DocumentName != "invoice.pdf" {
		t.Fatalf("expected stored document name, got %q", claims[0].DocumentName)
	}
	if !strings.Contains(claims[0].Data, `"clientId":"c1"`) {
		t.Fatalf("stored claim data missing clientId: %s", claims[0].Data)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	_, e := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/notifications/unread-count", "", nil)
	var count map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count["unread"] != 2 {
		t.Fatalf("expected 2 unread, got %d", count["unread"])
	}

	if rec := do(e, http.MethodPatch, "/api/notifications/n1/read", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("mark read failed with %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/notifications/unread-count", "", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &count)
	if count["unread"] != 1 {
		t.Fatalf("expected 1 unread after mark, got %d", count["unread"])
	}

	if rec := do(e, http.MethodPatch, "/api/notifications/read-all", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("read-all failed with %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/notifications/unread-count", "", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &count)
	if count["unread"] != 0 {
		t.Fatalf("expected 0 unread after read-all, got %d", count["unread"])
	}
}

func TestFailureInjection(t *testing.T) {
	s, e := newTestServer(t)
	s.SetFail("/api/labs/create", true)

	rec := do(e, http.MethodPost, "/api/labs/create", echo.MIMEApplicationJSON,
		[]byte(`{"memberId":"c1","testId":"l1"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected injected 500, got %d", rec.Code)
	}

	s.SetFail("/api/labs/create", false)
	rec = do(e, http.MethodPost, "/api/labs/create", echo.MIMEApplicationJSON,
		[]byte(`{"memberId":"c1","testId":"l1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 after clearing the failure, got %d", rec.Code)
	}
}
