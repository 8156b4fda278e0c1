// Package sandbox provides an in-memory stand-in for the claims backend. It
// implements the REST contract the portal core consumes, plus the chat
// websocket, with seeded synthetic data. Used for integration testing and
// local development without a real backend.
package sandbox

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// FollowUpWindowDays is the recency window within which a repeat visit to the
// same doctor counts as a follow-up, exempt from the yearly visit allowance.
const FollowUpWindowDays = 14

// DefaultYearlyVisits is the seeded per-client visit allowance.
const DefaultYearlyVisits = 5

// ---------------------------------------------------------------------------
// Stored records
// ---------------------------------------------------------------------------

// Client is a seeded insurance client.
type Client struct {
	ID              string   `json:"id"`
	FullName        string   `json:"fullName"`
	Phone           string   `json:"phone"`
	EmployeeID      string   `json:"employeeId"`
	NationalID      string   `json:"nationalId"`
	Age             int      `json:"age"`
	Gender          string   `json:"gender"`
	ChronicDiseases []string `json:"chronicDiseases,omitempty"`
}

// FamilyMember is a seeded dependent.
type FamilyMember struct {
	ID              string `json:"id"`
	ClientID        string `json:"-"`
	FullName        string `json:"fullName"`
	Relation        string `json:"relation"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	InsuranceNumber string `json:"insuranceNumber"`
	Status          string `json:"status"`
}

// PricelistItem is a seeded catalog entry.
type PricelistItem struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	ScientificName     string   `json:"scientificName,omitempty"`
	Form               string   `json:"form,omitempty"`
	UnionPrice         float64  `json:"unionPrice"`
	CoverageStatus     string   `json:"coverageStatus"`
	CoveragePercentage float64  `json:"coveragePercentage"`
	AllowedGenders     []string `json:"allowedGenders,omitempty"`
	MinAge             *int     `json:"minAge,omitempty"`
	MaxAge             *int     `json:"maxAge,omitempty"`
}

// ActiveScenario is a seeded check-active answer for one member+medicine pair.
type ActiveScenario struct {
	Active        bool    `json:"active"`
	Status        string  `json:"status,omitempty"`
	MemberType    string  `json:"memberType,omitempty"`
	Relation      string  `json:"relation,omitempty"`
	AllowedDate   *string `json:"allowedDate,omitempty"`
	RemainingDays *int    `json:"remainingDays,omitempty"`
	Duration      *int    `json:"duration,omitempty"`
}

// VisitRecord is a stored visit.
type VisitRecord struct {
	ID             string    `json:"id"`
	DoctorID       string    `json:"doctorId"`
	PatientID      string    `json:"patientId,omitempty"`
	FamilyMemberID string    `json:"familyMemberId,omitempty"`
	VisitDate      string    `json:"visitDate"`
	Notes          string    `json:"notes,omitempty"`
	VisitType      string    `json:"visitType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ResourceRecord is a stored prescription/lab/radiology creation.
type ResourceRecord struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	MemberName     string         `json:"memberName,omitempty"`
	MemberID       string         `json:"memberId,omitempty"`
	FamilyMemberID string         `json:"familyMemberId,omitempty"`
	Body           map[string]any `json:"body"`
}

// ClaimRecord is a stored claim submission.
type ClaimRecord struct {
	ID           string `json:"id"`
	Data         string `json:"data"`
	DocumentName string `json:"documentName,omitempty"`
}

// Notification is a stored notification.
type Notification struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Read    bool   `json:"read"`
}

// Doctor is the seeded identity returned by /api/doctors/me.
type Doctor struct {
	ID             string         `json:"id"`
	FullName       string         `json:"fullName"`
	Specialization map[string]any `json:"specialization"`
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server is the in-memory backend. All state is mutex-guarded; the zero
// value is not usable, construct with New and Seed.
type Server struct {
	mu sync.RWMutex

	clients       []Client
	invalidRoles  map[string]struct{} // employee/national ids that exist but are not clients
	familyMembers []FamilyMember
	medicines     []PricelistItem
	labTests      []PricelistItem
	radiology     []PricelistItem
	activeChecks  map[string]ActiveScenario // memberName + "/" + medicineID
	doctor        Doctor
	notifications []Notification
	yearlyVisits  map[string]int // subject id -> remaining

	visits    []VisitRecord
	resources []ResourceRecord
	claims    []ClaimRecord

	failPaths map[string]struct{} // paths forced to return 500

	hub *chatHub
}

// New creates an empty sandbox Server.
func New() *Server {
	return &Server{
		invalidRoles: make(map[string]struct{}),
		activeChecks: make(map[string]ActiveScenario),
		yearlyVisits: make(map[string]int),
		failPaths:    make(map[string]struct{}),
		hub:          newChatHub(),
	}
}

// SetFail forces the given path to return 500 until cleared. Used to exercise
// partial-failure behavior in tests.
func (s *Server) SetFail(path string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fail {
		s.failPaths[path] = struct{}{}
	} else {
		delete(s.failPaths, path)
	}
}

func (s *Server) failing(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.failPaths[path]
	return ok
}

// Visits returns a copy of all stored visits.
func (s *Server) Visits() []VisitRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VisitRecord, len(s.visits))
	copy(out, s.visits)
	return out
}

// Resources returns a copy of all stored resource creations.
func (s *Server) Resources() []ResourceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ResourceRecord, len(s.resources))
	copy(out, s.resources)
	return out
}

// ResourceCount returns how many resources of the given kind were created.
func (s *Server) ResourceCount(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.resources {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Claims returns a copy of all stored claim submissions.
func (s *Server) Claims() []ClaimRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ClaimRecord, len(s.claims))
	copy(out, s.claims)
	return out
}

// RegisterRoutes mounts every sandbox endpoint on the given Echo instance.
// extra handlers (such as a metrics exposition) can be mounted by the caller.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/clients/search/employeeId/:id", s.handleSearchByEmployeeID)
	e.GET("/api/clients/search/nationalId/:id", s.handleSearchByNationalID)
	e.GET("/api/family-members/client/:clientId", s.handleFamilyMembers)
	e.GET("/api/pricelist/medicine", s.handleMedicines)
	e.GET("/api/pricelist/lab/tests", s.handleLabTests)
	e.GET("/api/pricelist/radiology/tests", s.handleRadiologyTests)
	e.GET("/api/prescriptions/check-active/:memberName/:medicineId", s.handleCheckActive)
	e.GET("/api/doctors/me", s.handleDoctorMe)
	e.POST("/api/visits/create", s.handleCreateVisit)
	e.POST("/api/prescriptions/create", s.handleCreateResource("prescription"))
	e.POST("/api/labs/create", s.handleCreateResource("lab"))
	e.POST("/api/radiology/create", s.handleCreateResource("radiology"))
	e.POST("/api/healthcare-provider-claims/create", s.handleCreateClaim)
	e.GET("/api/notifications/unread-count", s.handleUnreadCount)
	e.PATCH("/api/notifications/:id/read", s.handleMarkRead)
	e.PATCH("/api/notifications/read-all", s.handleMarkAllRead)
	e.GET("/ws", s.handleChat)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleSearchByEmployeeID(c echo.Context) error {
	return s.search(c, func(cl Client) bool { return cl.EmployeeID == c.Param("id") })
}

func (s *Server) handleSearchByNationalID(c echo.Context) error {
	return s.search(c, func(cl Client) bool { return cl.NationalID == c.Param("id") })
}

func (s *Server) search(c echo.Context, match func(Client) bool) error {
	id := c.Param("id")

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.invalidRoles[id]; ok {
		return errorJSON(c, http.StatusForbidden, "INVALID_ROLE", "the identity is not an insurance client")
	}
	for _, cl := range s.clients {
		if match(cl) {
			return c.JSON(http.StatusOK, cl)
		}
	}
	return errorJSON(c, http.StatusNotFound, "NOT_FOUND", "no client matches the given id")
}

func (s *Server) handleFamilyMembers(c echo.Context) error {
	clientID := c.Param("clientId")

	s.mu.RLock()
	defer s.mu.RUnlock()

	// all statuses are returned; the portal filters to APPROVED
	out := make([]FamilyMember, 0)
	for _, m := range s.familyMembers {
		if m.ClientID == clientID {
			out = append(out, m)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleMedicines(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, s.medicines)
}

func (s *Server) handleLabTests(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, s.labTests)
}

func (s *Server) handleRadiologyTests(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, s.radiology)
}

func (s *Server) handleCheckActive(c echo.Context) error {
	key := c.Param("memberName") + "/" + c.Param("medicineId")

	s.mu.RLock()
	defer s.mu.RUnlock()

	if scenario, ok := s.activeChecks[key]; ok {
		return c.JSON(http.StatusOK, scenario)
	}
	return c.JSON(http.StatusOK, ActiveScenario{Active: false})
}

func (s *Server) handleDoctorMe(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, s.doctor)
}

type visitCreateBody struct {
	DoctorID       string `json:"doctorId"`
	VisitDate      string `json:"visitDate"`
	Notes          string `json:"notes"`
	PatientID      string `json:"patientId"`
	FamilyMemberID string `json:"familyMemberId"`
}

func (s *Server) handleCreateVisit(c echo.Context) error {
	if s.failing("/api/visits/create") {
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL", "visit service unavailable")
	}

	var body visitCreateBody
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "invalid visit body")
	}
	if (body.PatientID == "") == (body.FamilyMemberID == "") {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "exactly one of patientId/familyMemberId is required")
	}

	subject := body.PatientID
	if subject == "" {
		subject = body.FamilyMemberID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	visitType := "NORMAL"
	visitDate, dateErr := time.Parse("2006-01-02", body.VisitDate)
	for _, prior := range s.visits {
		if prior.DoctorID != body.DoctorID {
			continue
		}
		if prior.PatientID != body.PatientID || prior.FamilyMemberID != body.FamilyMemberID {
			continue
		}
		if dateErr != nil {
			continue
		}
		priorDate, err := time.Parse("2006-01-02", prior.VisitDate)
		if err != nil {
			continue
		}
		days := visitDate.Sub(priorDate).Hours() / 24
		if days >= 0 && days <= FollowUpWindowDays {
			visitType = "FOLLOW_UP"
			break
		}
	}

	remaining, ok := s.yearlyVisits[subject]
	if !ok {
		remaining = DefaultYearlyVisits
	}
	// follow-ups are exempt from the yearly allowance
	if visitType == "NORMAL" {
		if remaining <= 0 {
			return errorJSON(c, http.StatusConflict, "VISIT_LIMIT", "the yearly visit allowance is exhausted")
		}
		remaining--
		s.yearlyVisits[subject] = remaining
	}

	s.visits = append(s.visits, VisitRecord{
		ID:             uuid.New().String(),
		DoctorID:       body.DoctorID,
		PatientID:      body.PatientID,
		FamilyMemberID: body.FamilyMemberID,
		VisitDate:      body.VisitDate,
		Notes:          body.Notes,
		VisitType:      visitType,
		CreatedAt:      time.Now().UTC(),
	})

	return c.JSON(http.StatusCreated, map[string]any{
		"visitType":       visitType,
		"remainingVisits": remaining,
	})
}

func (s *Server) handleCreateResource(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Path()
		// echo's c.Path() keeps route params; these routes have none
		if s.failing(path) {
			return errorJSON(c, http.StatusInternalServerError, "INTERNAL", kind+" service unavailable")
		}

		var body map[string]any
		if err := c.Bind(&body); err != nil {
			return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "invalid "+kind+" body")
		}

		memberID, _ := body["memberId"].(string)
		familyMemberID, _ := body["familyMemberId"].(string)
		if (memberID == "") == (familyMemberID == "") {
			return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "exactly one of memberId/familyMemberId is required")
		}
		memberName, _ := body["memberName"].(string)

		s.mu.Lock()
		s.resources = append(s.resources, ResourceRecord{
			ID:             uuid.New().String(),
			Kind:           kind,
			MemberName:     memberName,
			MemberID:       memberID,
			FamilyMemberID: familyMemberID,
			Body:           body,
		})
		s.mu.Unlock()

		return c.JSON(http.StatusCreated, map[string]string{"status": "created"})
	}
}

func (s *Server) handleCreateClaim(c echo.Context) error {
	if s.failing("/api/healthcare-provider-claims/create") {
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL", "claims service unavailable")
	}

	data := c.FormValue("data")
	if data == "" || !strings.HasPrefix(strings.TrimSpace(data), "{") {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "the data field must hold a JSON claim")
	}

	record := ClaimRecord{ID: uuid.New().String(), Data: data}
	if fh, err := c.FormFile("document"); err == nil && fh != nil {
		record.DocumentName = fh.Filename
	}

	s.mu.Lock()
	s.claims = append(s.claims, record)
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, map[string]string{"id": record.ID})
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, note := range s.notifications {
		if !note.Read {
			n++
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) handleMarkRead(c echo.Context) error {
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return c.JSON(http.StatusOK, s.notifications[i])
		}
	}
	return errorJSON(c, http.StatusNotFound, "NOT_FOUND", "no such notification")
}

func (s *Server) handleMarkAllRead(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		s.notifications[i].Read = true
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
