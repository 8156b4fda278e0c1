package integration

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/unihealth/careportal/internal/platform/metrics"
	"github.com/unihealth/careportal/internal/platform/rest"
	"github.com/unihealth/careportal/internal/platform/sandbox"
	"github.com/unihealth/careportal/internal/session"
)

// portal bundles a running sandbox backend with a configured REST client,
// the way a logged-in doctor session would see them.
type portal struct {
	Backend *sandbox.Server
	Client  *rest.Client
	Metrics *metrics.Metrics
	BaseURL string
}

func newPortal(t *testing.T) *portal {
	t.Helper()

	backend := sandbox.New()
	backend.Seed()

	e := echo.New()
	backend.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	sess := session.New("d1", "sandbox-token")
	m := metrics.New()
	logger := zerolog.Nop()
	client := rest.NewClient(srv.URL, sess, logger, rest.WithMetrics(m))

	return &portal{Backend: backend, Client: client, Metrics: m, BaseURL: srv.URL}
}

// wsURL converts the portal's HTTP base URL into the sandbox chat endpoint.
func (p *portal) wsURL() string {
	return strings.Replace(p.BaseURL, "http://", "ws://", 1) + "/ws"
}
