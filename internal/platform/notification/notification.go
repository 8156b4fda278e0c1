// Package notification polls the backend's unread-notification count on a
// fixed interval and exposes the read/read-all operations. Polling tolerates
// overlapping in-flight requests; the interval itself is the only debounce.
package notification

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/unihealth/careportal/internal/platform/rest"
)

// Count is the unread-count response.
type Count struct {
	Unread int `json:"unread"`
}

// Transport abstracts the REST client for testability.
type Transport interface {
	GetJSON(ctx context.Context, path string, out any) error
	PatchJSON(ctx context.Context, path string, in, out any) error
}

// Service wraps the notification endpoints.
type Service struct {
	client Transport
	logger zerolog.Logger
}

// NewService creates a notification Service.
func NewService(client *rest.Client, logger zerolog.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// NewServiceWith creates a Service over any Transport (used in tests).
func NewServiceWith(t Transport, logger zerolog.Logger) *Service {
	return &Service{client: t, logger: logger}
}

// UnreadCount fetches the current unread notification count.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	var c Count
	if err := s.client.GetJSON(ctx, "/api/notifications/unread-count", &c); err != nil {
		return 0, fmt.Errorf("fetch unread count: %w", err)
	}
	return c.Unread, nil
}

// MarkRead marks one notification as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	path := "/api/notifications/" + url.PathEscape(id) + "/read"
	if err := s.client.PatchJSON(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification as read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	if err := s.client.PatchJSON(ctx, "/api/notifications/read-all", nil, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Poller drives UnreadCount on a fixed ticker.
type Poller struct {
	service  *Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a Poller with the given fixed interval.
func NewPoller(service *Service, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{service: service, interval: interval, logger: logger}
}

// Run polls until ctx is done, invoking fn with each fetched count. An
// initial poll fires immediately. Poll errors are logged and skipped; they
// never stop the loop.
func (p *Poller) Run(ctx context.Context, fn func(unread int)) {
	poll := func() {
		count, err := p.service.UnreadCount(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("notification poll failed")
			}
			return
		}
		fn(count)
	}

	poll()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
