package catalog

import (
	"context"
	"fmt"

	"github.com/unihealth/careportal/internal/platform/rest"
)

// Fetcher abstracts the transport so the service can be tested with a double.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Service fetches pricelists from the claims backend.
type Service struct {
	client Fetcher
}

// NewService creates a catalog Service over the given transport.
func NewService(client *rest.Client) *Service {
	return &Service{client: client}
}

// NewServiceWith creates a Service over any Fetcher (used in tests).
func NewServiceWith(f Fetcher) *Service {
	return &Service{client: f}
}

// Medicines fetches the medicine pricelist.
func (s *Service) Medicines(ctx context.Context) ([]Item, error) {
	return s.fetch(ctx, "/api/pricelist/medicine", KindMedicine)
}

// LabTests fetches the lab test pricelist.
func (s *Service) LabTests(ctx context.Context) ([]Item, error) {
	return s.fetch(ctx, "/api/pricelist/lab/tests", KindLabTest)
}

// RadiologyTests fetches the radiology test pricelist.
func (s *Service) RadiologyTests(ctx context.Context) ([]Item, error) {
	return s.fetch(ctx, "/api/pricelist/radiology/tests", KindRadiology)
}

func (s *Service) fetch(ctx context.Context, path string, kind ItemKind) ([]Item, error) {
	var items []Item
	if err := s.client.GetJSON(ctx, path, &items); err != nil {
		return nil, fmt.Errorf("fetch %s pricelist: %w", kind, err)
	}
	for i := range items {
		items[i].Kind = kind
	}
	return items, nil
}
