package request

import (
	"context"
	"fmt"

	"github.com/unihealth/careportal/internal/platform/rest"
)

// RESTDoctorResolver fetches the logged-in doctor's identity and
// specialization profile from the backend.
type RESTDoctorResolver struct {
	client *rest.Client
}

// NewRESTDoctorResolver creates a resolver over the given transport.
func NewRESTDoctorResolver(client *rest.Client) *RESTDoctorResolver {
	return &RESTDoctorResolver{client: client}
}

// CurrentDoctor implements DoctorResolver.
func (r *RESTDoctorResolver) CurrentDoctor(ctx context.Context) (*Doctor, error) {
	var d Doctor
	if err := r.client.GetJSON(ctx, "/api/doctors/me", &d); err != nil {
		return nil, fmt.Errorf("fetch doctor profile: %w", err)
	}
	return &d, nil
}
