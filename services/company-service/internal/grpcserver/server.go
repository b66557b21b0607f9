//go:build protogen

package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	companyv1 "github.com/slotbook/slotbook/protos/gen/company/v1"
	"github.com/slotbook/slotbook/services/company-service/internal/storage"
)

type server struct {
	companyv1.UnimplementedCompanyServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	companyv1.RegisterCompanyServiceServer(grpcServer, &server{repo: repo})
}

// GetBookingPolicy returns the tenant's booking policy. Companies that
// never saved settings answer with configured=false so callers apply
// their own defaults.
func (s *server) GetBookingPolicy(ctx context.Context, req *companyv1.BookingPolicyRequest) (*companyv1.BookingPolicyResponse, error) {
	if req.GetCompanyId() == "" {
		return &companyv1.BookingPolicyResponse{Configured: false}, nil
	}

	settings, err := s.repo.GetSettings(ctx, req.GetCompanyId())
	if err != nil {
		if storage.IsNotFound(err) {
			return &companyv1.BookingPolicyResponse{Configured: false}, nil
		}
		return nil, err
	}

	return &companyv1.BookingPolicyResponse{
		Configured:        true,
		BufferTimeMinutes: int32(settings.BufferTimeMinutes),
		MinAdvanceMinutes: int32(settings.MinAdvanceMinutes),
		MaxAdvanceMinutes: int32(settings.MaxAdvanceMinutes),
		Timezone:          settings.Timezone,
	}, nil
}

// GetWorkingHours returns a provider's ranges for one weekday. A day off
// is an empty range list, not an error.
func (s *server) GetWorkingHours(ctx context.Context, req *companyv1.WorkingHoursRequest) (*companyv1.WorkingHoursResponse, error) {
	if req.GetProviderId() == "" || req.GetWeekday() < 0 || req.GetWeekday() > 6 {
		return &companyv1.WorkingHoursResponse{}, nil
	}

	rows, err := s.repo.WorkingHoursForWeekday(ctx, req.GetProviderId(), int(req.GetWeekday()))
	if err != nil {
		return nil, err
	}

	resp := &companyv1.WorkingHoursResponse{}
	for _, wh := range rows {
		resp.Ranges = append(resp.Ranges, &companyv1.ClockRange{
			StartTime: wh.StartTime,
			EndTime:   wh.EndTime,
		})
	}
	return resp, nil
}
