//go:build protogen

package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/slotbook/slotbook/libs/grpcx"
	companyv1 "github.com/slotbook/slotbook/protos/gen/company/v1"
)

type grpcSource struct {
	client companyv1.CompanyServiceClient
}

// NewCompanyConfigSource dials company-service for tenant configuration,
// falling back to the local store when no address is configured or the
// dial fails at startup.
func NewCompanyConfigSource(logger *slog.Logger, local Source, addr string) (Source, error) {
	if addr == "" {
		return local, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc config source unavailable, using local store", "err", err)
		return local, nil
	}

	logger.Info("grpc config source enabled", "addr", addr)
	return &grpcSource{client: companyv1.NewCompanyServiceClient(conn)}, nil
}

func (s *grpcSource) BookingPolicy(ctx context.Context, companyID string) (RawPolicy, error) {
	resp, err := s.client.GetBookingPolicy(ctx, &companyv1.BookingPolicyRequest{CompanyId: companyID})
	if err != nil {
		return RawPolicy{}, err
	}
	if !resp.GetConfigured() {
		return RawPolicy{}, ErrNotConfigured
	}
	return RawPolicy{
		BufferTimeMinutes: int(resp.GetBufferTimeMinutes()),
		MinAdvanceMinutes: int(resp.GetMinAdvanceMinutes()),
		MaxAdvanceMinutes: int(resp.GetMaxAdvanceMinutes()),
		Timezone:          resp.GetTimezone(),
	}, nil
}

func (s *grpcSource) WorkingHours(ctx context.Context, providerID string, weekday time.Weekday) ([]ClockRange, error) {
	resp, err := s.client.GetWorkingHours(ctx, &companyv1.WorkingHoursRequest{
		ProviderId: providerID,
		Weekday:    int32(weekday),
	})
	if err != nil {
		return nil, err
	}
	ranges := make([]ClockRange, 0, len(resp.GetRanges()))
	for _, r := range resp.GetRanges() {
		ranges = append(ranges, ClockRange{Start: r.GetStartTime(), End: r.GetEndTime()})
	}
	return ranges, nil
}
