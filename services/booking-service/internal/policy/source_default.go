//go:build !protogen

package policy

import "log/slog"

// NewCompanyConfigSource returns the local store-backed source. The gRPC
// path to company-service requires generated protos (protogen build tag).
func NewCompanyConfigSource(_ *slog.Logger, local Source, _ string) (Source, error) {
	return local, nil
}
