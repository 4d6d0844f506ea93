//go:build !mdns

package mcpserver

import (
	"context"

	"webscout/internal/domain"
)

// Advertise is unavailable without the mdns build tag.
func (s *Server) Advertise(_ context.Context) error {
	return domain.NewDomainError("Server.Advertise", domain.ErrDisabled, "built without the mdns tag")
}
