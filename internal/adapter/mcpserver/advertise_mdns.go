//go:build mdns

package mcpserver

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_mcp._tcp"
	mdnsDomain      = "local."
)

// Advertise announces the HTTP endpoint on the local network via mDNS/DNS-SD.
// It waits for ServeHTTP to bind, then blocks until ctx is cancelled.
func (s *Server) Advertise(ctx context.Context) error {
	port, err := s.advertisePort(ctx)
	if err != nil {
		return err
	}

	srv, err := zeroconf.Register(s.cfg.MDNS.Instance, mdnsServiceType, mdnsDomain, port, s.advertiseTXT(), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	s.logger.Info("mdns advertising", "instance", s.cfg.MDNS.Instance, "service", mdnsServiceType, "port", port)
	<-ctx.Done()
	srv.Shutdown()
	return nil
}
