package tool

import (
	"errors"
	"strings"

	"webscout/internal/domain"
)

// transientMarkers are matched case-insensitively against untyped errors, such
// as those a remote MCP index reports as plain text.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"unexpected eof",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"bad gateway",
	"too many requests",
}

// classifyToolError reports whether a failed call is worth repeating later.
// Blocked URLs and bad input never are, whatever their message says.
func classifyToolError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrSSRFBlocked), errors.Is(err, domain.ErrInvalidInput):
		return false
	case domain.IsRetryableError(err):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
