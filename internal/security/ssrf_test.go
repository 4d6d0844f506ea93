package security

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscout/internal/domain"
)

func TestIsPrivateIP(t *testing.T) {
	blocked := []string{
		"10.0.0.1", "172.16.0.1", "172.31.255.255", "192.168.1.1",
		"127.0.0.1", "169.254.169.254", "0.0.0.0", "100.64.0.1",
		"224.0.0.1", "::1", "::", "fd00::1", "fe80::1", "::ffff:127.0.0.1",
	}
	for _, s := range blocked {
		ip := net.ParseIP(s)
		require.NotNil(t, ip, s)
		assert.True(t, IsPrivateIP(ip), "IsPrivateIP(%s)", s)
	}

	public := []string{"8.8.8.8", "1.1.1.1", "142.250.80.46", "2607:f8b0:4004:800::200e"}
	for _, s := range public {
		assert.False(t, IsPrivateIP(net.ParseIP(s)), "IsPrivateIP(%s)", s)
	}
}

func TestIsPrivateIPInvalid(t *testing.T) {
	assert.True(t, IsPrivateIP(net.IP{1, 2, 3}))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		blocked bool
	}{
		{"https://example.com/page", false},
		{"http://93.184.216.34/", false},
		{"http://127.0.0.1:8080/", true},
		{"http://[::1]/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"ftp://example.com/file", true},
		{"file:///etc/passwd", true},
		{"example.com", true},
		{"http://", true},
		{"http://%zz", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.blocked {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrSSRFBlocked))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSafeTransportBlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewSSRFSafeTransport()}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSSRFBlocked)
}
