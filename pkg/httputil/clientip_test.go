package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasktrack/pkg/contextkeys"
)

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.10 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	assert.Len(t, proxies, 3)
	assert.True(t, proxies.trusts("10.1.2.3"))
	assert.True(t, proxies.trusts("192.0.2.10"))
	assert.False(t, proxies.trusts("192.0.2.11"))
	assert.True(t, proxies.trusts("2001:db8::1"))
	assert.True(t, proxies.trusts("::ffff:10.0.0.1"))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted TrustedProxies
		remote  string
		xff     string
		xri     string
		want    string
	}{
		{name: "no proxies configured ignores headers", remote: "198.51.100.1:1234", xff: "203.0.113.5", xri: "203.0.113.6", want: "198.51.100.1"},
		{name: "untrusted peer ignores headers", trusted: proxies, remote: "198.51.100.1:1234", xff: "203.0.113.5", want: "198.51.100.1"},
		{name: "trusted peer with forwarded chain", trusted: proxies, remote: "10.0.0.2:1234", xff: "203.0.113.5", want: "203.0.113.5"},
		{name: "spoofed left hops are skipped", trusted: proxies, remote: "10.0.0.2:1234", xff: "1.2.3.4, 203.0.113.5, 10.0.0.3", want: "203.0.113.5"},
		{name: "all hops trusted takes the leftmost", trusted: proxies, remote: "10.0.0.2:1234", xff: "10.0.0.9, 10.0.0.3", want: "10.0.0.9"},
		{name: "trusted peer with real ip", trusted: proxies, remote: "10.0.0.2:1234", xri: "203.0.113.6", want: "203.0.113.6"},
		{name: "trusted peer without headers", trusted: proxies, remote: "10.0.0.2:1234", want: "10.0.0.2"},
		{name: "remote without port", remote: "198.51.100.1", want: "198.51.100.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, tt.trusted.ClientIP(req))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var got string
	handler := ClientIPMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = contextkeys.GetClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.1", got)
}
