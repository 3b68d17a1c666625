package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name   string
		ep     Endpoint
		secure bool
		want   string
	}{
		{"plain", Endpoint{Host: "example.com", Port: 8080, Path: "/ws"}, false, "ws://example.com:8080/ws"},
		{"secure", Endpoint{Host: "example.com", Port: 443, Path: "/ws"}, true, "wss://example.com:443/ws"},
		{"no port", Endpoint{Host: "example.com", Path: "/ws"}, true, "wss://example.com/ws"},
		{"no path", Endpoint{Host: "example.com", Port: 9000}, false, "ws://example.com:9000"},
		{"path without slash", Endpoint{Host: "example.com", Port: 9000, Path: "ws/v2"}, false, "ws://example.com:9000/ws/v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ep.URL(tt.secure))
		})
	}
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "example.com:443/ws", Endpoint{Host: "example.com", Port: 443, Path: "/ws"}.String())
	assert.Equal(t, "example.com/ws", Endpoint{Host: "example.com", Path: "/ws"}.String())
}

func TestEndpointFromURL(t *testing.T) {
	tests := []struct {
		in     string
		want   Endpoint
		secure bool
	}{
		{"http://example.com:8080/ws", Endpoint{Host: "example.com", Port: 8080, Path: "/ws"}, false},
		{"https://example.com/ws", Endpoint{Host: "example.com", Path: "/ws"}, true},
		{"ws://127.0.0.1:9777/echo", Endpoint{Host: "127.0.0.1", Port: 9777, Path: "/echo"}, false},
		{"wss://example.com:443/ws/", Endpoint{Host: "example.com", Port: 443, Path: "/ws"}, true},
	}
	for _, tt := range tests {
		ep, secure, err := EndpointFromURL(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, ep, "input %q", tt.in)
		assert.Equal(t, tt.secure, secure, "input %q", tt.in)
	}

	_, _, err := EndpointFromURL("ftp://example.com/ws")
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://example.com/ws", "ws://example.com/ws"},
		{"https://example.com/ws", "wss://example.com/ws"},
		{"https://example.com/ws/", "wss://example.com/ws"},
		{"ws://example.com/ws", "ws://example.com/ws"},
		{"wss://example.com/ws/", "wss://example.com/ws"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), "input %q", tt.in)
	}
}
