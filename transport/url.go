package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// URL renders the endpoint as a dialable WebSocket URL.
//
// Example:
//
//	Endpoint{Host: "example.com", Port: 443, Path: "/ws"}.URL(true)
//	// "wss://example.com:443/ws"
func (e Endpoint) URL(secure bool) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	path := e.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if e.Port > 0 {
		return fmt.Sprintf("%s://%s:%d%s", scheme, e.Host, e.Port, path)
	}
	return fmt.Sprintf("%s://%s%s", scheme, e.Host, path)
}

// String renders the endpoint without a scheme, for logs.
func (e Endpoint) String() string {
	if e.Port > 0 {
		return fmt.Sprintf("%s:%d%s", e.Host, e.Port, e.Path)
	}
	return e.Host + e.Path
}

// NormalizeURL converts an HTTP(S) URL to its WebSocket equivalent.
// It performs the following transformations:
//   - Removes trailing slashes
//   - Converts "http:" to "ws:"
//   - Converts "https:" to "wss:"
//
// URLs that are already WebSocket URLs (ws: or wss:) are returned
// unchanged after removing any trailing slash.
// EndpointFromURL parses an http(s) or ws(s) URL into an Endpoint,
// normalizing the scheme first. The second return reports whether the
// URL selects a TLS transport (https or wss).
func EndpointFromURL(raw string) (Endpoint, bool, error) {
	u, err := url.Parse(NormalizeURL(raw))
	if err != nil {
		return Endpoint{}, false, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Endpoint{}, false, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, false, fmt.Errorf("invalid port in %q: %w", raw, err)
		}
	}
	return Endpoint{Host: u.Hostname(), Port: port, Path: u.Path}, u.Scheme == "wss", nil
}

func NormalizeURL(httpOrWsUrl string) string {
	if strings.HasSuffix(httpOrWsUrl, "/") {
		httpOrWsUrl = httpOrWsUrl[:len(httpOrWsUrl)-1]
	}
	if strings.HasPrefix(httpOrWsUrl, "http:") {
		httpOrWsUrl = "ws:" + httpOrWsUrl[len("http:"):]
	}
	if strings.HasPrefix(httpOrWsUrl, "https:") {
		httpOrWsUrl = "wss:" + httpOrWsUrl[len("https:"):]
	}
	return httpOrWsUrl
}
