package conn

import (
	"log/slog"
	"time"

	gut "github.com/panyam/goutils/utils"

	"github.com/connkit/wsconn/backoff"
	"github.com/connkit/wsconn/transport"
)

// Config assembles a connection owner. Transport and Endpoint are
// required; everything else has a usable default.
type Config struct {
	// ID identifies the connection in logs, lifecycle events and the
	// registry. Auto-generated if empty.
	ID string

	// Endpoint is the remote identity to dial.
	Endpoint transport.Endpoint

	// Options is the transport-only connection configuration.
	Options transport.Options

	// Transport performs the actual socket work.
	Transport transport.Transport

	// Strategy governs reconnection delays and the retry budget.
	// Default: exponential, 1s initial, 30s cap, 20% jitter, unlimited
	// retries.
	Strategy backoff.Strategy

	// Handler receives the protocol callbacks. Default: BaseHandler.
	Handler Handler

	// Logger receives structured diagnostics. Default: slog.Default.
	Logger *slog.Logger

	// InboxSize is the owner mailbox capacity. Default: 64.
	InboxSize int
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.ID == "" {
		out.ID = gut.RandString(10, "")
	}
	if out.Strategy == nil {
		out.Strategy = backoff.NewExponential(time.Second, 30*time.Second, 0.2, backoff.Unlimited)
	}
	if out.Handler == nil {
		out.Handler = BaseHandler{}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.InboxSize <= 0 {
		out.InboxSize = 64
	}
	return &out
}
