// Command wsdemo runs a local echo server and drives a resilient client
// against it. Kill and restart the server while the demo runs to watch
// the reconnection governor redial with backoff and replay the
// subscription.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gut "github.com/panyam/goutils/utils"
	"gopkg.in/yaml.v3"

	"github.com/connkit/wsconn/backoff"
	"github.com/connkit/wsconn/conn"
	"github.com/connkit/wsconn/registry"
	"github.com/connkit/wsconn/transport"
)

type demoConfig struct {
	// URL, when set, overrides Host/Port/Path; http(s) schemes are
	// normalized to ws(s).
	URL string `yaml:"url"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`

	PingPeriod time.Duration `yaml:"ping_period"`

	Backoff struct {
		Kind       string        `yaml:"kind"`
		Initial    time.Duration `yaml:"initial"`
		Max        time.Duration `yaml:"max"`
		Jitter     float64       `yaml:"jitter"`
		MaxRetries int           `yaml:"max_retries"`
	} `yaml:"backoff"`
}

func defaultConfig() demoConfig {
	var c demoConfig
	c.Host = "127.0.0.1"
	c.Port = 9777
	c.Path = "/echo"
	c.PingPeriod = 15 * time.Second
	c.Backoff.Kind = "exponential"
	c.Backoff.Initial = time.Second
	c.Backoff.Max = 15 * time.Second
	c.Backoff.Jitter = 0.2
	return c
}

func loadConfig(path string) (demoConfig, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.URL != "" {
		ep, secure, err := transport.EndpointFromURL(c.URL)
		if err != nil {
			return c, err
		}
		if secure {
			return c, fmt.Errorf("%s: the demo server only speaks plain ws", c.URL)
		}
		c.Host, c.Port, c.Path = ep.Host, ep.Port, ep.Path
	}
	return c, nil
}

func (c demoConfig) strategy() backoff.Strategy {
	b := c.Backoff
	switch b.Kind {
	case "constant":
		return backoff.NewConstant(b.Initial, b.MaxRetries)
	case "linear":
		return backoff.NewLinear(b.Initial, b.Jitter, b.MaxRetries)
	default:
		return backoff.NewExponential(b.Initial, b.Max, b.Jitter, b.MaxRetries)
	}
}

// ============================================================================
// Echo server
// ============================================================================

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func runServer(c demoConfig) {
	r := mux.NewRouter()
	r.HandleFunc(c.Path, func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		log.Println("server: client connected from", req.RemoteAddr)
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				log.Println("server: client gone:", err)
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	log.Println("server: listening on", addr)
	srv := http.Server{Addr: addr, Handler: r}
	log.Fatal(srv.ListenAndServe())
}

// ============================================================================
// Client
// ============================================================================

// demoHandler re-subscribes after every upgrade and prints what comes
// back.
type demoHandler struct {
	conn.BaseHandler
	logger *slog.Logger
}

func (h *demoHandler) OnSubscriptionReplay() []transport.Frame {
	sub, _ := json.Marshal(gut.StrMap{"op": "subscribe", "channel": "ticks"})
	return []transport.Frame{{Kind: transport.TextFrame, Data: sub}}
}

func (h *demoHandler) OnMessage(stream string, frame transport.Frame) conn.Reaction {
	h.logger.Info("echo received", "stream", stream, "payload", string(frame.Data))
	return conn.Reaction{}
}

func (h *demoHandler) OnError(err error) {
	h.logger.Error("connection failed terminally", "error", err)
}

func runClient(c demoConfig, logger *slog.Logger) {
	tr := transport.NewWS(&transport.WSConfig{
		PingPeriod:   c.PingPeriod,
		WriteTimeout: 10 * time.Second,
	}, logger)

	owner, err := conn.NewOwner(&conn.Config{
		ID:        "wsdemo",
		Endpoint:  transport.Endpoint{Host: c.Host, Port: c.Port, Path: c.Path},
		Transport: tr,
		Strategy:  c.strategy(),
		Handler:   &demoHandler{logger: logger},
		Logger:    logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	reg := registry.New(logger)
	if err := reg.Register(owner.ID(), owner); err != nil {
		log.Fatal(err)
	}

	events := make(chan conn.LifecycleEvent, 64)
	owner.Observe(events)
	go func() {
		for ev := range events {
			logger.Info("lifecycle", "kind", ev.Kind.String(), "gen", ev.Generation,
				"attempt", ev.Attempt, "delay", ev.Delay)
		}
	}()

	if err := owner.Connect(); err != nil {
		log.Fatal(err)
	}

	// Send a heartbeat message every second; sends simply fail with
	// ErrNotConnected while the governor is between transports.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		seq := 0
		for range ticker.C {
			seq++
			msg, _ := json.Marshal(gut.StrMap{"op": "ping", "seq": seq, "at": time.Now().Format(time.RFC3339)})
			if err := owner.Send("", transport.Frame{Kind: transport.TextFrame, Data: msg}); err != nil {
				logger.Debug("send skipped", "error", err)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
		logger.Info("interrupted, closing")
		owner.Close()
	case <-owner.Done():
	}
	reg.Deregister(owner.ID())
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	serve := flag.Bool("serve", false, "run the echo server instead of the client")
	flag.Parse()

	c, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if *serve {
		runServer(c)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	runClient(c, logger)
}
