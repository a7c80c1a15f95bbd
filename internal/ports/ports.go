// Package ports picks free loopback ports for the daemon's API and gateway
// listeners.
//
// Candidates are probed in ascending order with an HTTP GET. A port counts as
// taken when anything answers with a status in 200-499; connection errors and
// 5xx answers leave it available. Ranges are never widened: an exhausted
// range is reported as services.ErrNoPortAvailable.
package ports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"planet/internal/logging"
	"planet/internal/services"
)

// Range is an inclusive port range.
type Range struct {
	Min uint16
	Max uint16
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Prober reports whether a loopback port is free for the daemon to bind.
type Prober interface {
	Available(ctx context.Context, port uint16) bool
}

// HTTPProber probes ports with a GET to http://<host>:<port>.
type HTTPProber struct {
	Host    string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProber returns a prober against 127.0.0.1 with the given timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HTTPProber{
		Host:    "127.0.0.1",
		Client:  &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }},
		Timeout: timeout,
	}
}

// Available implements Prober.
func (p *HTTPProber) Available(ctx context.Context, port uint16) bool {
	reqCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://%s:%d", p.Host, port), nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode < 200 || resp.StatusCode > 499
}

// Negotiator selects the API and gateway ports.
type Negotiator struct {
	prober  Prober
	api     Range
	gateway Range
	swarm   uint16
	logger  *slog.Logger
}

// New builds a negotiator. The swarm port is never handed out.
func New(prober Prober, api, gateway Range, swarm uint16, logger *slog.Logger) *Negotiator {
	return &Negotiator{
		prober:  prober,
		api:     api,
		gateway: gateway,
		swarm:   swarm,
		logger:  logging.NewComponentLogger(logger, "ports"),
	}
}

// Negotiate scans the API range and then the gateway range and returns the
// first available port of each.
func (n *Negotiator) Negotiate(ctx context.Context) (api, gateway uint16, err error) {
	api, err = n.scan(ctx, "api", n.api, n.swarm)
	if err != nil {
		return 0, 0, err
	}
	gateway, err = n.scan(ctx, "gateway", n.gateway, n.swarm, api)
	if err != nil {
		return 0, 0, err
	}
	n.logger.Info("ports negotiated",
		logging.Port("api_port", api),
		logging.Port("gateway_port", gateway),
		logging.String(logging.FieldEventType, "ports_negotiated"),
	)
	return api, gateway, nil
}

func (n *Negotiator) scan(ctx context.Context, name string, r Range, skip ...uint16) (uint16, error) {
	for port := int(r.Min); port <= int(r.Max); port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		candidate := uint16(port)
		if contains(skip, candidate) {
			continue
		}
		if n.prober.Available(ctx, candidate) {
			return candidate, nil
		}
		n.logger.Debug("port occupied", logging.String("listener", name), logging.Int("port", port))
	}
	return 0, services.Wrap(services.ErrNoPortAvailable, "ports", name,
		fmt.Sprintf("every port in %s is in use", r), nil)
}

func contains(values []uint16, v uint16) bool {
	for _, candidate := range values {
		if candidate != 0 && candidate == v {
			return true
		}
	}
	return false
}
