package agent

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// Endpoint is a service base url which answered its health probe
type Endpoint struct {
	BaseURL   string
	CheckedAt time.Time
}

// URL joins path to the endpoint base url
func (e Endpoint) URL(path string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// EndpointResolver finds the first reachable service among a list of candidates
type EndpointResolver struct {
	candidates   []string
	client       *http.Client
	probeTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// NewEndpointResolver candidates are base urls like http://localhost:3000/api, probed in order
func NewEndpointResolver(candidates []string, probeTimeout time.Duration, logger *log.Logger) *EndpointResolver {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &EndpointResolver{
		candidates:   candidates,
		client:       &http.Client{},
		probeTimeout: probeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Resolve probes {base}/health of every candidate, the first answering 2xx wins
func (r *EndpointResolver) Resolve(ctx context.Context) (Endpoint, error) {
	for _, candidate := range r.candidates {
		endpoint := Endpoint{BaseURL: candidate}
		if err := r.probe(ctx, endpoint); err != nil {
			r.logger.Printf("Endpoint %s unreachable: %s", candidate, err)
			continue
		}
		endpoint.CheckedAt = r.now()
		return endpoint, nil
	}
	return Endpoint{}, fmt.Errorf("%w: none of the %d endpoints answered", ErrNetwork, len(r.candidates))
}

func (r *EndpointResolver) probe(ctx context.Context, endpoint Endpoint) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint.URL("health"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health responded with status %d", resp.StatusCode)
	}
	return nil
}
