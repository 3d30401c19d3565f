package terminology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// RemoteConfig configures a Remote client.
type RemoteConfig struct {
	// BaseURL is the FHIR base of the terminology server.
	BaseURL string
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker; it stays
	// open for OpenTimeout before letting a probe through.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultRemoteConfig returns conservative breaker settings for baseURL.
func DefaultRemoteConfig(baseURL string) RemoteConfig {
	return RemoteConfig{
		BaseURL:          baseURL,
		Timeout:          5 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Remote answers membership with ValueSet/$validate-code on a FHIR
// terminology server. Calls go through a circuit breaker; while it is
// open every lookup fails fast with ErrUnavailable.
type Remote struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewRemote creates a client. A nil httpClient gets one with cfg.Timeout.
func NewRemote(cfg RemoteConfig, httpClient *http.Client, logger zerolog.Logger) (*Remote, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("terminology base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	r := &Remote{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: httpClient,
		logger: logger.With().Str("component", "terminology").Logger(),
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "terminology",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		// A value set the server does not know is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnknownValueSet)
		},
	})
	return r, nil
}

// Contains calls $validate-code. Transport failures, 5xx responses and an
// open breaker return errors wrapping ErrUnavailable.
func (r *Remote) Contains(ctx context.Context, valueSet, system, code string) (bool, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.validateCode(ctx, valueSet, system, code)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return false, err
	}
	return out.(bool), nil
}

// State reports the breaker state ("closed", "open", "half-open").
func (r *Remote) State() string {
	return r.breaker.State().String()
}

func (r *Remote) validateCode(ctx context.Context, valueSet, system, code string) (bool, error) {
	q := url.Values{}
	q.Set("url", valueSet)
	q.Set("code", code)
	if system != "" {
		q.Set("system", system)
	}
	endpoint := r.base + "/ValueSet/$validate-code?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build $validate-code request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	r.logger.Debug().Str("value_set", valueSet).Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).Msg("$validate-code")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", ErrUnknownValueSet, valueSet)
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("$validate-code %s: unexpected status %d", valueSet, resp.StatusCode)
	}
	return parseValidateCodeResult(body)
}

// parseValidateCodeResult reads the "result" parameter of a Parameters
// resource.
func parseValidateCodeResult(body []byte) (bool, error) {
	params, err := fhir.ParseResource(body)
	if err != nil {
		return false, fmt.Errorf("decode $validate-code response: %w", err)
	}
	if params.Type() != "Parameters" {
		return false, fmt.Errorf("decode $validate-code response: got %s, want Parameters", params.Type())
	}
	for _, p := range params.Get("parameter").Items() {
		if p.FieldText("name") != "result" {
			continue
		}
		if b, ok := p.Field("valueBoolean").Raw().(bool); ok {
			return b, nil
		}
	}
	return false, errors.New("decode $validate-code response: no boolean result parameter")
}
