// Package health probes collaborator services and merges the results into a
// single report.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/example/promptpack/api-go/internal/config"
	"github.com/example/promptpack/api-go/internal/model"
)

// maxPayloadBytes caps the body decoded for informational probes.
const maxPayloadBytes = 64 << 10

// Collaborator is one probe target with its own timeout.
type Collaborator struct {
	Name    string
	URL     string
	Timeout time.Duration
	// ExpectOK accepts only 200; otherwise any status below 500 is reachable.
	ExpectOK bool
	// Info decodes the JSON response body into ProbeResult.Payload.
	Info bool
}

// Config is passed explicitly so timeouts stay per-collaborator and testable.
type Config struct {
	Collaborators []Collaborator
	// Client is used for every probe. It should carry no overall Timeout;
	// each probe is bounded by its own context.
	Client *http.Client
}

// FromConfig converts application configuration into checker configuration.
func FromConfig(cfg config.Config) Config {
	cols := make([]Collaborator, 0, len(cfg.Collaborators))
	for _, c := range cfg.Collaborators {
		cols = append(cols, Collaborator{
			Name:     c.Name,
			URL:      c.URL,
			Timeout:  c.Timeout(cfg.ProbeTimeout),
			ExpectOK: c.Expect == config.ExpectOK,
			Info:     c.Info,
		})
	}
	return Config{Collaborators: cols}
}

type Checker struct {
	cfg Config
	log logrus.FieldLogger
	now func() time.Time
}

func NewChecker(cfg Config, log logrus.FieldLogger) *Checker {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	for i := range cfg.Collaborators {
		if cfg.Collaborators[i].Timeout <= 0 {
			cfg.Collaborators[i].Timeout = config.DefaultProbeTimeout
		}
	}
	return &Checker{cfg: cfg, log: log, now: time.Now}
}

// CheckAll probes every collaborator in parallel. It never fails: an
// unreachable collaborator only degrades its own entry. It returns once every
// probe has finished or hit its timeout.
func (c *Checker) CheckAll(ctx context.Context) model.HealthReport {
	results := make([]model.ProbeResult, len(c.cfg.Collaborators))

	var g errgroup.Group
	for i, col := range c.cfg.Collaborators {
		g.Go(func() error {
			results[i] = c.probe(ctx, col)
			return nil
		})
	}
	_ = g.Wait()

	report := model.HealthReport{
		Time:          c.now().UTC(),
		Self:          true,
		Collaborators: make(map[string]model.ProbeResult, len(results)),
	}
	for i, col := range c.cfg.Collaborators {
		report.Collaborators[col.Name] = results[i]
	}
	return report
}

func (c *Checker) probe(ctx context.Context, col Collaborator) model.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, col.Timeout)
	defer cancel()

	start := time.Now()
	res, err := c.do(ctx, col)
	res.Latency = time.Since(start)
	if err != nil {
		res.Reachable = false
		res.Error = err.Error()
		c.log.WithFields(logrus.Fields{
			"collaborator": col.Name,
			"latency":      res.Latency.String(),
		}).WithError(err).Debug("health: probe failed")
	}
	return res
}

func (c *Checker) do(ctx context.Context, col Collaborator) (model.ProbeResult, error) {
	var res model.ProbeResult

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, col.URL, nil)
	if err != nil {
		return res, fmt.Errorf("%w: build request: %v", model.ErrProbeUnreachable, err)
	}
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return res, classify(ctx, err)
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if col.ExpectOK {
		res.Reachable = resp.StatusCode == http.StatusOK
	} else {
		res.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 500
	}

	if col.Info && res.Reachable {
		var payload any
		dec := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes))
		if err := dec.Decode(&payload); err != nil {
			if ctx.Err() != nil {
				return res, classify(ctx, err)
			}
		} else {
			res.Payload = payload
		}
	}
	return res, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return model.ErrProbeTimeout
	}
	return model.ErrProbeUnreachable
}
