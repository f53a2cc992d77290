// Package loadtest drives load against a running validator and reports
// latency and status figures.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"api-rate-validator/internal/config"
	"api-rate-validator/internal/logging"
)

type Config struct {
	URL        string
	ClientID   string
	Concurrent int
	Total      int
	// Ramp spreads the requests over this duration; zero means constant
	// concurrency.
	Ramp    time.Duration
	Timeout time.Duration
	// Progress, if set, is called once a second while the run lasts.
	Progress func(done, total int, elapsed time.Duration)
}

func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Concurrent <= 0 {
		errs = append(errs, fmt.Errorf("concurrent must be positive, got %d", c.Concurrent))
	}
	if c.Total <= 0 {
		errs = append(errs, fmt.Errorf("total must be positive, got %d", c.Total))
	}
	if c.Ramp < 0 {
		errs = append(errs, fmt.Errorf("ramp must not be negative, got %s", c.Ramp))
	}
	return errors.Join(errs...)
}

type Runner struct {
	cfg    Config
	client *http.Client
	log    logr.Logger
}

func NewRunner(cfg Config, log logr.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Transport: config.NewHTTPTransport(), Timeout: cfg.Timeout},
		log:    log.WithName("loadtest"),
	}
}

// CheckConnection reports whether POST /health answers within two seconds.
func (r *Runner) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect %s: %w", r.cfg.URL, err)
	}
	_ = resp.Body.Close()
	return nil
}

// Run sends Total requests and returns the collected figures.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if err := r.cfg.Validate(); err != nil {
		return Summary{}, err
	}
	stats := NewStats()
	start := time.Now()

	if r.cfg.Progress != nil {
		stopProgress := make(chan struct{})
		defer close(stopProgress)
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.cfg.Progress(stats.Total(), r.cfg.Total, time.Since(start))
				case <-stopProgress:
					return
				}
			}
		}()
	}

	var err error
	if r.cfg.Ramp > 0 {
		err = r.runRamp(ctx, stats)
	} else {
		err = r.runConstant(ctx, stats)
	}
	return stats.Summarize(time.Since(start)), err
}

// runConstant keeps Concurrent workers busy until Total requests are sent.
func (r *Runner) runConstant(ctx context.Context, stats *Stats) error {
	var sent atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for range r.cfg.Concurrent {
		g.Go(func() error {
			for {
				id := sent.Add(1)
				if id > int64(r.cfg.Total) || ctx.Err() != nil {
					return nil
				}
				r.send(ctx, stats, id)
			}
		})
	}
	return g.Wait()
}

// runRamp paces request starts evenly over Ramp with at most Concurrent in
// flight.
func (r *Runner) runRamp(ctx context.Context, stats *Stats) error {
	perSecond := float64(r.cfg.Total) / r.cfg.Ramp.Seconds()
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrent)
	for i := 1; i <= r.cfg.Total; i++ {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		id := int64(i)
		g.Go(func() error {
			r.send(gctx, stats, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type requestBody struct {
	RequestID int64  `json:"requestId"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data"`
}

func (r *Runner) send(ctx context.Context, stats *Stats, id int64) {
	start := time.Now()
	body, _ := json.Marshal(requestBody{
		RequestID: id,
		Timestamp: start.UnixMilli(),
		Data:      fmt.Sprintf("load-test-%d", id),
	})

	status, err := r.post(ctx, r.cfg.ClientID, body)
	if err != nil {
		r.log.V(logging.VERBOSE).Info("request failed", "id", id, "err", err.Error())
	}
	stats.Record(status, time.Since(start))
}

func (r *Runner) post(ctx context.Context, client string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+"/validate", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if client != "" {
		req.Header.Set("client", client)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
