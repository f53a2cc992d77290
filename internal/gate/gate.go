// Package gate implements the duplicate-request admission check.
//
// A request is identified by the fingerprint of its client id and payload.
// The first request with a given fingerprint is admitted and recorded in the
// cache for the configured TTL; any request with the same fingerprint while
// that record exists is rejected as a duplicate.
//
// By default the check and the record are two separate cache calls, so two
// concurrent identical requests can both be admitted. WithStrictAdmission
// switches to a single insert-if-absent call when the cache supports it.
package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"api-rate-validator/internal/cache"
	"api-rate-validator/internal/fingerprint"
	"api-rate-validator/internal/logging"
	"api-rate-validator/internal/metrics"
)

// ClientHeader names the header that carries the client id. Lookup is
// case-insensitive.
const ClientHeader = "client"

// Entry is the record stored under an admitted fingerprint.
type Entry struct {
	ClientID string `json:"clientId"`
	// milliseconds since the Unix epoch
	Timestamp int64 `json:"timestamp"`
}

// Admission describes an admitted request. It is handed to observers.
type Admission struct {
	Fingerprint string    `json:"fingerprint"`
	ClientID    string    `json:"clientId"`
	AdmittedAt  time.Time `json:"admittedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Observer is notified after each admission. Implementations must not block.
type Observer interface {
	Admitted(ctx context.Context, a Admission)
}

type Gate struct {
	cache     cache.Cache
	ttl       time.Duration
	strict    bool
	now       func() time.Time
	log       logr.Logger
	observers []Observer
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(log logr.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// WithStrictAdmission makes admission a single atomic insert-if-absent when
// the cache implements cache.Adder. Other caches keep get-then-set.
func WithStrictAdmission(strict bool) Option {
	return func(g *Gate) { g.strict = strict }
}

func WithObserver(o Observer) Option {
	return func(g *Gate) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// New creates a gate over c. Every admitted entry is written with ttl.
func New(c cache.Cache, ttl time.Duration, opts ...Option) *Gate {
	g := &Gate{
		cache: c,
		ttl:   ttl,
		now:   time.Now,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.WithName("gate")
	return g
}

func (g *Gate) TTL() time.Duration { return g.ttl }

// ClientID returns the trimmed value of the client header. Header names are
// matched case-insensitively, so both canonical http.Header keys and raw
// lower-case maps work. With several values the first one wins.
func ClientID(headers http.Header) (string, bool) {
	for name, values := range headers {
		if !strings.EqualFold(name, ClientHeader) || len(values) == 0 {
			continue
		}
		if id := strings.TrimSpace(values[0]); id != "" {
			return id, true
		}
	}
	return "", false
}

// Validate admits the request or explains why not. Failures are *Error.
func (g *Gate) Validate(ctx context.Context, payload fingerprint.Payload, headers http.Header) error {
	start := g.now()

	clientID, ok := ClientID(headers)
	if !ok {
		metrics.RecordDecision(metrics.OutcomeInvalid, g.now().Sub(start))
		return invalidRequest(start)
	}

	key := fingerprint.Generate(clientID, payload)
	log := g.log.WithValues("client", clientID, "fingerprint", key)

	var (
		admitted bool
		err      error
	)
	if adder, isAdder := g.cache.(cache.Adder); g.strict && isAdder {
		admitted, err = g.admitAtomically(ctx, adder, key, clientID, start)
	} else {
		admitted, err = g.checkThenAdmit(ctx, key, clientID, start)
	}

	now := g.now()
	switch {
	case err != nil:
		metrics.RecordDecision(metrics.OutcomeError, now.Sub(start))
		log.Error(err, "cache unavailable")
		return err
	case !admitted:
		metrics.RecordDecision(metrics.OutcomeDuplicate, now.Sub(start))
		log.V(logging.VERBOSE).Info("duplicate request rejected")
		return duplicateRequest(now)
	}

	metrics.RecordDecision(metrics.OutcomeAdmitted, now.Sub(start))
	log.V(logging.VERBOSE).Info("request admitted", "ttl", g.ttl)

	a := Admission{Fingerprint: key, ClientID: clientID, AdmittedAt: start, ExpiresAt: start.Add(g.ttl)}
	for _, o := range g.observers {
		o.Admitted(ctx, a)
	}
	return nil
}

func (g *Gate) checkThenAdmit(ctx context.Context, key, clientID string, at time.Time) (bool, error) {
	_, found, err := g.cache.Get(ctx, key)
	if err != nil {
		return false, backendUnavailable(g.now(), "get", err)
	}
	if found {
		return false, nil
	}
	if err := g.cache.Set(ctx, key, encodeEntry(clientID, at), g.ttl); err != nil {
		return false, backendUnavailable(g.now(), "set", err)
	}
	return true, nil
}

func (g *Gate) admitAtomically(ctx context.Context, adder cache.Adder, key, clientID string, at time.Time) (bool, error) {
	ok, err := adder.Add(ctx, key, encodeEntry(clientID, at), g.ttl)
	if err != nil {
		return false, backendUnavailable(g.now(), "add", err)
	}
	return ok, nil
}

func encodeEntry(clientID string, at time.Time) []byte {
	// a struct of a string and an int always marshals
	b, _ := json.Marshal(Entry{ClientID: clientID, Timestamp: at.UnixMilli()})
	return b
}
