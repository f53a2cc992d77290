package loadtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SmokeResult is the outcome of one smoke scenario.
type SmokeResult struct {
	Name     string
	Want     int
	Got      int
	Duration time.Duration
	Err      error
}

func (r SmokeResult) Passed() bool { return r.Err == nil && r.Got == r.Want }

type smokeStep struct {
	client string
	body   string
	pause  time.Duration
}

type smokeScenario struct {
	name  string
	steps []smokeStep
	// expected status of the last step
	want int
}

// Smoke runs the functional checks against a live server. ttlWait must
// exceed the server's cache TTL. Bodies carry a per-run nonce so repeated
// runs do not collide.
func (r *Runner) Smoke(ctx context.Context, ttlWait time.Duration) []SmokeResult {
	nonce := time.Now().UnixNano()
	body := func(data string) string {
		return fmt.Sprintf(`{"key":"value","data":%q,"run":%d}`, data, nonce)
	}

	scenarios := []smokeScenario{
		{
			name:  "first request admitted",
			steps: []smokeStep{{client: "client-001", body: body("test")}},
			want:  http.StatusOK,
		},
		{
			name: "duplicate within window rejected",
			steps: []smokeStep{
				{client: "client-001", body: body("dup")},
				{client: "client-001", body: body("dup"), pause: 100 * time.Millisecond},
			},
			want: http.StatusConflict,
		},
		{
			name:  "missing client header rejected",
			steps: []smokeStep{{body: body("no-client")}},
			want:  http.StatusBadRequest,
		},
		{
			name: "same body from another client admitted",
			steps: []smokeStep{
				{client: "client-001", body: body("shared")},
				{client: "client-002", body: body("shared"), pause: 100 * time.Millisecond},
			},
			want: http.StatusOK,
		},
		{
			name: "same request admitted after TTL",
			steps: []smokeStep{
				{client: "client-003", body: body("delayed-test")},
				{client: "client-003", body: body("delayed-test"), pause: ttlWait},
			},
			want: http.StatusOK,
		},
		{
			name: "key order ignored",
			steps: []smokeStep{
				{client: "client-004", body: fmt.Sprintf(`{"z":1,"a":2,"m":%d}`, nonce)},
				{client: "client-004", body: fmt.Sprintf(`{"a":2,"m":%d,"z":1}`, nonce)},
			},
			want: http.StatusConflict,
		},
	}

	results := make([]SmokeResult, 0, len(scenarios)+1)
	for _, sc := range scenarios {
		res := SmokeResult{Name: sc.name, Want: sc.want}
		start := time.Now()
		for _, step := range sc.steps {
			if step.pause > 0 {
				select {
				case <-time.After(step.pause):
				case <-ctx.Done():
					res.Err = ctx.Err()
				}
			}
			if res.Err != nil {
				break
			}
			res.Got, res.Err = r.post(ctx, step.client, []byte(step.body))
			if res.Err != nil {
				break
			}
		}
		res.Duration = time.Since(start)
		results = append(results, res)
	}

	health := SmokeResult{Name: "health check", Want: http.StatusOK}
	start := time.Now()
	health.Got, health.Err = r.health(ctx)
	health.Duration = time.Since(start)
	return append(results, health)
}

func (r *Runner) health(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+"/health", nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// PrintSmoke writes one line per scenario and a summary.
func PrintSmoke(w io.Writer, results []SmokeResult) (passed int) {
	for i, res := range results {
		yellow.Fprintf(w, "Test %d: %s\n", i+1, res.Name)
		blue.Fprintf(w, "  %s\n", ms(res.Duration))
		switch {
		case res.Err != nil:
			red.Fprintf(w, "  FAIL: %v\n", res.Err)
		case res.Passed():
			passed++
			green.Fprintf(w, "  PASS: got %d\n", res.Got)
		default:
			red.Fprintf(w, "  FAIL: want %d, got %d\n", res.Want, res.Got)
		}
	}
	cyan.Fprintf(w, "\nSummary: %d/%d tests passed\n", passed, len(results))
	fmt.Fprintln(w)
	return passed
}
