package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"tle_zone_grader/internal/platform/logger"
	"tle_zone_grader/internal/platform/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxResponseBytes = 8 << 20

type Options struct {
	BaseURL          string
	AuthToken        string        // sent as X-Auth-Token when set
	RequestTimeout   time.Duration // bound on a single attempt
	MaxRetries       int
	RetryBase        time.Duration
	RetryMax         time.Duration
	DefaultTimeLimit time.Duration
	HTTPClient       *http.Client
}

// Client runs code on a Judge0-compatible backend. It keeps no state between calls.
type Client struct {
	opts      Options
	http      *http.Client
	submitURL string
}

func NewClient(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryBase {
		opts.RetryMax = opts.RetryBase
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = 2 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		opts:      opts,
		http:      hc,
		submitURL: strings.TrimRight(opts.BaseURL, "/") + "/submissions?base64_encoded=false&wait=true",
	}
}

type judge0Request struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int     `json:"memory_limit,omitempty"`
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Response struct {
	Stdout        *string       `json:"stdout"`
	Stderr        *string       `json:"stderr"`
	CompileOutput *string       `json:"compile_output"`
	Message       *string       `json:"message"`
	ExitCode      *int          `json:"exit_code"`
	ExitSignal    *int          `json:"exit_signal"`
	Time          *string       `json:"time"`
	Memory        *int          `json:"memory"`
	Status        *judge0Status `json:"status"`
}

// Execute runs one program against one stdin. Transient failures are retried
// with exponential backoff; once retries are spent the error is an *ExecutionError.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SourceCode) == "" || req.LanguageID <= 0 {
		return nil, &ExecutionError{Kind: ErrInvalidRequest, Err: errors.New("source code and language are required")}
	}
	limit := req.TimeLimit
	if limit <= 0 {
		limit = c.opts.DefaultTimeLimit
	}
	body, err := json.Marshal(judge0Request{
		SourceCode:   req.SourceCode,
		LanguageID:   req.LanguageID,
		Stdin:        req.Stdin,
		CPUTimeLimit: limit.Seconds(),
		MemoryLimit:  req.MemoryLimitKb,
	})
	if err != nil {
		return nil, &ExecutionError{Kind: ErrInvalidRequest, Err: err}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryBase
	b.MaxInterval = c.opts.RetryMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx)

	var (
		result   *Result
		lastErr  error
		attempts int
	)
	op := func() error {
		attempts++
		res, err := c.attempt(ctx, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "execution backend attempt failed, retrying",
			zap.Int("attempt", attempts), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		kind := kindOf(lastErr)
		if ctx.Err() != nil {
			kind = ErrBackendTimeout
		}
		return nil, &ExecutionError{Kind: kind, Attempts: attempts, Err: lastErr}
	}
	return result, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (res *Result, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.BackendLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BackendErrorsTotal.WithLabelValues(kindLabel(kindOf(err))).Inc()
		}
	}()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.submitURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrBackendProtocol, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.AuthToken != "" {
		httpReq.Header.Set("X-Auth-Token", c.opts.AuthToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: backend returned %d", ErrBackendUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrBackendProtocol, resp.StatusCode, truncate(string(raw), 200))
	}

	var jr judge0Response
	if err := json.Unmarshal(raw, &jr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrBackendProtocol, err)
	}
	return jr.toResult()
}

func (jr judge0Response) toResult() (*Result, error) {
	if jr.Status == nil {
		return nil, fmt.Errorf("%w: response has no status", ErrBackendProtocol)
	}
	r := &Result{
		Stdout:        deref(jr.Stdout),
		Stderr:        deref(jr.Stderr),
		CompileOutput: deref(jr.CompileOutput),
		Message:       deref(jr.Message),
		ExitCode:      jr.ExitCode,
		ExitSignal:    jr.ExitSignal,
		StatusID:      jr.Status.ID,
		MemoryKb:      jr.Memory,
	}
	if jr.Time != nil && *jr.Time != "" {
		secs, err := strconv.ParseFloat(*jr.Time, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad time %q", ErrBackendProtocol, *jr.Time)
		}
		ms := int(secs*1000 + 0.5)
		r.TimeMs = &ms
	}

	switch id := jr.Status.ID; {
	case id == statusInQueue || id == statusProcessing:
		return nil, fmt.Errorf("%w: submission still %q on a synchronous call", ErrBackendProtocol, jr.Status.Description)
	case id == statusInternalError:
		return nil, fmt.Errorf("%w: %s %s", ErrBackendUnavailable, jr.Status.Description, r.Message)
	case id == statusTimeLimitExceeded:
		r.TimedOut = true
	case id == statusCompilationError:
		if r.CompileOutput == "" {
			r.CompileOutput = firstNonEmpty(r.Message, jr.Status.Description)
		}
	case (id >= statusRuntimeErrorFirst && id <= statusRuntimeErrorLast) || id == statusExecFormatError:
		r.RuntimeFailure = true
	case id > statusExecFormatError:
		return nil, fmt.Errorf("%w: unknown status %d", ErrBackendProtocol, id)
	}
	return r, nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
