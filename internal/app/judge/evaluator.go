package judge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/platform/executor"
	"tle_zone_grader/internal/platform/logger"
	"tle_zone_grader/internal/platform/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxStoredOutputLines = 64
	maxStoredOutputWidth = 256
)

type Executor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

type Mode int

const (
	// ModeFull evaluates every test case.
	ModeFull Mode = iota
	// ModeFailFast stops dispatching tests above the lowest failing index.
	ModeFailFast
)

type Source struct {
	Code     string
	Language model.Language
}

type Options struct {
	Mode          Mode
	TimeLimit     time.Duration
	MemoryLimitKb int
}

// Outcome pairs a graded result with what the backend returned for it.
type Outcome struct {
	Result model.PerTestResult
	Exec   *executor.Result // nil when the call failed
	Err    error
}

type Evaluator struct {
	exec        Executor
	concurrency int
}

func NewEvaluator(exec Executor, concurrency int) *Evaluator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Evaluator{exec: exec, concurrency: concurrency}
}

// Evaluate grades src against tests and returns results in test order.
// In ModeFull there is exactly one result per test; in ModeFailFast the
// results end at the first failure.
func (e *Evaluator) Evaluate(ctx context.Context, src Source, tests []model.TestCase, opts Options) []model.PerTestResult {
	outcomes := e.Run(ctx, src, tests, opts)
	results := make([]model.PerTestResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = o.Result
	}
	return results
}

// Run is Evaluate with the raw backend output kept alongside each verdict.
func (e *Evaluator) Run(ctx context.Context, src Source, tests []model.TestCase, opts Options) []Outcome {
	outcomes := make([]Outcome, len(tests))
	var lowestFail atomic.Int64
	lowestFail.Store(int64(len(tests)))

	// A plain group: one failing test must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, tc := range tests {
		g.Go(func() error {
			if opts.Mode == ModeFailFast && int64(i) > lowestFail.Load() {
				return nil
			}
			res, err := e.exec.Execute(ctx, executor.Request{
				SourceCode:    src.Code,
				LanguageID:    src.Language.ID,
				Stdin:         tc.Input,
				TimeLimit:     opts.TimeLimit,
				MemoryLimitKb: opts.MemoryLimitKb,
			})
			verdict, output := Classify(res, err, tc.ExpectedOutput)
			out := Outcome{
				Result: model.PerTestResult{
					Index:        i,
					Verdict:      verdict,
					ActualOutput: TrimOutput(output, maxStoredOutputLines, maxStoredOutputWidth),
				},
				Exec: res,
				Err:  err,
			}
			if res != nil {
				out.Result.TimeMs = res.TimeMs
				out.Result.MemoryKb = res.MemoryKb
			}
			outcomes[i] = out

			metrics.TestExecutionsTotal.WithLabelValues(string(verdict)).Inc()
			if err != nil {
				logger.Warn(ctx, "test case execution failed",
					zap.Int("test_index", i), zap.String("verdict", string(verdict)), zap.Error(err))
			}
			if verdict != model.VerdictAccepted {
				lowerTo(&lowestFail, int64(i))
			}
			return nil
		})
	}
	_ = g.Wait()

	if opts.Mode == ModeFailFast {
		if n := lowestFail.Load(); n < int64(len(outcomes)) {
			outcomes = outcomes[:n+1]
		}
	}
	return outcomes
}

func lowerTo(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Classify turns one execution into a verdict and the output shown for it.
// Order: compile error, runtime error, time limit, output comparison.
func Classify(res *executor.Result, err error, expected string) (model.Verdict, string) {
	if err != nil {
		if errors.Is(err, executor.ErrBackendTimeout) {
			return model.VerdictTimeLimitExceeded, "Time limit exceeded: no response from the execution backend"
		}
		return model.VerdictRuntimeError, fmt.Sprintf("Execution failed: %v", err)
	}
	if res.CompileOutput != "" {
		return model.VerdictCompileError, res.CompileOutput
	}
	if res.Stderr != "" {
		return model.VerdictRuntimeError, res.Stderr
	}
	if res.Abnormal() {
		return model.VerdictRuntimeError, abnormalExitMessage(res)
	}
	if res.TimedOut {
		return model.VerdictTimeLimitExceeded, res.Stdout
	}
	if Compare(res.Stdout, expected) {
		return model.VerdictAccepted, res.Stdout
	}
	return model.VerdictWrongAnswer, res.Stdout
}

func abnormalExitMessage(res *executor.Result) string {
	switch {
	case res.Message != "":
		return res.Message
	case res.ExitSignal != nil && *res.ExitSignal != 0:
		return fmt.Sprintf("Program terminated by signal %d", *res.ExitSignal)
	case res.ExitCode != nil:
		return fmt.Sprintf("Program exited with code %d", *res.ExitCode)
	default:
		return "Program terminated abnormally"
	}
}
