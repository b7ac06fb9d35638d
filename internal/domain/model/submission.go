package model

import "time"

type Verdict string

const (
	VerdictAccepted          Verdict = "Accepted"
	VerdictWrongAnswer       Verdict = "WrongAnswer"
	VerdictCompileError      Verdict = "CompileError"
	VerdictRuntimeError      Verdict = "RuntimeError"
	VerdictTimeLimitExceeded Verdict = "TimeLimitExceeded"
)

type Submission struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ProblemID   string          `json:"problem_id"`
	Language    string          `json:"language"`
	Code        string          `json:"code,omitempty"`
	Verdict     Verdict         `json:"verdict"`
	TestResults []PerTestResult `json:"test_results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PerTestResult struct {
	Index        int     `json:"index"`
	Verdict      Verdict `json:"verdict"`
	ActualOutput string  `json:"actual_output"`
	TimeMs       *int    `json:"time_ms,omitempty"`
	MemoryKb     *int    `json:"memory_kb,omitempty"`
}

// OverallVerdict is Accepted when every result is Accepted, otherwise the
// verdict of the lowest-index failing result.
func OverallVerdict(results []PerTestResult) Verdict {
	for _, r := range results {
		if r.Verdict != VerdictAccepted {
			return r.Verdict
		}
	}
	return VerdictAccepted
}

// MaxTimeMs returns the slowest per-test time.
func (s *Submission) MaxTimeMs() *int {
	return maxOf(s.TestResults, func(r PerTestResult) *int { return r.TimeMs })
}

func (s *Submission) PeakMemoryKb() *int {
	return maxOf(s.TestResults, func(r PerTestResult) *int { return r.MemoryKb })
}

func maxOf(results []PerTestResult, get func(PerTestResult) *int) *int {
	var out *int
	for _, r := range results {
		v := get(r)
		if v == nil {
			continue
		}
		if out == nil || *v > *out {
			n := *v
			out = &n
		}
	}
	return out
}

// RunResult is returned by the interactive run action; nothing about it is persisted.
type RunResult struct {
	Stdout        string   `json:"stdout,omitempty"`
	Stderr        string   `json:"stderr,omitempty"`
	CompileOutput string   `json:"compile_output,omitempty"`
	Error         string   `json:"error,omitempty"`
	Output        string   `json:"output"`
	Input         string   `json:"input"`
	Expected      *string  `json:"expected_output,omitempty"`
	Verdict       *Verdict `json:"verdict,omitempty"`
	TimeMs        *int     `json:"time_ms,omitempty"`
	MemoryKb      *int     `json:"memory_kb,omitempty"`
}

// SubmissionSummary is a history row without code or per-test details.
type SubmissionSummary struct {
	ID        string    `json:"id"`
	ProblemID string    `json:"problem_id"`
	Language  string    `json:"language"`
	Verdict   Verdict   `json:"verdict"`
	CreatedAt time.Time `json:"created_at"`
}
