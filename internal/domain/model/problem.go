package model

import (
	"time"
)

type ProblemDifficulty string

const (
	DifficultyEasy   ProblemDifficulty = "Easy"
	DifficultyMedium ProblemDifficulty = "Medium"
	DifficultyHard   ProblemDifficulty = "Hard"
)

type Problem struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Slug           string            `json:"slug"`
	Description    string            `json:"description"`
	Difficulty     ProblemDifficulty `json:"difficulty"`
	RuntimeLimitMs int               `json:"runtime_limit_ms"`
	MemoryLimitKb  int               `json:"memory_limit_kb"`
	Tags           []string          `json:"tags,omitempty"`
	StarterCode    map[string]string `json:"starter_code,omitempty"` // language slug -> template
	TestCases      []TestCase        `json:"-"`                      // judged in SortOrder; never exposed
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type TestCase struct {
	ID             string `json:"id"`
	ProblemID      string `json:"problem_id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
	SortOrder      int    `json:"sort_order"`
}

// SampleTestCase returns the first sample test case, falling back to the first test case.
func (p *Problem) SampleTestCase() (TestCase, bool) {
	for _, tc := range p.TestCases {
		if tc.IsSample {
			return tc, true
		}
	}
	if len(p.TestCases) > 0 {
		return p.TestCases[0], true
	}
	return TestCase{}, false
}
