package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func results(vs ...Verdict) []PerTestResult {
	out := make([]PerTestResult, len(vs))
	for i, v := range vs {
		out[i] = PerTestResult{Index: i, Verdict: v}
	}
	return out
}

func TestOverallVerdict(t *testing.T) {
	assert.Equal(t, VerdictAccepted, OverallVerdict(nil))
	assert.Equal(t, VerdictAccepted, OverallVerdict(results(VerdictAccepted, VerdictAccepted)))
	assert.Equal(t, VerdictWrongAnswer, OverallVerdict(results(VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded)))
	assert.Equal(t, VerdictCompileError, OverallVerdict(results(VerdictCompileError, VerdictCompileError)))
}

func TestMaxTimeAndPeakMemory(t *testing.T) {
	a, b, c := 10, 40, 25
	s := &Submission{TestResults: []PerTestResult{
		{TimeMs: &a, MemoryKb: &c},
		{TimeMs: &b},
		{},
	}}
	assert.Equal(t, 40, *s.MaxTimeMs())
	assert.Equal(t, 25, *s.PeakMemoryKb())
	assert.Nil(t, (&Submission{}).MaxTimeMs())

	// the returned pointer does not alias a result
	*s.MaxTimeMs() = 0
	assert.Equal(t, 40, b)
}

func TestAssignRanks(t *testing.T) {
	entries := []LeaderboardEntry{
		{UserID: "a", ProblemsSolved: 5, BadgeCount: 3},
		{UserID: "b", ProblemsSolved: 5, BadgeCount: 3},
		{UserID: "c", ProblemsSolved: 5, BadgeCount: 2},
		{UserID: "d", ProblemsSolved: 1, BadgeCount: 2},
	}
	AssignRanks(entries)
	var ranks []int
	for _, e := range entries {
		ranks = append(ranks, e.Rank)
	}
	assert.Equal(t, []int{1, 1, 3, 4}, ranks)
}

func TestLanguageCatalog(t *testing.T) {
	c := NewLanguageCatalog(append(DefaultLanguages(), Language{ID: 60, Name: "Go", Slug: "Go "}))

	l, ok := c.Resolve("Python")
	assert.True(t, ok)
	assert.Equal(t, 71, l.ID)

	l, ok = c.Resolve("54")
	assert.True(t, ok)
	assert.Equal(t, "cpp", l.Slug)

	_, ok = c.Resolve("go")
	assert.False(t, ok, "inactive languages do not resolve")
	_, ok = c.Resolve("rust")
	assert.False(t, ok)

	list := c.List()
	assert.Len(t, list, 5)
	assert.Equal(t, "cpp", list[0].Slug)
}
