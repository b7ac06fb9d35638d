package model

import (
	"sort"
	"time"
)

const DayLayout = "2006-01-02"

type SolvedProblem struct {
	ProblemID         string            `json:"problem_id"`
	Difficulty        ProblemDifficulty `json:"difficulty"`
	FirstSubmissionID string            `json:"first_submission_id"`
	BestTimeMs        *int              `json:"best_time_ms,omitempty"`
	BestMemoryKb      *int              `json:"best_memory_kb,omitempty"`
	SolvedAt          time.Time         `json:"solved_at"`
}

// UserProgress is the per-user aggregate owned by the progress tracker.
// Solved and Badges only ever grow.
type UserProgress struct {
	UserID         string                   `json:"user_id"`
	Solved         map[string]SolvedProblem `json:"solved"`
	Badges         map[BadgeID]time.Time    `json:"badges"`
	SubmissionDays map[string]int           `json:"submission_days"` // day -> accepted submissions
	UpdatedAt      time.Time                `json:"updated_at"`
}

func NewUserProgress(userID string) *UserProgress {
	return &UserProgress{
		UserID:         userID,
		Solved:         map[string]SolvedProblem{},
		Badges:         map[BadgeID]time.Time{},
		SubmissionDays: map[string]int{},
	}
}

func (p *UserProgress) Clone() *UserProgress {
	c := NewUserProgress(p.UserID)
	for k, v := range p.Solved {
		c.Solved[k] = v
	}
	for k, v := range p.Badges {
		c.Badges[k] = v
	}
	for k, v := range p.SubmissionDays {
		c.SubmissionDays[k] = v
	}
	c.UpdatedAt = p.UpdatedAt
	return c
}

func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

func (p *UserProgress) SolvedByDifficulty() map[ProblemDifficulty]int {
	out := map[ProblemDifficulty]int{}
	for _, s := range p.Solved {
		out[s.Difficulty]++
	}
	return out
}

// Streaks returns the run of consecutive active days ending today (or
// yesterday, so a streak survives until the day is over) and the longest run.
func (p *UserProgress) Streaks(today time.Time) (current, longest int) {
	days := make([]time.Time, 0, len(p.SubmissionDays))
	for k, n := range p.SubmissionDays {
		if n <= 0 {
			continue
		}
		d, err := time.Parse(DayLayout, k)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return 0, 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	run := 1
	longest = 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	last := days[len(days)-1]
	todayDay, _ := time.Parse(DayLayout, DayKey(today))
	if gap := todayDay.Sub(last); gap > 24*time.Hour || gap < 0 {
		return 0, longest
	}
	return run, longest
}

func (p *UserProgress) BadgeStats(today time.Time) BadgeStats {
	current, _ := p.Streaks(today)
	active := 0
	for _, n := range p.SubmissionDays {
		if n > 0 {
			active++
		}
	}
	return BadgeStats{
		SolvedCount:        len(p.Solved),
		SolvedByDifficulty: p.SolvedByDifficulty(),
		CurrentStreak:      current,
		ActiveDays:         active,
	}
}

// ProgressSummary is the profile view of a user's aggregate.
type ProgressSummary struct {
	UserID             string                    `json:"user_id"`
	SolvedCount        int                       `json:"solved_count"`
	SolvedByDifficulty map[ProblemDifficulty]int `json:"solved_by_difficulty"`
	SolvedProblems     []SolvedProblem           `json:"solved_problems"`
	Badges             []BadgeStatus             `json:"badges"`
	Heatmap            map[string]int            `json:"heatmap"`
	CurrentStreak      int                       `json:"current_streak"`
	LongestStreak      int                       `json:"longest_streak"`
}

type BadgeStatus struct {
	ID          BadgeID    `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

func (p *UserProgress) Summary(today time.Time) ProgressSummary {
	current, longest := p.Streaks(today)
	solved := make([]SolvedProblem, 0, len(p.Solved))
	for _, s := range p.Solved {
		solved = append(solved, s)
	}
	sort.Slice(solved, func(i, j int) bool { return solved[i].SolvedAt.Before(solved[j].SolvedAt) })

	badges := make([]BadgeStatus, 0, len(BadgeCatalog))
	for _, rule := range BadgeCatalog {
		st := BadgeStatus{ID: rule.ID, Title: rule.Title, Description: rule.Description}
		if at, ok := p.Badges[rule.ID]; ok {
			at := at
			st.Earned = true
			st.EarnedAt = &at
		}
		badges = append(badges, st)
	}

	heatmap := make(map[string]int, len(p.SubmissionDays))
	for k, v := range p.SubmissionDays {
		heatmap[k] = v
	}

	return ProgressSummary{
		UserID:             p.UserID,
		SolvedCount:        len(p.Solved),
		SolvedByDifficulty: p.SolvedByDifficulty(),
		SolvedProblems:     solved,
		Badges:             badges,
		Heatmap:            heatmap,
		CurrentStreak:      current,
		LongestStreak:      longest,
	}
}
