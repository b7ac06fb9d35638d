package model

type BadgeID string

const (
	BadgeJoinedPlatform     BadgeID = "joined_platform"
	BadgeBeginnerSolver     BadgeID = "beginner_solver"
	BadgeIntermediateSolver BadgeID = "intermediate_solver"
	BadgeAdvancedSolver     BadgeID = "advanced_solver"
	BadgeExpertSolver       BadgeID = "expert_solver"
	BadgeMasterSolver       BadgeID = "master_solver"
	BadgeLegendarySolver    BadgeID = "legendary_solver"
	BadgeWeekStreak         BadgeID = "streak_7"
)

// BadgeStats is the aggregate state badge predicates are evaluated against.
type BadgeStats struct {
	SolvedCount        int
	SolvedByDifficulty map[ProblemDifficulty]int
	CurrentStreak      int
	ActiveDays         int
}

type BadgeRule struct {
	ID          BadgeID
	Title       string
	Description string
	Predicate   func(BadgeStats) bool
}

// BadgeCatalog is evaluated in order by the progress tracker. Adding a badge
// is a new row here.
var BadgeCatalog = []BadgeRule{
	{BadgeJoinedPlatform, "Joined", "Joined the platform", func(BadgeStats) bool { return true }},
	{BadgeBeginnerSolver, "Beginner", "Solved your first problem", solvedAtLeast(1)},
	{BadgeIntermediateSolver, "Intermediate", "Solved 10 problems", solvedAtLeast(10)},
	{BadgeAdvancedSolver, "Advanced", "Solved 25 problems", solvedAtLeast(25)},
	{BadgeExpertSolver, "Expert", "Solved 50 problems", solvedAtLeast(50)},
	{BadgeMasterSolver, "Master", "Solved 100 problems", solvedAtLeast(100)},
	{BadgeLegendarySolver, "Legendary", "Solved 200 problems", solvedAtLeast(200)},
	{BadgeWeekStreak, "On Fire", "Solved something 7 days in a row", func(s BadgeStats) bool { return s.CurrentStreak >= 7 }},
}

func solvedAtLeast(n int) func(BadgeStats) bool {
	return func(s BadgeStats) bool { return s.SolvedCount >= n }
}

// SatisfiedBadges returns the ids of every catalog badge whose predicate holds.
func SatisfiedBadges(stats BadgeStats) []BadgeID {
	var out []BadgeID
	for _, rule := range BadgeCatalog {
		if rule.Predicate(stats) {
			out = append(out, rule.ID)
		}
	}
	return out
}
