package model

type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	ProblemsSolved int    `json:"problems_solved"`
	BadgeCount     int    `json:"badge_count"`
}

// AssignRanks sets competition ranks ("1224") on entries already sorted by
// solved count, then badge count, descending.
func AssignRanks(entries []LeaderboardEntry) {
	for i := range entries {
		if i > 0 && entries[i].ProblemsSolved == entries[i-1].ProblemsSolved && entries[i].BadgeCount == entries[i-1].BadgeCount {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
