package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"tle_zone_grader/internal/domain/model"
)

// ProgressRepository persists the per-user aggregate and the processed-submission markers.
type ProgressRepository interface {
	IsSubmissionProcessed(ctx context.Context, tx *sql.Tx, submissionID string) (bool, error)
	MarkSubmissionProcessed(ctx context.Context, tx *sql.Tx, submissionID, userID string, at time.Time) error
	// LoadProgressForUpdate creates the aggregate if missing and locks it for the
	// rest of tx.
	LoadProgressForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.UserProgress, error)
	SaveProgress(ctx context.Context, tx *sql.Tx, p *model.UserProgress) error
	GetProgress(ctx context.Context, userID string) (*model.UserProgress, error)
	GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

type pgProgressRepository struct {
	db *sql.DB
}

func NewPgProgressRepository(db *sql.DB) ProgressRepository {
	return &pgProgressRepository{db: db}
}

func (r *pgProgressRepository) IsSubmissionProcessed(ctx context.Context, tx *sql.Tx, submissionID string) (bool, error) {
	var exists bool
	err := conn(r.db, tx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM progress_processed_submissions WHERE submission_id = $1)`, submissionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgProgressRepository.IsSubmissionProcessed: %w", err)
	}
	return exists, nil
}

func (r *pgProgressRepository) MarkSubmissionProcessed(ctx context.Context, tx *sql.Tx, submissionID, userID string, at time.Time) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
        INSERT INTO progress_processed_submissions (submission_id, user_id, processed_at)
        VALUES ($1, $2, $3)`, submissionID, userID, at)
	if err != nil {
		return fmt.Errorf("pgProgressRepository.MarkSubmissionProcessed: %w", err)
	}
	return nil
}

func (r *pgProgressRepository) LoadProgressForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.UserProgress, error) {
	c := conn(r.db, tx)
	if _, err := c.ExecContext(ctx,
		`INSERT INTO user_progress (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("pgProgressRepository.LoadProgressForUpdate ensure: %w", err)
	}
	p := model.NewUserProgress(userID)
	if err := c.QueryRowContext(ctx,
		`SELECT updated_at FROM user_progress WHERE user_id = $1 FOR UPDATE`, userID).Scan(&p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("pgProgressRepository.LoadProgressForUpdate lock: %w", err)
	}
	if err := r.loadDetails(ctx, c, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProgressRepository) GetProgress(ctx context.Context, userID string) (*model.UserProgress, error) {
	p := model.NewUserProgress(userID)
	err := r.db.QueryRowContext(ctx, `SELECT updated_at FROM user_progress WHERE user_id = $1`, userID).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgProgressRepository.GetProgress: %w", err)
	}
	if err := r.loadDetails(ctx, r.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProgressRepository) loadDetails(ctx context.Context, c dbtx, p *model.UserProgress) error {
	rows, err := c.QueryContext(ctx, `
        SELECT problem_id, difficulty, first_submission_id, best_time_ms, best_memory_kb, solved_at
        FROM user_solved_problems WHERE user_id = $1`, p.UserID)
	if err != nil {
		return fmt.Errorf("pgProgressRepository.loadDetails solved: %w", err)
	}
	for rows.Next() {
		var s model.SolvedProblem
		var timeMs, memKb sql.NullInt32
		if err := rows.Scan(&s.ProblemID, &s.Difficulty, &s.FirstSubmissionID, &timeMs, &memKb, &s.SolvedAt); err != nil {
			rows.Close()
			return fmt.Errorf("pgProgressRepository.loadDetails solved scan: %w", err)
		}
		s.BestTimeMs = intPtr(timeMs)
		s.BestMemoryKb = intPtr(memKb)
		p.Solved[s.ProblemID] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgProgressRepository.loadDetails solved rows: %w", err)
	}

	rows, err = c.QueryContext(ctx, `SELECT badge_id, earned_at FROM user_badges WHERE user_id = $1`, p.UserID)
	if err != nil {
		return fmt.Errorf("pgProgressRepository.loadDetails badges: %w", err)
	}
	for rows.Next() {
		var id model.BadgeID
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			rows.Close()
			return fmt.Errorf("pgProgressRepository.loadDetails badges scan: %w", err)
		}
		p.Badges[id] = at
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgProgressRepository.loadDetails badges rows: %w", err)
	}

	rows, err = c.QueryContext(ctx, `SELECT day, count FROM user_submission_days WHERE user_id = $1`, p.UserID)
	if err != nil {
		return fmt.Errorf("pgProgressRepository.loadDetails days: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return fmt.Errorf("pgProgressRepository.loadDetails days scan: %w", err)
		}
		p.SubmissionDays[model.DayKey(day)] = n
	}
	return rows.Err()
}

// SaveProgress upserts the full aggregate. Rows are never deleted, which keeps
// the solved and badge sets monotonic.
func (r *pgProgressRepository) SaveProgress(ctx context.Context, tx *sql.Tx, p *model.UserProgress) error {
	c := conn(r.db, tx)
	for _, s := range p.Solved {
		_, err := c.ExecContext(ctx, `
            INSERT INTO user_solved_problems (user_id, problem_id, difficulty, first_submission_id, best_time_ms, best_memory_kb, solved_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            ON CONFLICT (user_id, problem_id) DO UPDATE
            SET best_time_ms = EXCLUDED.best_time_ms, best_memory_kb = EXCLUDED.best_memory_kb`,
			p.UserID, s.ProblemID, s.Difficulty, s.FirstSubmissionID, nullInt(s.BestTimeMs), nullInt(s.BestMemoryKb), s.SolvedAt)
		if err != nil {
			return fmt.Errorf("pgProgressRepository.SaveProgress solved %s: %w", s.ProblemID, err)
		}
	}
	for id, at := range p.Badges {
		_, err := c.ExecContext(ctx, `
            INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES ($1, $2, $3)
            ON CONFLICT (user_id, badge_id) DO NOTHING`, p.UserID, id, at)
		if err != nil {
			return fmt.Errorf("pgProgressRepository.SaveProgress badge %s: %w", id, err)
		}
	}
	for key, n := range p.SubmissionDays {
		day, err := time.Parse(model.DayLayout, key)
		if err != nil {
			return fmt.Errorf("pgProgressRepository.SaveProgress day %q: %w", key, err)
		}
		_, err = c.ExecContext(ctx, `
            INSERT INTO user_submission_days (user_id, day, count) VALUES ($1, $2, $3)
            ON CONFLICT (user_id, day) DO UPDATE SET count = EXCLUDED.count`, p.UserID, day, n)
		if err != nil {
			return fmt.Errorf("pgProgressRepository.SaveProgress day %s: %w", key, err)
		}
	}
	if _, err := c.ExecContext(ctx,
		`UPDATE user_progress SET updated_at = $1 WHERE user_id = $2`, p.UpdatedAt, p.UserID); err != nil {
		return fmt.Errorf("pgProgressRepository.SaveProgress touch: %w", err)
	}
	return nil
}

func (r *pgProgressRepository) GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT up.user_id,
               (SELECT COUNT(*) FROM user_solved_problems sp WHERE sp.user_id = up.user_id) AS solved,
               (SELECT COUNT(*) FROM user_badges b WHERE b.user_id = up.user_id) AS badges
        FROM user_progress up
        ORDER BY solved DESC, badges DESC, up.user_id
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pgProgressRepository.GetLeaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.ProblemsSolved, &e.BadgeCount); err != nil {
			return nil, fmt.Errorf("pgProgressRepository.GetLeaderboard scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProgressRepository.GetLeaderboard rows: %w", err)
	}
	model.AssignRanks(entries)
	return entries, nil
}
