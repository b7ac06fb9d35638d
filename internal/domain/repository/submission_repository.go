package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
)

// SubmissionRepository stores graded submissions. Rows are append-only.
type SubmissionRepository interface {
	// CreateSubmission writes the submission and all of its per-test results.
	// Callers pass a transaction so the write is all or nothing.
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissionsForUser(ctx context.Context, userID, problemID string, limit, offset int) ([]model.SubmissionSummary, int, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	c := conn(r.db, tx)
	_, err := c.ExecContext(ctx, `
        INSERT INTO submissions (id, user_id, problem_id, language, code, verdict, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.Code, sub.Verdict, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateSubmission: %w", err)
	}

	for _, res := range sub.TestResults {
		_, err := c.ExecContext(ctx, `
            INSERT INTO submission_test_results (submission_id, idx, verdict, actual_output, time_ms, memory_kb)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			sub.ID, res.Index, res.Verdict, res.ActualOutput, nullInt(res.TimeMs), nullInt(res.MemoryKb))
		if err != nil {
			return fmt.Errorf("pgSubmissionRepository.CreateSubmission result %d: %w", res.Index, err)
		}
	}
	return nil
}

func (r *pgSubmissionRepository) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, common.ErrSubmissionNotFound
	}
	sub := &model.Submission{}
	err := r.db.QueryRowContext(ctx, `
        SELECT id, user_id, problem_id, language, code, verdict, created_at
        FROM submissions WHERE id = $1`, id).
		Scan(&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Language, &sub.Code, &sub.Verdict, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT idx, verdict, actual_output, time_ms, memory_kb
        FROM submission_test_results WHERE submission_id = $1 ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res model.PerTestResult
		var timeMs, memKb sql.NullInt32
		if err := rows.Scan(&res.Index, &res.Verdict, &res.ActualOutput, &timeMs, &memKb); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID scan: %w", err)
		}
		res.TimeMs = intPtr(timeMs)
		res.MemoryKb = intPtr(memKb)
		sub.TestResults = append(sub.TestResults, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID rows: %w", err)
	}
	return sub, nil
}

// ListSubmissionsForUser returns newest first. An empty problemID lists every problem.
func (r *pgSubmissionRepository) ListSubmissionsForUser(ctx context.Context, userID, problemID string, limit, offset int) ([]model.SubmissionSummary, int, error) {
	where := "user_id = $1"
	args := []interface{}{userID}
	if problemID != "" {
		id, ok := canonicalID(problemID)
		if !ok {
			return []model.SubmissionSummary{}, 0, nil
		}
		problemID = id
		where += " AND problem_id = $2"
		args = append(args, problemID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgSubmissionRepository.ListSubmissionsForUser count: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, problem_id, language, verdict, created_at FROM submissions
        WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgSubmissionRepository.ListSubmissionsForUser: %w", err)
	}
	defer rows.Close()

	var out []model.SubmissionSummary
	for rows.Next() {
		var s model.SubmissionSummary
		if err := rows.Scan(&s.ID, &s.ProblemID, &s.Language, &s.Verdict, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgSubmissionRepository.ListSubmissionsForUser scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgSubmissionRepository.ListSubmissionsForUser rows: %w", err)
	}
	return out, total, nil
}
