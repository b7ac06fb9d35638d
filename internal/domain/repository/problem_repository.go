package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
)

// ProblemRepository is a read-only view of the problem store.
type ProblemRepository interface {
	// FindProblemByID loads the problem with its test cases, starter code and tags.
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error)
	ListProblems(ctx context.Context, limit, offset int, difficulty model.ProblemDifficulty, tagSlugs []string, searchTerm string) ([]model.Problem, int, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

const problemColumns = `p.id, p.title, p.slug, p.description, p.difficulty, p.runtime_limit_ms, p.memory_limit_kb, p.created_at, p.updated_at`

func scanProblem(row interface{ Scan(...interface{}) error }, p *model.Problem) error {
	return row.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.Difficulty, &p.RuntimeLimitMs, &p.MemoryLimitKb, &p.CreatedAt, &p.UpdatedAt)
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, common.ErrProblemNotFound
	}
	return r.findOne(ctx, "p.id = $1", id)
}

func (r *pgProblemRepository) FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error) {
	return r.findOne(ctx, "p.slug = $1", slug)
}

func (r *pgProblemRepository) findOne(ctx context.Context, where string, arg string) (*model.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems p WHERE ` + where

	problem := &model.Problem{}
	if err := scanProblem(r.db.QueryRowContext(ctx, query, arg), problem); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrProblemNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.findOne: %w", err)
	}

	var err error
	if problem.TestCases, err = r.testCases(ctx, problem.ID); err != nil {
		return nil, err
	}
	if problem.StarterCode, err = r.starterCode(ctx, problem.ID); err != nil {
		return nil, err
	}
	if problem.Tags, err = r.tags(ctx, problem.ID); err != nil {
		return nil, err
	}
	return problem, nil
}

func (r *pgProblemRepository) testCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, problem_id, input, expected_output, is_sample, sort_order
        FROM problem_test_cases WHERE problem_id = $1
        ORDER BY sort_order, id`, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.testCases: %w", err)
	}
	defer rows.Close()

	var out []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.IsSample, &tc.SortOrder); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.testCases scan: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (r *pgProblemRepository) starterCode(ctx context.Context, problemID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT language_slug, template FROM problem_starter_code WHERE problem_id = $1`, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.starterCode: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var lang, tmpl string
		if err := rows.Scan(&lang, &tmpl); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.starterCode scan: %w", err)
		}
		out[lang] = tmpl
	}
	return out, rows.Err()
}

func (r *pgProblemRepository) tags(ctx context.Context, problemID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag_slug FROM problem_tags WHERE problem_id = $1 ORDER BY tag_slug`, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.tags scan: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (r *pgProblemRepository) ListProblems(ctx context.Context, limit, offset int, difficulty model.ProblemDifficulty, tagSlugs []string, searchTerm string) ([]model.Problem, int, error) {
	var conditions []string
	var args []interface{}
	argID := 1

	if difficulty != "" {
		conditions = append(conditions, fmt.Sprintf("p.difficulty = $%d", argID))
		args = append(args, difficulty)
		argID++
	}
	if len(tagSlugs) > 0 {
		placeholders := make([]string, len(tagSlugs))
		for i, tag := range tagSlugs {
			placeholders[i] = fmt.Sprintf("$%d", argID)
			args = append(args, tag)
			argID++
		}
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM problem_tags pt WHERE pt.problem_id = p.id AND pt.tag_slug IN (%s))",
			strings.Join(placeholders, ",")))
	}
	if searchTerm != "" {
		conditions = append(conditions, fmt.Sprintf("p.title ILIKE $%d", argID))
		args = append(args, "%"+searchTerm+"%")
		argID++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM problems p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgProblemRepository.ListProblems count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM problems p%s ORDER BY p.created_at, p.id LIMIT $%d OFFSET $%d`,
		problemColumns, where, argID, argID+1)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgProblemRepository.ListProblems: %w", err)
	}
	defer rows.Close()

	var problems []model.Problem
	for rows.Next() {
		var p model.Problem
		if err := scanProblem(rows, &p); err != nil {
			return nil, 0, fmt.Errorf("pgProblemRepository.ListProblems scan: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgProblemRepository.ListProblems rows: %w", err)
	}
	for i := range problems {
		if problems[i].Tags, err = r.tags(ctx, problems[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return problems, total, nil
}
