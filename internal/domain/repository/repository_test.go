package repository

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"testing"
	"time"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/platform/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_URL and applies the schema. Tests that
// need Postgres are skipped without it.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	// no database: a malformed id must be answered before any query is sent
	ctx := context.Background()

	_, err := NewPgProblemRepository(nil).FindProblemByID(ctx, "abc")
	require.ErrorIs(t, err, common.ErrProblemNotFound)
	assert.Equal(t, http.StatusNotFound, common.HTTPStatusFromError(err))

	_, err = NewPgSubmissionRepository(nil).GetSubmissionByID(ctx, "not-a-uuid")
	require.ErrorIs(t, err, common.ErrSubmissionNotFound)
	assert.Equal(t, http.StatusNotFound, common.HTTPStatusFromError(err))

	items, total, err := NewPgSubmissionRepository(nil).ListSubmissionsForUser(ctx, "u1", "abc", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)

	_, err = NewPgProgressJobRepository(nil).GetJobByID(ctx, "job-1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func seedProblem(t *testing.T, db *sql.DB) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `INSERT INTO problems (id, title, slug, difficulty, runtime_limit_ms, memory_limit_kb)
        VALUES ($1, 'Sum', $2, 'Easy', 1000, 65536)`, id, "sum-"+id[:8])
	require.NoError(t, err)
	for i, tc := range [][2]string{{"2 3", "5"}, {"10 20", "30"}} {
		_, err := db.ExecContext(ctx, `INSERT INTO problem_test_cases (id, problem_id, input, expected_output, is_sample, sort_order)
            VALUES ($1, $2, $3, $4, $5, $6)`, uuid.NewString(), id, tc[0], tc[1], i == 0, i)
		require.NoError(t, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO problem_tags (problem_id, tag_slug) VALUES ($1, 'math')`, id)
	require.NoError(t, err)
	return id
}

func TestProblemRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewPgProblemRepository(db)
	ctx := context.Background()
	id := seedProblem(t, db)

	p, err := repo.FindProblemByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, p.TestCases, 2)
	assert.Equal(t, "2 3", p.TestCases[0].Input)
	assert.True(t, p.TestCases[0].IsSample)
	assert.Equal(t, []string{"math"}, p.Tags)

	bySlug, err := repo.FindProblemBySlug(ctx, p.Slug)
	require.NoError(t, err)
	assert.Equal(t, id, bySlug.ID)

	_, err = repo.FindProblemByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, common.ErrProblemNotFound)

	list, total, err := repo.ListProblems(ctx, 10, 0, model.DifficultyEasy, []string{"math"}, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.NotEmpty(t, list)
}

func TestSubmissionAndJobInOneTransaction(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	problemID := seedProblem(t, db)
	subs := NewPgSubmissionRepository(db)
	jobs := NewPgProgressJobRepository(db)
	tx := database.SQLTxRunner{DB: db}

	ms := 12
	sub := &model.Submission{
		ID: uuid.NewString(), UserID: "user-" + uuid.NewString()[:8], ProblemID: problemID,
		Language: "python", Code: "print(5)", Verdict: model.VerdictAccepted, CreatedAt: time.Now().UTC(),
		TestResults: []model.PerTestResult{
			{Index: 0, Verdict: model.VerdictAccepted, ActualOutput: "5", TimeMs: &ms},
			{Index: 1, Verdict: model.VerdictAccepted, ActualOutput: "30"},
		},
	}
	job := &model.ProgressJob{ID: uuid.NewString(), SubmissionID: sub.ID, UserID: sub.UserID, Status: model.JobStatusQueued, CreatedAt: time.Now().UTC()}

	require.NoError(t, tx.RunInTx(ctx, func(tx *sql.Tx) error {
		if err := subs.CreateSubmission(ctx, tx, sub); err != nil {
			return err
		}
		return jobs.CreateJob(ctx, tx, job)
	}))

	got, err := subs.GetSubmissionByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, got.TestResults, 2)
	assert.Equal(t, 12, *got.TestResults[0].TimeMs)
	assert.Nil(t, got.TestResults[1].TimeMs)

	summaries, total, err := subs.ListSubmissionsForUser(ctx, sub.UserID, problemID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, sub.ID, summaries[0].ID)

	// a failing second write rolls back the first
	orphan := &model.Submission{ID: uuid.NewString(), UserID: sub.UserID, ProblemID: problemID, Language: "python", Code: "x", Verdict: model.VerdictAccepted, CreatedAt: time.Now()}
	err = tx.RunInTx(ctx, func(tx *sql.Tx) error {
		if err := subs.CreateSubmission(ctx, tx, orphan); err != nil {
			return err
		}
		return jobs.CreateJob(ctx, tx, job) // duplicate id
	})
	require.Error(t, err)
	_, err = subs.GetSubmissionByID(ctx, orphan.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, jobs.IncrementJobAttempts(ctx, nil, job.ID))
	msg := "boom"
	require.NoError(t, jobs.UpdateJobStatus(ctx, nil, job.ID, model.JobStatusFailed, &msg))
	stored, err := jobs.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "boom", *stored.LastError)
	require.ErrorIs(t, jobs.UpdateJobStatus(ctx, nil, uuid.NewString(), model.JobStatusFailed, nil), common.ErrNotFound)

	moved, err := jobs.RequeueJob(ctx, nil, job.ID, model.JobStatusProcessing)
	require.NoError(t, err)
	assert.False(t, moved)
	moved, err = jobs.RequeueJob(ctx, nil, job.ID, model.JobStatusFailed)
	require.NoError(t, err)
	assert.True(t, moved)
	stored, err = jobs.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, stored.Status)
}

func TestProgressRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewPgProgressRepository(db)
	tx := database.SQLTxRunner{DB: db}
	userID := "user-" + uuid.NewString()[:8]
	subID := uuid.NewString()
	problemID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	empty, err := repo.GetProgress(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, empty.Solved)

	require.NoError(t, tx.RunInTx(ctx, func(tx *sql.Tx) error {
		done, err := repo.IsSubmissionProcessed(ctx, tx, subID)
		if err != nil || done {
			return err
		}
		p, err := repo.LoadProgressForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		p.Solved[problemID] = model.SolvedProblem{ProblemID: problemID, Difficulty: model.DifficultyHard, FirstSubmissionID: subID, SolvedAt: now}
		p.Badges[model.BadgeJoinedPlatform] = now
		p.SubmissionDays[model.DayKey(now)] = 1
		p.UpdatedAt = now
		if err := repo.SaveProgress(ctx, tx, p); err != nil {
			return err
		}
		return repo.MarkSubmissionProcessed(ctx, tx, subID, userID, now)
	}))

	p, err := repo.GetProgress(ctx, userID)
	require.NoError(t, err)
	assert.Contains(t, p.Solved, problemID)
	assert.Contains(t, p.Badges, model.BadgeJoinedPlatform)
	assert.Equal(t, 1, p.SubmissionDays[model.DayKey(now)])

	done, err := repo.IsSubmissionProcessed(ctx, nil, subID)
	require.NoError(t, err)
	assert.True(t, done)

	board, err := repo.GetLeaderboard(ctx, 1000)
	require.NoError(t, err)
	found := false
	for _, e := range board {
		if e.UserID == userID {
			found = true
			assert.Equal(t, 1, e.ProblemsSolved)
		}
	}
	assert.True(t, found)
}
