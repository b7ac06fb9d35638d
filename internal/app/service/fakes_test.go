package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"tle_zone_grader/internal/app/judge"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/platform/events"
	"tle_zone_grader/internal/platform/executor"
	"tle_zone_grader/internal/platform/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errInjected = errors.New("injected failure")

// txParticipant lets fakeTxRunner roll a fake repository back.
type txParticipant interface {
	snapshot() func()
}

type fakeTxRunner struct {
	mu    sync.Mutex
	parts []txParticipant
}

func (r *fakeTxRunner) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	// one tx at a time keeps snapshots consistent
	r.mu.Lock()
	defer r.mu.Unlock()
	restores := make([]func(), 0, len(r.parts))
	for _, p := range r.parts {
		restores = append(restores, p.snapshot())
	}
	if err := fn(nil); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

type fakeProblemRepo struct {
	problems map[string]*model.Problem
}

func newFakeProblemRepo(problems ...*model.Problem) *fakeProblemRepo {
	r := &fakeProblemRepo{problems: map[string]*model.Problem{}}
	for _, p := range problems {
		r.problems[p.ID] = p
	}
	return r
}

func (r *fakeProblemRepo) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	p, ok := r.problems[id]
	if !ok {
		return nil, common.ErrProblemNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProblemRepo) FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error) {
	for _, p := range r.problems {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, common.ErrProblemNotFound
}

func (r *fakeProblemRepo) ListProblems(ctx context.Context, limit, offset int, difficulty model.ProblemDifficulty, tagSlugs []string, searchTerm string) ([]model.Problem, int, error) {
	var out []model.Problem
	for _, p := range r.problems {
		if difficulty != "" && p.Difficulty != difficulty {
			continue
		}
		if len(tagSlugs) > 0 && !hasAny(p.Tags, tagSlugs) {
			continue
		}
		if searchTerm != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(searchTerm)) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func hasAny(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[string]*model.Submission
	failCreate  bool
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: map[string]*model.Submission{}}
}

func (r *fakeSubmissionRepo) snapshot() func() {
	r.mu.Lock()
	saved := make(map[string]*model.Submission, len(r.submissions))
	for k, v := range r.submissions {
		saved[k] = v
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.submissions = saved
		r.mu.Unlock()
	}
}

func (r *fakeSubmissionRepo) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errInjected
	}
	cp := *sub
	r.submissions[sub.ID] = &cp
	return nil
}

func (r *fakeSubmissionRepo) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, common.ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSubmissionRepo) ListSubmissionsForUser(ctx context.Context, userID, problemID string, limit, offset int) ([]model.SubmissionSummary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SubmissionSummary
	for _, s := range r.submissions {
		if s.UserID != userID || (problemID != "" && s.ProblemID != problemID) {
			continue
		}
		out = append(out, model.SubmissionSummary{ID: s.ID, ProblemID: s.ProblemID, Language: s.Language, Verdict: s.Verdict, CreatedAt: s.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// put stores a submission directly, bypassing grading.
func (r *fakeSubmissionRepo) put(sub *model.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[sub.ID] = sub
}

func (r *fakeSubmissionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions)
}

type fakeJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*model.ProgressJob
	failCreate bool
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*model.ProgressJob{}}
}

func (r *fakeJobRepo) snapshot() func() {
	r.mu.Lock()
	saved := make(map[string]*model.ProgressJob, len(r.jobs))
	for k, v := range r.jobs {
		saved[k] = v
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.jobs = saved
		r.mu.Unlock()
	}
}

func (r *fakeJobRepo) CreateJob(ctx context.Context, tx *sql.Tx, job *model.ProgressJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errInjected
	}
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) GetJobByID(ctx context.Context, id string) (*model.ProgressJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) UpdateJobStatus(ctx context.Context, tx *sql.Tx, jobID string, status string, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return common.ErrNotFound
	}
	j.Status = status
	j.LastError = lastError
	j.UpdatedAt = time.Now()
	return nil
}

func (r *fakeJobRepo) IncrementJobAttempts(ctx context.Context, tx *sql.Tx, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		j.Attempts++
	}
	return nil
}

func (r *fakeJobRepo) RequeueJob(ctx context.Context, tx *sql.Tx, jobID string, from string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = model.JobStatusQueued
	j.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeJobRepo) ListJobsByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]model.ProgressJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ProgressJob
	for _, j := range r.jobs {
		if j.Status == status && j.UpdatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) all() []model.ProgressJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ProgressJob
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	return out
}

type fakeProgressRepo struct {
	mu        sync.Mutex
	progress  map[string]*model.UserProgress
	processed map[string]bool
	failMark  bool
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{progress: map[string]*model.UserProgress{}, processed: map[string]bool{}}
}

func (r *fakeProgressRepo) snapshot() func() {
	r.mu.Lock()
	savedProgress := make(map[string]*model.UserProgress, len(r.progress))
	for k, v := range r.progress {
		savedProgress[k] = v.Clone()
	}
	savedProcessed := make(map[string]bool, len(r.processed))
	for k, v := range r.processed {
		savedProcessed[k] = v
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.progress = savedProgress
		r.processed = savedProcessed
		r.mu.Unlock()
	}
}

func (r *fakeProgressRepo) IsSubmissionProcessed(ctx context.Context, tx *sql.Tx, submissionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed[submissionID], nil
}

func (r *fakeProgressRepo) MarkSubmissionProcessed(ctx context.Context, tx *sql.Tx, submissionID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMark {
		return errInjected
	}
	r.processed[submissionID] = true
	return nil
}

func (r *fakeProgressRepo) LoadProgressForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.UserProgress, error) {
	return r.GetProgress(ctx, userID)
}

func (r *fakeProgressRepo) SaveProgress(ctx context.Context, tx *sql.Tx, p *model.UserProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[p.UserID] = p.Clone()
	return nil
}

func (r *fakeProgressRepo) GetProgress(ctx context.Context, userID string) (*model.UserProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.progress[userID]; ok {
		return p.Clone(), nil
	}
	return model.NewUserProgress(userID), nil
}

func (r *fakeProgressRepo) GetLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LeaderboardEntry
	for _, p := range r.progress {
		out = append(out, model.LeaderboardEntry{UserID: p.UserID, ProblemsSolved: len(p.Solved), BadgeCount: len(p.Badges)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProblemsSolved != out[j].ProblemsSolved {
			return out[i].ProblemsSolved > out[j].ProblemsSolved
		}
		if out[i].BadgeCount != out[j].BadgeCount {
			return out[i].BadgeCount > out[j].BadgeCount
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	model.AssignRanks(out)
	return out, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	updates []events.ProgressUpdated
	alerts  []events.Alert
}

func (p *fakePublisher) PublishProgressUpdated(ctx context.Context, ev events.ProgressUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, ev)
	return nil
}

func (p *fakePublisher) PublishAlert(ctx context.Context, a events.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *fakePublisher) updateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

// scriptedExecutor behaves according to the submitted source:
//
//	always5  prints 5
//	sum      prints the sum of the integers on stdin
//	echo     prints stdin
//	compile  fails to compile
//	crash    writes to stderr and exits 1
//	down     backend unreachable
type scriptedExecutor struct{}

func (scriptedExecutor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	ms, kb := 12, 2048
	ok := &executor.Result{StatusID: 3, TimeMs: &ms, MemoryKb: &kb}
	switch req.SourceCode {
	case "always5":
		ok.Stdout = "5\n"
	case "sum":
		total := 0
		for _, f := range strings.Fields(req.Stdin) {
			n, _ := strconv.Atoi(f)
			total += n
		}
		ok.Stdout = fmt.Sprintf("%d\n", total)
	case "echo":
		ok.Stdout = req.Stdin
	case "compile":
		return &executor.Result{StatusID: 6, CompileOutput: "main.cpp:1: error: expected ';'"}, nil
	case "crash":
		code := 1
		return &executor.Result{StatusID: 11, Stderr: "Traceback: ZeroDivisionError", ExitCode: &code, RuntimeFailure: true}, nil
	case "down":
		return nil, &executor.ExecutionError{Kind: executor.ErrBackendUnavailable, Attempts: 3, Err: errInjected}
	}
	return ok, nil
}

func sumProblem() *model.Problem {
	return &model.Problem{
		ID:             "p-sum",
		Title:          "Sum Two",
		Slug:           "sum-two",
		Difficulty:     model.DifficultyEasy,
		RuntimeLimitMs: 1000,
		Tags:           []string{"math"},
		StarterCode:    map[string]string{"python": "a, b = map(int, input().split())", "cobol": "IDENTIFICATION DIVISION."},
		TestCases: []model.TestCase{
			{ID: "t1", Input: "2 3", ExpectedOutput: "5", IsSample: true, SortOrder: 0},
			{ID: "t2", Input: "10 20", ExpectedOutput: "30", SortOrder: 1},
		},
	}
}

type harness struct {
	problems    *fakeProblemRepo
	submissions *fakeSubmissionRepo
	jobs        *fakeJobRepo
	progress    *fakeProgressRepo
	publisher   *fakePublisher
	redis       *miniredis.Miniredis
	rdb         *redis.Client

	jobService        *ProgressJobService
	submissionService *SubmissionService
	progressService   *ProgressService
}

const (
	testQueue           = "progress_jobs_queue"
	testProcessingLease = 10 * time.Minute
)

func newHarness(t *testing.T, problems ...*model.Problem) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	h := &harness{
		problems:    newFakeProblemRepo(problems...),
		submissions: newFakeSubmissionRepo(),
		jobs:        newFakeJobRepo(),
		progress:    newFakeProgressRepo(),
		publisher:   &fakePublisher{},
		redis:       mr,
		rdb:         rdb,
	}
	tx := &fakeTxRunner{parts: []txParticipant{h.submissions, h.jobs, h.progress}}
	h.jobService = NewProgressJobService(h.jobs, rdb, testQueue, testProcessingLease)
	h.submissionService = NewSubmissionService(
		h.submissions, h.problems, h.jobService,
		judge.NewEvaluator(scriptedExecutor{}, 4),
		model.NewLanguageCatalog(model.DefaultLanguages()),
		tx,
		SubmissionConfig{
			GradingDeadline:      5 * time.Second,
			RunDeadline:          2 * time.Second,
			DefaultTimeLimit:     time.Second,
			DefaultMemoryLimitKb: 128000,
		},
	)
	h.progressService = NewProgressService(h.submissions, h.problems, h.progress, queue.NewLocalLocker(), tx, h.publisher)
	return h
}
