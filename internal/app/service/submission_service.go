package service

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"tle_zone_grader/internal/app/judge"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/domain/repository"
	"tle_zone_grader/internal/platform/database"
	"tle_zone_grader/internal/platform/logger"
	"tle_zone_grader/internal/platform/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SubmissionConfig struct {
	GradingDeadline      time.Duration
	RunDeadline          time.Duration
	DefaultTimeLimit     time.Duration
	DefaultMemoryLimitKb int
}

// SubmissionService grades code against a problem's test suite. Submit
// persists the graded submission; Run is an interactive dry run.
type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	jobService     *ProgressJobService
	evaluator      *judge.Evaluator
	languages      *model.LanguageCatalog
	txRunner       database.TxRunner
	cfg            SubmissionConfig
	now            func() time.Time
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	probRepo repository.ProblemRepository,
	jobService *ProgressJobService,
	evaluator *judge.Evaluator,
	languages *model.LanguageCatalog,
	txRunner database.TxRunner,
	cfg SubmissionConfig,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo: subRepo,
		problemRepo:    probRepo,
		jobService:     jobService,
		evaluator:      evaluator,
		languages:      languages,
		txRunner:       txRunner,
		cfg:            cfg,
		now:            time.Now,
	}
}

type CreateSubmissionRequest struct {
	ProblemID string `json:"problem_id"`
	Language  string `json:"language"` // slug or backend id
	Code      string `json:"code"`
}

type RunCodeRequest struct {
	ProblemID string  `json:"problem_id,omitempty"`
	Language  string  `json:"language"`
	Code      string  `json:"code"`
	Stdin     *string `json:"stdin,omitempty"`
}

func (s *SubmissionService) resolveLanguage(key string) (model.Language, error) {
	lang, ok := s.languages.Resolve(key)
	if !ok {
		return model.Language{}, common.Errorf("%q: %w", key, common.ErrUnsupportedLanguage)
	}
	return lang, nil
}

func (s *SubmissionService) limits(p *model.Problem) (time.Duration, int) {
	timeLimit := s.cfg.DefaultTimeLimit
	memory := s.cfg.DefaultMemoryLimitKb
	if p != nil && p.RuntimeLimitMs > 0 {
		timeLimit = time.Duration(p.RuntimeLimitMs) * time.Millisecond
	}
	if p != nil && p.MemoryLimitKb > 0 {
		memory = p.MemoryLimitKb
	}
	return timeLimit, memory
}

// CreateSubmission grades req against every test case of the problem and
// stores the result. Accepted submissions also get a progress outbox job in
// the same transaction; the job is dispatched after commit and its outcome
// never affects the returned submission.
func (s *SubmissionService) CreateSubmission(ctx context.Context, userID string, req CreateSubmissionRequest) (*model.Submission, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, common.Errorf("code must not be empty: %w", common.ErrValidation)
	}
	lang, err := s.resolveLanguage(req.Language)
	if err != nil {
		return nil, err
	}
	problem, err := s.problemRepo.FindProblemByID(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(problem.TestCases) == 0 {
		return nil, common.Errorf("problem %s has no test cases: %w", problem.ID, common.ErrValidation)
	}

	submission := &model.Submission{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProblemID: problem.ID,
		Language:  lang.Slug,
		Code:      req.Code,
		CreatedAt: s.now().UTC(),
	}
	ctx = logger.With(ctx, zap.String("submission_id", submission.ID), zap.String("problem_id", problem.ID))

	timeLimit, memory := s.limits(problem)
	gradeCtx, cancel := context.WithTimeout(ctx, s.cfg.GradingDeadline)
	submission.TestResults = s.evaluator.Evaluate(gradeCtx, judge.Source{Code: req.Code, Language: lang}, problem.TestCases, judge.Options{
		Mode:          judge.ModeFull,
		TimeLimit:     timeLimit,
		MemoryLimitKb: memory,
	})
	cancel()
	submission.Verdict = model.OverallVerdict(submission.TestResults)

	var job *model.ProgressJob
	err = s.txRunner.RunInTx(ctx, func(tx *sql.Tx) error {
		if err := s.submissionRepo.CreateSubmission(ctx, tx, submission); err != nil {
			return err
		}
		if submission.Verdict != model.VerdictAccepted {
			return nil
		}
		job, err = s.jobService.CreateJob(ctx, tx, submission)
		return err
	})
	if err != nil {
		logger.Error(ctx, "failed to store graded submission", zap.Error(err))
		return nil, common.Errorf("%w: %v", common.ErrPersistence, err)
	}
	metrics.SubmissionsTotal.WithLabelValues(string(submission.Verdict)).Inc()

	if job != nil {
		// the sweeper picks the job up if this push is lost
		if err := s.jobService.Dispatch(ctx, job.ID); err != nil {
			logger.Warn(ctx, "progress job left for sweeper", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	logger.Info(ctx, "submission graded",
		zap.String("verdict", string(submission.Verdict)),
		zap.Int("tests", len(submission.TestResults)))
	return submission, nil
}

// RunCode executes code once and reports what it printed. With a problem and
// no stdin the problem's sample test is used and a verdict is included.
// Nothing is persisted.
func (s *SubmissionService) RunCode(ctx context.Context, userID string, req RunCodeRequest) (*model.RunResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, common.Errorf("code must not be empty: %w", common.ErrValidation)
	}
	lang, err := s.resolveLanguage(req.Language)
	if err != nil {
		return nil, err
	}

	var problem *model.Problem
	if req.ProblemID != "" {
		if problem, err = s.problemRepo.FindProblemByID(ctx, req.ProblemID); err != nil {
			return nil, err
		}
	}

	test := model.TestCase{}
	var expected *string
	switch {
	case req.Stdin != nil && *req.Stdin != "":
		test.Input = *req.Stdin
	case problem != nil:
		if sample, ok := problem.SampleTestCase(); ok {
			test = sample
			expected = &sample.ExpectedOutput
		}
	}

	timeLimit, memory := s.limits(problem)
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunDeadline)
	defer cancel()
	outcomes := s.evaluator.Run(runCtx, judge.Source{Code: req.Code, Language: lang}, []model.TestCase{test}, judge.Options{
		Mode:          judge.ModeFailFast,
		TimeLimit:     timeLimit,
		MemoryLimitKb: memory,
	})
	o := outcomes[0]

	res := &model.RunResult{Input: test.Input, Expected: expected}
	if o.Exec != nil {
		res.Stdout = o.Exec.Stdout
		res.Stderr = o.Exec.Stderr
		res.CompileOutput = o.Exec.CompileOutput
		res.TimeMs = o.Exec.TimeMs
		res.MemoryKb = o.Exec.MemoryKb
	}
	switch {
	case o.Err != nil:
		res.Error = o.Result.ActualOutput
	case o.Result.Verdict == model.VerdictRuntimeError && res.Stderr == "":
		res.Error = o.Result.ActualOutput
	case o.Result.Verdict == model.VerdictTimeLimitExceeded:
		res.Error = "Time limit exceeded"
	}
	res.Output = runOutput(res)
	if expected != nil {
		v := o.Result.Verdict
		res.Verdict = &v
	}

	logger.Debug(ctx, "code run finished",
		zap.String("user_id", userID),
		zap.String("language", lang.Slug),
		zap.String("verdict", string(o.Result.Verdict)))
	return res, nil
}

// runOutput picks the most specific diagnostic.
func runOutput(r *model.RunResult) string {
	for _, s := range []string{r.CompileOutput, r.Stderr, r.Error} {
		if s != "" {
			return s
		}
	}
	return r.Stdout
}

// GetSubmission returns the submission if principal may see it. Other users'
// submissions are reported as missing.
func (s *SubmissionService) GetSubmission(ctx context.Context, principal model.Principal, id string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != principal.UserID && !principal.IsAdmin() {
		return nil, common.ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *SubmissionService) ListSubmissions(ctx context.Context, userID, problemID string, page, pageSize int) (*common.PageResponse, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.submissionRepo.ListSubmissionsForUser(ctx, userID, problemID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, common.Errorf("failed to list submissions: %w", err)
	}
	if items == nil {
		items = []model.SubmissionSummary{}
	}
	return &common.PageResponse{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
