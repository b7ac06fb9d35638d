package service

import (
	"context"
	"strings"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/domain/repository"

	"github.com/gosimple/slug"
)

type ProblemService struct {
	problemRepo repository.ProblemRepository
	languages   *model.LanguageCatalog
}

func NewProblemService(problemRepo repository.ProblemRepository, languages *model.LanguageCatalog) *ProblemService {
	return &ProblemService{problemRepo: problemRepo, languages: languages}
}

// ProblemDetails is the public view of a problem: sample tests only, starter
// code only for languages that can be submitted.
type ProblemDetails struct {
	*model.Problem
	Samples []model.TestCase `json:"samples"`
}

func (s *ProblemService) GetProblemDetails(ctx context.Context, problemSlug string) (*ProblemDetails, error) {
	problem, err := s.problemRepo.FindProblemBySlug(ctx, problemSlug)
	if err != nil {
		return nil, err
	}

	details := &ProblemDetails{Problem: problem, Samples: []model.TestCase{}}
	for _, tc := range problem.TestCases {
		if tc.IsSample {
			details.Samples = append(details.Samples, tc)
		}
	}
	starter := make(map[string]string, len(problem.StarterCode))
	for lang, code := range problem.StarterCode {
		if _, ok := s.languages.Resolve(lang); ok {
			starter[lang] = code
		}
	}
	problem.StarterCode = starter
	return details, nil
}

func (s *ProblemService) ListProblems(ctx context.Context, page, pageSize int, difficulty model.ProblemDifficulty, tags []string, search string) (*common.PageResponse, error) {
	page, pageSize = normalizePage(page, pageSize)
	switch difficulty {
	case "", model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return nil, common.Errorf("unknown difficulty %q: %w", difficulty, common.ErrBadRequest)
	}

	// tags arrive as free text ("Dynamic Programming") and are matched by slug
	var tagSlugs []string
	for _, t := range tags {
		if ts := slug.Make(t); ts != "" {
			tagSlugs = append(tagSlugs, ts)
		}
	}

	problems, total, err := s.problemRepo.ListProblems(ctx, pageSize, (page-1)*pageSize, difficulty, tagSlugs, strings.TrimSpace(search))
	if err != nil {
		return nil, common.Errorf("failed to list problems: %w", err)
	}
	if problems == nil {
		problems = []model.Problem{}
	}
	return &common.PageResponse{Items: problems, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *ProblemService) Languages() []model.Language {
	return s.languages.List()
}
