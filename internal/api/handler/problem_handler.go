package handler

import (
	"net/http"
	"strconv"
	"strings"
	"tle_zone_grader/internal/app/service"
	"tle_zone_grader/internal/common"
	"tle_zone_grader/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ProblemHandler struct {
	problemService *service.ProblemService
}

func NewProblemHandler(ps *service.ProblemService) *ProblemHandler {
	return &ProblemHandler{problemService: ps}
}

func (h *ProblemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listProblems)            // GET /api/v1/problems
	r.Get("/{problemSlug}", h.getProblem) // GET /api/v1/problems/two-sum
}

// pageParams reads ?page= and ?pageSize=; the service clamps bad values.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}

func (h *ProblemHandler) listProblems(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	q := r.URL.Query()

	var tags []string
	if raw := q.Get("tags"); raw != "" {
		tags = strings.Split(raw, ",") // comma-separated tag names or slugs
	}

	result, err := h.problemService.ListProblems(r.Context(), page, pageSize, model.ProblemDifficulty(q.Get("difficulty")), tags, q.Get("search"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, result)
}

func (h *ProblemHandler) getProblem(w http.ResponseWriter, r *http.Request) {
	problem, err := h.problemService.GetProblemDetails(r.Context(), chi.URLParam(r, "problemSlug"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, problem)
}

func (h *ProblemHandler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, h.problemService.Languages())
}
