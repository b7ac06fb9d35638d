package handler

import (
	"net/http"
	"time"
	"tle_zone_grader/internal/api/middleware"
	"tle_zone_grader/internal/app/service"
	"tle_zone_grader/internal/common"

	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	jobService *service.ProgressJobService
}

func NewAdminHandler(js *service.ProgressJobService) *AdminHandler {
	return &AdminHandler{jobService: js}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)
	r.Post("/progress/requeue", h.requeueProgress)
}

type requeueRequest struct {
	Failed       bool `json:"failed"`        // dead-lettered jobs instead of stale queued ones
	StaleSeconds int  `json:"stale_seconds"` // default 60
	Limit        int  `json:"limit"`         // default 500
}

func (h *AdminHandler) requeueProgress(w http.ResponseWriter, r *http.Request) {
	req := requeueRequest{}
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = 500
	}
	if req.StaleSeconds <= 0 {
		req.StaleSeconds = 60
	}

	var (
		n   int
		err error
	)
	if req.Failed {
		n, err = h.jobService.RequeueFailed(r.Context(), req.Limit)
	} else {
		n, err = h.jobService.RequeueStale(r.Context(), time.Duration(req.StaleSeconds)*time.Second, req.Limit)
	}
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
