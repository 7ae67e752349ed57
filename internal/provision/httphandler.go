package provision

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

// HTTPService exposes the operations of an Engine via HTTP.
type HTTPService struct {
	engine *Engine
	logger *zap.Logger
}

func NewHTTPService(engine *Engine) *HTTPService {
	return &HTTPService{
		engine: engine,
		logger: engine.logger.Named("http_service"),
	}
}

// RegisterHandlers registers the handlers below prefix, prefix must not end
// with a slash.
func (h *HTTPService) RegisterHandlers(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/orgs/{org}/stages/{stage}/provision", h.HandlerProvision)
	mux.HandleFunc("GET "+prefix+"/orgs/{org}/persons/{person}/status", h.HandlerStatus)
	mux.HandleFunc("POST "+prefix+"/orgs/{org}/teams/{team}/reset", h.HandlerResetTeam)
}

type provisionRequest struct {
	Members []string `json:"members"`
}

func (h *HTTPService) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Info("sending http response failed", zap.Error(err))
	}
}

func httpStatus(kind portalerr.Kind) int {
	switch kind {
	case portalerr.KindNone:
		return http.StatusOK
	case portalerr.KindValidation:
		return http.StatusBadRequest
	case portalerr.KindLockContention, portalerr.KindBlocked:
		return http.StatusConflict
	case portalerr.KindTransient, portalerr.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandlerProvision provisions the members passed in the JSON body for the
// stage. The response body is the Result.
func (h *HTTPService) HandlerProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, failureResult(
			portalerr.NewValidationError("request body is not valid: %s", err),
		))
		return
	}

	result := h.engine.Provision(r.Context(), r.PathValue("org"), r.PathValue("stage"), req.Members)
	if result.Failure != nil {
		h.writeJSON(w, httpStatus(result.Failure.Kind), result)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPService) HandlerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetStatus(r.Context(), r.PathValue("org"), r.PathValue("person"))
	if err != nil {
		h.logger.Warn(
			"retrieving status failed",
			logfields.Event("status_retrieval_failed"),
			logfields.Org(r.PathValue("org")),
			logfields.Person(r.PathValue("person")),
			zap.Error(err),
		)

		h.writeJSON(w, http.StatusInternalServerError, failureResult(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": status})
}

func (h *HTTPService) HandlerResetTeam(w http.ResponseWriter, r *http.Request) {
	err := h.engine.ResetTeam(r.Context(), r.PathValue("org"), r.PathValue("team"))
	if err != nil {
		h.writeJSON(w, httpStatus(portalerr.KindOf(err)), failureResult(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
