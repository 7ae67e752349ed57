// Package gradeingest receives grading results from an external autograder
// and forwards them to the provisioning engine.
package gradeingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/provision"
)

const loggerName = "grade_ingest"

// DefProcessingTimeout is the max. duration a grade is processed after the
// request was received.
const DefProcessingTimeout = 2 * time.Minute

// GradeHandler stores grades and advances the provisioning status.
type GradeHandler interface {
	HandleNewGrade(ctx context.Context, org, repoID, stage string, grade *provision.GradeRecord) (bool, error)
}

// Service is the HTTP endpoint for grading results.
// A structurally valid payload is always acknowledged, failures to process
// it are only logged. The grading source can not act on them.
type Service struct {
	handler           GradeHandler
	webhookSecret     []byte
	processingTimeout time.Duration
	logger            *zap.Logger
}

type Option func(*Service)

// WithPayloadSecret enables the validation of the X-Hub-Signature-256 header
// of requests.
func WithPayloadSecret(secret string) Option {
	return func(s *Service) {
		s.webhookSecret = []byte(secret)
	}
}

func WithProcessingTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.processingTimeout = d
	}
}

func New(handler GradeHandler, opts ...Option) *Service {
	s := Service{
		handler:           handler,
		processingTimeout: DefProcessingTimeout,
		logger:            zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&s)
	}

	return &s
}

// RegisterHandlers registers the grade endpoint at path.
func (s *Service) RegisterHandlers(mux *http.ServeMux, path string) {
	mux.HandleFunc("POST "+path, s.HTTPHandler)
}

// payload is the grading result sent by the autograder.
type payload struct {
	Org       string         `json:"org"`
	RepoID    string         `json:"repoId"`
	Stage     string         `json:"stage"`
	Score     *float64       `json:"score"`
	Comment   string         `json:"comment"`
	URL       string         `json:"url"`
	Timestamp int64          `json:"timestamp"`
	Custom    map[string]any `json:"custom"`
}

func (p *payload) validate() error {
	if p.Org == "" {
		return portalerr.NewValidationError("org is missing")
	}

	if p.RepoID == "" {
		return portalerr.NewValidationError("repoId is missing")
	}

	if p.Stage == "" {
		return portalerr.NewValidationError("stage is missing")
	}

	if p.Score == nil {
		return portalerr.NewValidationError("score is missing")
	}

	if p.Timestamp < 0 {
		return portalerr.NewValidationError("timestamp must not be negative")
	}

	return nil
}

func (p *payload) gradeRecord() *provision.GradeRecord {
	ts := time.Now().UTC()
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp).UTC()
	}

	return &provision.GradeRecord{
		Score:     *p.Score,
		Comment:   p.Comment,
		URL:       p.URL,
		Timestamp: ts,
		Custom:    p.Custom,
	}
}

type response struct {
	Success bool     `json:"success"`
	Failure *failure `json:"failure,omitempty"`
}

type failure struct {
	Message string `json:"message"`
}

func (s *Service) writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Info("sending http response failed", zap.Error(err))
	}
}

func (s *Service) reject(logger *zap.Logger, w http.ResponseWriter, msg string) {
	metrics.RequestProcessed(resultLabelInvalidVal)
	s.writeJSON(logger, w, http.StatusBadRequest, &response{Failure: &failure{Message: msg}})
}

func (s *Service) HTTPHandler(w http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	logger := s.logger.With(zap.String("delivery_id", deliveryID))

	logger.Debug("received a http request", logfields.Event("grade_received"))

	body, err := github.ValidatePayload(req, s.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("grade_request_validation_failed"),
			zap.Error(err),
		)
		s.reject(logger, w, "payload validation failed")
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("grade_parsing_failed"),
			zap.Error(err),
		)
		s.reject(logger, w, "payload is not valid json")
		return
	}

	if err := p.validate(); err != nil {
		logger.Info(
			"received invalid grade",
			logfields.Event("grade_invalid"),
			zap.Error(err),
		)
		s.reject(logger, w, err.Error())
		return
	}

	logger = logger.With(logfields.Org(p.Org), logfields.Repository(p.RepoID), logfields.Stage(p.Stage))

	// the grading source does not wait for the result, processing continues
	// when it disconnects
	ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), s.processingTimeout)
	defer cancel()

	stored, err := s.handler.HandleNewGrade(ctx, p.Org, p.RepoID, p.Stage, p.gradeRecord())
	switch {
	case err != nil:
		metrics.RequestProcessed(string(portalerr.KindOf(err)))
		logger.Error(
			"processing grade failed",
			logfields.Event("grade_processing_failed"),
			zap.Error(err),
		)

	case !stored:
		metrics.RequestProcessed(resultLabelNotStoredVal)
		logger.Warn("grade was not stored", logfields.Event("grade_not_stored"))

	default:
		metrics.RequestProcessed(resultLabelAcceptedVal)
		logger.Info(
			"grade processed",
			logfields.Event("grade_processed"),
			zap.Float64("score", *p.Score),
		)
	}

	s.writeJSON(logger, w, http.StatusOK, &response{Success: true})
}
