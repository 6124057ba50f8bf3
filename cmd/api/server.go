package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"caseflow/agreement"
	"caseflow/apperr"
	"caseflow/complaint"
	"caseflow/eventlog"
	"caseflow/grievance"
	"caseflow/identity"
	"caseflow/sequence"
	"caseflow/steptemplate"
	"caseflow/tracing"
	"caseflow/users"
)

type caseEngine interface {
	Create(ctx context.Context, actor identity.Actor, p grievance.CreateParams) (grievance.Case, error)
	AdvanceStep(ctx context.Context, actor identity.Actor, p grievance.AdvanceParams) (grievance.Step, error)
	UpdateStep(ctx context.Context, actor identity.Actor, p grievance.UpdateStepParams) (grievance.Step, error)
	ChangeAssignee(ctx context.Context, actor identity.Actor, caseID string, assigneeID *string) (grievance.Case, error)
	UpdateStatus(ctx context.Context, actor identity.Actor, p grievance.StatusParams) (grievance.Case, error)
	UpdateField(ctx context.Context, actor identity.Actor, p grievance.FieldParams) (grievance.FieldChange, error)
	UpdateCosts(ctx context.Context, actor identity.Actor, caseID string, estimated, actual decimal.NullDecimal) (grievance.Case, error)
	Delete(ctx context.Context, actor identity.Actor, caseID string) error
	Get(ctx context.Context, actor identity.Actor, caseID string) (grievance.Detail, error)
	Events(ctx context.Context, actor identity.Actor, caseID string) ([]eventlog.Event, error)
}

type caseLister interface {
	ListPage(ctx context.Context, actor identity.Actor, page, pageSize int, f grievance.Filters) (grievance.Page, error)
}

type complaintService interface {
	Create(ctx context.Context, actor identity.Actor, p complaint.CreateParams) (complaint.Complaint, error)
	Get(ctx context.Context, actor identity.Actor, id string) (complaint.Complaint, error)
}

type elevator interface {
	Convert(ctx context.Context, actor identity.Actor, complaintID string) (complaint.ConvertResult, error)
}

type sequenceAllocator interface {
	AllocateNext(ctx context.Context, orgID string, kind sequence.Kind) (int64, error)
}

type agreementService interface {
	List(ctx context.Context, actor identity.Actor) ([]agreement.Agreement, error)
	InitialStep(ctx context.Context, actor identity.Actor, agreementID, caseType, stage string) (steptemplate.Template, error)
	Templates(ctx context.Context, actor identity.Actor, agreementID string) ([]steptemplate.Template, error)
}

type tokenVerifier interface {
	Verify(token string) (identity.Actor, error)
}

// Server carries the services behind the HTTP surface.
type Server struct {
	cases       caseEngine
	lister      caseLister
	complaints  complaintService
	elevator    elevator
	sequences   sequenceAllocator
	agreements  agreementService
	verifier    tokenVerifier
	userLoader  func() *users.Loader
	health      func(ctx context.Context) error
	metricsPath string
	log         logrus.FieldLogger
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.traceRequests, s.logRequests)

	path := s.metricsPath
	if path == "" {
		path = "/metrics"
	}
	r.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/cases", s.handleCreateCase).Methods(http.MethodPost)
	api.HandleFunc("/cases", s.handleListCases).Methods(http.MethodGet)
	api.HandleFunc("/cases/{id}", s.handleGetCase).Methods(http.MethodGet)
	api.HandleFunc("/cases/{id}", s.handleDeleteCase).Methods(http.MethodDelete)
	api.HandleFunc("/cases/{id}/steps", s.handleAdvanceStep).Methods(http.MethodPost)
	api.HandleFunc("/cases/{id}/assignee", s.handleChangeAssignee).Methods(http.MethodPut)
	api.HandleFunc("/cases/{id}/status", s.handleUpdateStatus).Methods(http.MethodPut)
	api.HandleFunc("/cases/{id}/report", s.handleUpdateField).Methods(http.MethodPatch)
	api.HandleFunc("/cases/{id}/costs", s.handleUpdateCosts).Methods(http.MethodPut)
	api.HandleFunc("/cases/{id}/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/steps/{id}", s.handleUpdateStep).Methods(http.MethodPatch)
	api.HandleFunc("/complaints", s.handleCreateComplaint).Methods(http.MethodPost)
	api.HandleFunc("/complaints/{id}", s.handleGetComplaint).Methods(http.MethodGet)
	api.HandleFunc("/complaints/{id}/convert", s.handleConvertComplaint).Methods(http.MethodPost)
	api.HandleFunc("/sequences/{kind}", s.handleAllocate).Methods(http.MethodPost)
	api.HandleFunc("/agreements", s.handleListAgreements).Methods(http.MethodGet)
	api.HandleFunc("/agreements/{id}/initial-step", s.handleInitialStep).Methods(http.MethodGet)
	api.HandleFunc("/agreements/{id}/templates", s.handleTemplates).Methods(http.MethodGet)
	return r
}

// authenticate resolves the bearer token to an actor on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			s.writeError(w, r, apperr.New(apperr.KindUnauthenticated, "sign in to continue"))
			return
		}
		actor, err := s.verifier.Verify(r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, apperr.Wrap(apperr.KindUnauthenticated, "sign in to continue", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Debug("request")
	})
}

func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.Method
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name += " " + tpl
			}
		}
		ctx, span := tracing.Start(r.Context(), name, attribute.String("http.method", r.Method))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actorFrom(r *http.Request) identity.Actor {
	a, _ := identity.FromContext(r.Context())
	return a
}
