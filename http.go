package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arlberg/triage/internal/model"
)

type scheduleRequest struct {
	TestCases      []model.TestCase `json:"testCases"`
	Repeats        int              `json:"repeats,omitempty"`
	TimeoutSeconds float64          `json:"timeoutSeconds,omitempty"`
	Strategy       string           `json:"strategy,omitempty"`
}

type scheduleResponse struct {
	ExecutionID string `json:"executionId"`
}

func (s *Server) router() *httprouter.Router {
	router := httprouter.New()

	router.POST("/batches", s.handleScheduleBatch)
	router.GET("/batches/:execution-id", s.handleGetStatus)
	router.GET("/batches/:execution-id/report", s.handleGetReport)
	router.GET("/health", s.handleHealth)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}

func (s *Server) runHTTP() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.config.Port, err)
	}

	s.port = listener.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{Handler: s.router()}

	close(s.started)

	s.log.Info("http server started", "port", s.port)

	if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) stopHTTP(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// WaitForStartup blocks until the HTTP server is accepting connections.
func (s *Server) WaitForStartup() {
	<-s.started
}

// ServerPort returns the port the HTTP server listens on. Only valid after
// WaitForStartup returned.
func (s *Server) ServerPort() int {
	return s.port
}

func (s *Server) httpError(w http.ResponseWriter, err error) {
	var notFound model.NotFoundError
	var malformedRequest model.MalformedRequestError
	var reportPending model.ReportPendingError

	switch {
	case errors.As(err, &notFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.As(err, &malformedRequest):
		w.WriteHeader(http.StatusBadRequest)
	case errors.As(err, &reportPending):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, context.Canceled):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		s.log.Error("internal server error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("error writing response body", "error", err)
	}
}

func (s *Server) handleScheduleBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req scheduleRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.httpError(w, model.MalformedRequestError{Param: "body"})
		return
	}

	params := model.RunParams{
		TriggeredBy: "api",
		Repeats:     req.Repeats,
		Timeout:     time.Duration(req.TimeoutSeconds * float64(time.Second)),
		Strategy:    req.Strategy,
	}

	executionID, err := s.schedule(r.Context(), req.TestCases, params)
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, scheduleResponse{ExecutionID: executionID})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	status, err := s.GetStatus(p.ByName("execution-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetReport(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	report, err := s.GetReport(p.ByName("execution-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}
