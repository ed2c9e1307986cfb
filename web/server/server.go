// Package server exposes the synchronization and projection pipelines over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.viam.com/utils"

	"go.viam.com/sensorsync/service"
	"go.viam.com/sensorsync/timesync"
	rutils "go.viam.com/sensorsync/utils"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-Id"

// Pipelines is the part of service.Service the server calls into.
type Pipelines interface {
	Synchronize(ctx context.Context, root string) (*service.SyncResult, error)
	ProjectFrame(ctx context.Context, frame string) (string, error)
}

// Server routes API requests to the pipelines.
type Server struct {
	pipelines Pipelines
	logger    golog.Logger
	handler   http.Handler
}

// New returns a Server. Use it directly as an http.Handler or call Serve.
func New(pipelines Pipelines, logger golog.Logger) *Server {
	s := &Server{pipelines: pipelines, logger: logger}
	r := mux.NewRouter()
	r.Use(s.withRequestID)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/synchronize", s.handleSynchronize).Methods(http.MethodPost)
	api.HandleFunc("/projection/{frame}", s.handleProjection).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	s.handler = cors.AllowAll().Handler(r)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", addr)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener, which it takes ownership of.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	httpServer, err := utils.NewPossiblySecureHTTPServer(s, utils.HTTPServerOptions{
		Addr: listener.Addr().String(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("serving", "url", "http://"+listener.Addr().String())
		errCh <- httpServer.Serve(listener)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestID(ctx context.Context) string {
	//nolint:errcheck
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		s.logger.Debugw("request", "id", id, "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

type synchronizeRequest struct {
	Root string `json:"root"`
}

type synchronizeResponse struct {
	Reference  timesync.Sensor            `json:"reference"`
	Strategies map[timesync.Sensor]string `json:"strategies"`
	OutputPath string                     `json:"output_path"`
	Records    []timesync.Record          `json:"records"`
}

func (s *Server) handleSynchronize(w http.ResponseWriter, r *http.Request) {
	var req synchronizeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "BadRequest", errors.Wrap(err, "invalid request body"))
		return
	}
	if req.Root == "" {
		s.writeError(w, r, http.StatusBadRequest, "BadRequest", errors.New(`"root" is required`))
		return
	}

	res, err := s.pipelines.Synchronize(r.Context(), req.Root)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	strategies := make(map[timesync.Sensor]string, len(res.Strategies))
	for sensor, strategy := range res.Strategies {
		strategies[sensor] = strategy.String()
	}
	s.writeJSON(w, r, http.StatusOK, synchronizeResponse{
		Reference:  res.Reference,
		Strategies: strategies,
		OutputPath: res.OutputPath,
		Records:    res.Records,
	})
}

type projectionResponse struct {
	OutputPath string `json:"output_path"`
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	out, err := s.pipelines.ProjectFrame(r.Context(), mux.Vars(r)["frame"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, projectionResponse{OutputPath: out})
}

// StatusForKind maps an error kind onto an HTTP status.
func StatusForKind(kind string) int {
	switch kind {
	case "ResourceNotFound":
		return http.StatusNotFound
	case "InvalidTimestampFormat", "InsufficientSamples", "MalformedRecord", "UnorderedSamples", "ShapeMismatch":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := rutils.ErrorKind(err)
	s.writeError(w, r, StatusForKind(kind), kind, err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, kind string, err error) {
	id := requestID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "id", id, "kind", kind, "error", err)
	} else {
		s.logger.Infow("request rejected", "id", id, "kind", kind, "error", err)
	}
	s.writeJSON(w, r, status, map[string]errorBody{
		"error": {Kind: kind, Message: err.Error(), RequestID: id},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Errorw("cannot encode response", "id", requestID(r.Context()), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	w.Write(data)
}
