// Package server exposes cubes over HTTP. Slice requests are scheduled on
// the worker queue through Sessions and assembled from partial results.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	seismic "github.com/qri-io/seismic-go"
	"github.com/qri-io/seismic-go/internal/worker"
)

// RequestIDHeader carries the pid of a request back to the client
const RequestIDHeader = "X-Request-Id"

type Server struct {
	store    seismic.Store
	sessions *Sessions
	timeout  time.Duration
	auth     *Authenticator
	log      *zap.Logger
}

// New creates a server reading manifests from store and scheduling slices
// through sessions. A zero timeout disables the per-request deadline.
func New(store seismic.Store, sessions *Sessions, timeout time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		store:    store,
		sessions: sessions,
		timeout:  timeout,
		log:      log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{guid}", s.manifest)
	mux.HandleFunc("GET /{guid}/slice", s.dimensions)
	mux.HandleFunc("GET /{guid}/slice/{dim}", s.lines)
	mux.HandleFunc("GET /{guid}/slice/{dim}/{lineno}", s.slice)

	var h http.Handler = mux
	if s.auth != nil {
		h = s.auth.Middleware(h)
	}
	return s.withRequestID(h)
}

// RequireAuth puts token validation in front of every route
func (s *Server) RequireAuth(a *Authenticator) {
	s.auth = a
}

type pidKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pid := uuid.New().String()
		w.Header().Set(RequestIDHeader, pid)
		ctx := context.WithValue(r.Context(), pidKey{}, pid)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.log.Debug("request",
			zap.String("pid", pid),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func requestID(ctx context.Context) string {
	pid, _ := ctx.Value(pidKey{}).(string)
	return pid
}

// ManifestSummary describes a cube
type ManifestSummary struct {
	GUID          string  `json:"guid"`
	Shape         []int   `json:"shape"`
	FragmentShape []int   `json:"fragment-shape"`
	Fragments     []int   `json:"fragments"`
	Dtype         string  `json:"dtype"`
	Compressor    *string `json:"compressor"`
	Samples       int     `json:"samples"`
}

// SliceResponse is an assembled slice in row-major order
type SliceResponse struct {
	Shape []int     `json:"shape"`
	V     []float32 `json:"v"`
}

func (s *Server) open(r *http.Request) (*seismic.Cube, error) {
	return seismic.Open(r.Context(), s.store, r.PathValue("guid"))
}

func (s *Server) manifest(w http.ResponseWriter, r *http.Request) {
	cube, err := s.open(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g := cube.Geometry()
	sum := ManifestSummary{
		GUID:          cube.GUID(),
		Shape:         g.CubeShape().Ints(),
		FragmentShape: g.FragmentShape().Ints(),
		Fragments:     g.GridShape().Ints(),
		Dtype:         cube.Manifest().SampleType().String(),
		Samples:       g.GlobalSize(),
	}
	if c := cube.Manifest().Compressor; c != nil && c.ID != "" {
		sum.Compressor = &c.ID
	}
	s.writeJSON(w, sum)
}

func (s *Server) dimensions(w http.ResponseWriter, r *http.Request) {
	cube, err := s.open(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dims := make([]int, cube.Geometry().Dimensions())
	for i := range dims {
		dims[i] = i
	}
	s.writeJSON(w, dims)
}

func (s *Server) lines(w http.ResponseWriter, r *http.Request) {
	dim, err := pathInt(r, "dim")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cube, err := s.open(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lines, err := cube.Manifest().Lines(seismic.Dimension(dim))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, lines)
}

func (s *Server) slice(w http.ResponseWriter, r *http.Request) {
	dim, err := pathInt(r, "dim")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lineno, err := pathInt(r, "lineno")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	task := worker.Task{
		PID:    requestID(ctx),
		GUID:   r.PathValue("guid"),
		Dim:    dim,
		Lineno: lineno,
	}
	partials, err := s.sessions.Schedule(ctx, task)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res := &seismic.SliceResult{Dim: seismic.Dimension(dim)}
	for _, p := range partials {
		res.Index = p.Index
		res.Shape = p.Shape
		res.Tiles = append(res.Tiles, p.Tiles...)
	}
	v, err := res.Assemble()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, SliceResponse{Shape: res.Shape, V: v})
}

var errBadRequest = errors.New("bad request")

func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", errBadRequest, name, raw)
	}
	return i, nil
}

// StatusCode maps an error to the HTTP status reported for it
func StatusCode(err error) int {
	switch {
	case errors.Is(err, seismic.ErrNotfound),
		errors.Is(err, seismic.ErrLineNotFound),
		errors.Is(err, seismic.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, seismic.ErrDimensionality),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("writing response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	log := s.log.With(zap.String("pid", requestID(r.Context())), zap.Int("status", code))
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
