// Package server exposes BOM generation and license checks over HTTP.
//
// Routes:
//
//	GET  /healthz             liveness probe
//	POST /v1/bom/{type}       resolve the manifest in the request body;
//	                          type is conda, requirements or pyproject
//	GET  /v1/license?q=TEXT   check a license string against the oracle
//
// Every response carries an X-Request-ID header. Errors are JSON objects
// with "error", "code" and "request_id" fields.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/matzehuels/superbom/pkg/bom"
	"github.com/matzehuels/superbom/pkg/deps"
	"github.com/matzehuels/superbom/pkg/deps/conda"
	"github.com/matzehuels/superbom/pkg/deps/python"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/license"
)

const (
	defaultMaxBody         = 1 << 20
	defaultShutdownTimeout = 10 * time.Second

	headerRequestID = "X-Request-ID"
)

// Manifest types accepted by POST /v1/bom/{type}.
const (
	TypeConda        = "conda"
	TypeRequirements = "requirements"
	TypePyproject    = "pyproject"
)

// Resolver turns a parsed manifest into a report. [*bom.Assembler]
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, res *deps.ManifestResult, label string) *bom.ManifestReport
}

// Options configures a [Server].
type Options struct {
	Resolver Resolver       // required
	Oracle   license.Oracle // required
	Logger   *log.Logger    // defaults to log.Default()
	MaxBody  int64          // request body limit in bytes, defaults to 1 MiB
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	router chi.Router
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/bom/{type}", s.handleBOM)
		r.Get("/license", s.handleLicense)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		s.opts.Logger.Warn("write error", "err", err)
	}
}

func (s *Server) handleBOM(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge,
				bomerrors.New(bomerrors.ErrCodeInvalidInput, "manifest exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeCodedError(w, r, bomerrors.Wrap(bomerrors.ErrCodeInvalidInput, err, "read body"))
		return
	}

	res, err := parseManifest(typ, data)
	if err != nil {
		s.writeCodedError(w, r, err)
		return
	}
	label := r.URL.Query().Get("label")
	if label == "" {
		label = bom.DefaultLabel
	}

	report := s.opts.Resolver.Resolve(r.Context(), res, label)
	if err := r.Context().Err(); err != nil {
		s.opts.Logger.Warn("request cancelled", "request_id", requestIDFrom(r.Context()), "err", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleLicense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeCodedError(w, r, bomerrors.New(bomerrors.ErrCodeInvalidInput, "query parameter q is required"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, struct {
		Input string `json:"input"`
		license.Verdict
	}{q, s.opts.Oracle.Check(q)})
}

// parseManifest parses a request body as a manifest of the given type.
// typ is an ecosystem name or alias ("environment", "pip", "poetry", ...);
// the result carries the canonical manifest type. Parsing never fails; an
// unknown type is UNSUPPORTED.
func parseManifest(typ string, data []byte) (*deps.ManifestResult, error) {
	eco, err := deps.ParseEcosystem(typ)
	if err != nil {
		return nil, bomerrors.Wrap(bomerrors.ErrCodeUnsupported, err,
			"unknown manifest type %q (available: conda, requirements, pyproject)", typ)
	}
	switch eco {
	case deps.Conda:
		return conda.ParseEnvironment(data).Result(TypeConda, ""), nil
	case deps.Pip:
		return &deps.ManifestResult{Type: TypeRequirements, Dependencies: python.ParseRequirementsData(data)}, nil
	default:
		return &deps.ManifestResult{Type: TypePyproject, Dependencies: python.ParsePyproject(data)}, nil
	}
}

// =============================================================================
// Responses
// =============================================================================

type errorBody struct {
	Error     string         `json:"error"`
	Code      bomerrors.Code `json:"code,omitempty"`
	RequestID string         `json:"request_id"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.opts.Logger.Warn("write error", "request_id", requestIDFrom(r.Context()), "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, r, status, errorBody{
		Error:     bomerrors.UserMessage(err),
		Code:      bomerrors.GetCode(err),
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeCodedError derives the status from err's code.
func (s *Server) writeCodedError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, bomerrors.HTTPStatus(err), err)
}

// =============================================================================
// Middleware
// =============================================================================

type ctxKey int

const requestIDKey ctxKey = 0

// requestID assigns every request an ID, reusing a valid incoming
// X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Info("request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "took", time.Since(start).Round(time.Millisecond),
			"request_id", requestIDFrom(r.Context()))
	})
}
