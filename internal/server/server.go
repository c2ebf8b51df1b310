// Package server exposes the core pipeline as an HTTP service, grounded on
// the teacher's server package (chi router, JWT bearer auth, sqlite-backed
// persistence). It never runs during ordinary CLI file processing.
package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pellmont/luapp/internal/driver"
	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/server/dao"
	"github.com/pellmont/luapp/internal/token"
	"github.com/pellmont/luapp/internal/transpile"
	"github.com/pellmont/luapp/internal/value"
)

var (
	ErrBadCredentials = errors.New("the supplied username/password combination is incorrect")
	ErrUnauthorized   = errors.New("missing or invalid bearer token")
)

// Config configures a Server. Username/PasswordHash authenticate the single
// configured account; Secret signs issued JWTs. NoAuth disables the bearer
// requirement entirely, for local experimentation.
type Config struct {
	Username     string
	PasswordHash string // bcrypt, base64-encoded, as the teacher stores it
	Secret       []byte
	NoAuth       bool

	Driver driver.Config
	Jobs   dao.JobRepository
}

// Server is an HTTP service wrapping the core preprocessing pipeline.
type Server struct {
	cfg    Config
	router chi.Router
}

// New builds a Server. If cfg.Jobs is nil, jobs aren't persisted and
// GET /jobs/{id} always reports not found.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.router = s.buildRouter()
	return s
}

// ListenAndServe is a one-shot convenience entry point used by cmd/luapp's
// --serve flag: an ephemeral secret and single dev account, mirroring the
// teacher's "no secret configured -> generate one, tokens die with the
// process" testing-mode posture.
func ListenAndServe(ctx context.Context, addr string, driverCfg driver.Config) error {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate session secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if driverCfg.Runtime == nil {
		driverCfg.Runtime = runtime.Mini{}
	}

	s := New(Config{
		Username:     "admin",
		PasswordHash: base64.StdEncoding.EncodeToString(hash),
		Secret:       secret,
		Driver:       driverCfg,
	})

	srv := &http.Server{Addr: addr, Handler: s.router}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)

	r.Post("/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		if !s.cfg.NoAuth {
			r.Use(s.requireAuth)
		}
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{id}", s.handleGetJob)
	})

	return r
}

// ServeHTTP lets a *Server be used directly as an http.Handler, e.g. in
// tests via httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Username != s.cfg.Username {
		writeError(w, http.StatusUnauthorized, ErrBadCredentials)
		return
	}
	hash, err := base64.StdEncoding.DecodeString(s.cfg.PasswordHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, ErrBadCredentials)
		return
	}

	tok, err := s.generateJWT(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) generateJWT(username string) (string, error) {
	claims := jwt.MapClaims{
		"iss": "luapp",
		"sub": username,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return tok.SignedString(s.cfg.Secret)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokStr, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		_, err = jwt.Parse(tokStr, func(t *jwt.Token) (interface{}, error) {
			return s.cfg.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithIssuer("luapp"), jwt.WithLeeway(time.Minute))
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("%w: %s", ErrUnauthorized, err))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", fmt.Errorf("no authorization header present")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("authorization header not in Bearer format")
	}
	return strings.TrimSpace(parts[1]), nil
}

type jobResponse struct {
	ID                  string `json:"id"`
	Output              string `json:"output"`
	HasPreprocessorCode bool   `json:"hasPreprocessorCode"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	src, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := s.cfg.Driver
	cfg.AddLineNumbers = queryBool(r, "linenumbers")
	cfg.Debug = queryBool(r, "debug")

	output, hasPP, err := runPipeline(r.Context(), src, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job := dao.Job{Source: src, Output: output, HasPreprocessorCode: hasPP}
	if s.cfg.Jobs != nil {
		job, err = s.cfg.Jobs.Create(r.Context(), job)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	} else {
		job.ID = uuid.New()
	}

	writeJSON(w, http.StatusCreated, jobResponse{ID: job.ID.String(), Output: output, HasPreprocessorCode: hasPP})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("id is not a valid UUID"))
		return
	}
	if s.cfg.Jobs == nil {
		writeError(w, http.StatusNotFound, dao.ErrNotFound)
		return
	}

	job, err := s.cfg.Jobs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{ID: job.ID.String(), Output: job.Output, HasPreprocessorCode: job.HasPreprocessorCode})
}

// runPipeline runs the lex/transpile/execute pipeline against src in
// memory, without touching the filesystem the way driver.ProcessFile does.
func runPipeline(ctx context.Context, src string, cfg driver.Config) (output string, hasPreprocessorCode bool, err error) {
	const name = "<job>"

	toks, err := lexer.Lex(name, src)
	if err != nil {
		return "", false, err
	}
	for _, t := range toks {
		if t.Kind == token.PPEntry {
			hasPreprocessorCode = true
			break
		}
	}

	rt := cfg.Runtime
	if rt == nil {
		rt = runtime.Mini{}
	}

	program, err := transpile.Transpile(name, toks, transpile.Options{
		AddLineNumbers: cfg.AddLineNumbers,
		Debug:          cfg.Debug,
		CompileCheck:   rt.CompileCheck,
		Source:         src,
	})
	if err != nil {
		return "", hasPreprocessorCode, err
	}

	env := runtime.NewEnvironment()
	var out strings.Builder
	sinks := runtime.Sinks{
		OutputLua: func(v string) { out.WriteString(v) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, cfg.Debug)
			if err != nil {
				return err
			}
			out.WriteString(lit)
			return nil
		},
	}
	if err := rt.Run(ctx, program, env, sinks); err != nil {
		return "", hasPreprocessorCode, err
	}

	return out.String(), hasPreprocessorCode, nil
}

func queryBool(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
