// Package httpapi implements the compile service: POST /compile takes a
// PMML document and returns the emitted Lua source plus any diagnostics,
// behind bearer-token auth.
package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pmmlc/pmmlc/internal/cache"
	"github.com/pmmlc/pmmlc/internal/obs"
	"github.com/pmmlc/pmmlc/pkg/driver"
	"github.com/pmmlc/pmmlc/pkg/models"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
	"github.com/pmmlc/pmmlc/pkg/xmldom"
)

// Server holds the dependencies the compile route needs. cacheStore may be
// nil, in which case every request recompiles.
type Server struct {
	log        *zap.Logger
	secretKey  string
	cacheStore cache.Store
}

// NewServer builds a chi router exposing the compile service. store may be
// nil to disable the compile cache.
func NewServer(log *zap.Logger, secretKey string, store cache.Store) http.Handler {
	s := &Server{log: log, secretKey: secretKey, cacheStore: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.With(s.requireBearerToken).Post("/compile", s.handleCompile)
	return r
}

// compileResponse is the compile service's JSON shape.
type compileResponse struct {
	CompilationID string   `json:"compilation_id"`
	Source        string   `json:"source,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	id := obs.CompilationID()
	log := obs.WithCompilation(s.log, id)

	body, err := readAll(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, compileResponse{CompilationID: id, Errors: []string{err.Error()}})
		return
	}

	doc, err := xmldom.Parse(bytes.NewReader(body))
	if err != nil {
		log.Warn("malformed PMML document", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, compileResponse{CompilationID: id, Errors: []string{fmt.Sprintf("malformed PMML: %v", err)}})
		return
	}

	cacheKey := cache.KeyFor(body)
	if s.cacheStore != nil {
		if source, ok, err := s.cacheStore.Get(r.Context(), cacheKey); err != nil {
			log.Warn("compile cache lookup failed", zap.Error(err))
		} else if ok {
			log.Info("compile cache hit", zap.String("key", cacheKey))
			writeJSON(w, http.StatusOK, compileResponse{CompilationID: id, Source: source})
			return
		}
	}

	ctx := pmmlctx.New()
	parsed, err := models.ParseRegressionDocument(ctx, doc)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, compileResponse{CompilationID: id, Errors: []string{err.Error()}})
		return
	}
	defer parsed.Release()

	result := driver.Compile(ctx, driver.Options{
		FunctionName:   "score",
		ArgumentFields: parsed.InputFields,
		Lowercase:      true,
	}, parsed.Build)

	if len(result.Errors) > 0 {
		errs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			errs[i] = e.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, compileResponse{CompilationID: id, Errors: errs})
		return
	}

	log.Info("compiled PMML document", zap.Int("source_bytes", len(result.Source)))
	if s.cacheStore != nil {
		if err := s.cacheStore.Put(r.Context(), cacheKey, result.Source); err != nil {
			log.Warn("compile cache write failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, compileResponse{CompilationID: id, Source: result.Source})
}

// requireBearerToken validates the Authorization header against secretKey.
func (s *Server) requireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != "HS256" {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.secretKey), nil
		})
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func readAll(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, 8<<20)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// IssueToken mints a short-lived bearer token for CLI/CI callers.
func IssueToken(secretKey, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}
