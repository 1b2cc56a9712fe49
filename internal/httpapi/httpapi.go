package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/ingest"
	"salesms/backend/internal/query"
	"salesms/backend/internal/service"
	"salesms/backend/internal/store"
)

type Options struct {
	AllowedOrigin  string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         zerolog.Logger
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        zerolog.Logger
	loginLimiter  *attemptLimiter
	clientLimiter *clientLimiter
	csrfSecret    []byte
}

// New builds the HTTP surface. A nil auth manager leaves the admin routes
// unmounted.
func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		logger:        opts.Logger,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		clientLimiter: newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		csrfSecret:    csrfSecret,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/readyz", a.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/sales", a.handleSales)
	mux.HandleFunc("/api/sales/filters", a.handleFilters)

	if a.auth != nil {
		mux.HandleFunc("/api/auth/login", a.handleLogin)
		mux.HandleFunc("/api/auth/csrf-token", a.handleCSRFToken)
		mux.HandleFunc("/api/admin/filters/refresh", a.requireAuth(a.handleRefreshFilters, domain.RoleAdmin))
		mux.HandleFunc("/api/admin/import", a.requireAuth(a.handleImport, domain.RoleAdmin))
	}

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, "forbidden", errors.New("forbidden role"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("actor", actor.Username)
		})
		next(w, r.WithContext(ctx))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.service.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	req, issues := query.ParseRequest(r.URL.Query())
	if len(issues) > 0 {
		fields := make([]string, 0, len(issues))
		for _, issue := range issues {
			fields = append(fields, issue.Field)
			zerolog.Ctx(r.Context()).Debug().Err(issue).Msg("ignoring invalid parameter")
		}
		w.Header().Set("X-Ignored-Params", strings.Join(fields, ","))
	}

	resp, err := a.service.ListSales(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	opts, err := a.service.FilterOptions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token; admin POSTs must echo it in
// X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleRefreshFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	opts, err := a.service.RefreshFilters(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status, err := a.service.ImportStatus(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodPost:
		if err := a.service.StartImport(r.Context()); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
	default:
		writeMethodNotAllowed(w)
	}
}

// fail maps a service error onto a status and a stable error kind.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	switch {
	case errors.Is(err, service.ErrNotReady):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "not_ready", err)
	case errors.Is(err, store.ErrUnavailable):
		logger.Error().Err(err).Msg("sales store unavailable")
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", store.ErrUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logger.Warn().Err(err).Msg("request abandoned")
		writeError(w, http.StatusServiceUnavailable, "timeout", errors.New("request timed out"))
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, ingest.ErrImportRunning):
		writeError(w, http.StatusConflict, "import_running", err)
	case errors.Is(err, service.ErrNoImportFile):
		writeError(w, http.StatusConflict, "no_import_source", err)
	default:
		logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

// checkCSRF guards state-changing admin requests.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/api/admin/") {
		return true
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, "csrf", errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	// 5xx bodies never carry internal detail; known retryable kinds keep their
	// own fixed message.
	msg := err.Error()
	if status >= 500 && kind == "internal" {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
		"kind":  kind,
	})
}

// writeJSON encodes before writing the header so a failed encode never leaves
// a half-written body behind.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error","kind":"internal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
