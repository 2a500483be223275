package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"expense-tracker/internal/ledger"
	"expense-tracker/internal/logger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/report"
	"expense-tracker/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour

	maxBodyBytes = 1 << 20
)

// Assistant is the language-model capability used outside the ledger.
type Assistant interface {
	ClassifyExpense(ctx context.Context, description string) (models.Category, error)
	MonthlyInsights(ctx context.Context, data any) (string, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	engine       *ledger.Engine
	reports      *report.Service
	assistant    Assistant
	secureCookie bool
}

// NewHandlers creates a new Handlers instance. assistant may be nil, in which
// case classification and insights report themselves unavailable.
func NewHandlers(db *storage.DB, engine *ledger.Engine, assistant Assistant, secureCookie bool) *Handlers {
	return &Handlers{
		db:           db,
		engine:       engine,
		reports:      report.New(db),
		assistant:    assistant,
		secureCookie: secureCookie,
	}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			WriteError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		sessionInfo, err := h.db.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			WriteError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		// Rolling session: renew if past halfway point
		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < SessionDuration/2 {
			if err := h.db.RenewSession(r.Context(), cookie.Value, now.Add(SessionDuration)); err == nil {
				h.setSessionCookie(w, cookie.Value)
			}
			// If renewal fails, just continue with the current session
		}

		ctx := context.WithValue(r.Context(), UserContextKey, sessionInfo.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// period reads optional month and year query parameters.
func period(r *http.Request) (storage.ListFilter, error) {
	var f storage.ListFilter
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return f, fmt.Errorf("invalid year %q", v)
		}
		f.Year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return f, errors.New("month must be between 1 and 12")
		}
		if f.Year == 0 {
			f.Year = time.Now().Year()
		}
		f.Month = m
	}
	return f, nil
}

// pagination reads limit and offset; absent values are left at zero.
func pagination(r *http.Request, f *storage.ListFilter) error {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}
	return nil
}

// requiredPeriod reads month and year, defaulting to the current month.
func requiredPeriod(r *http.Request) (year, month int, err error) {
	f, err := period(r)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now()
	year, month = f.Year, f.Month
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	return year, month, nil
}

// internalError logs err and answers with a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}
