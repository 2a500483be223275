package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/currency"
	"expense-tracker/internal/logger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"
)

type registerRequest struct {
	Username                string `json:"username"`
	Email                   string `json:"email"`
	Password                string `json:"password"`
	ConfirmPassword         string `json:"confirm_password"`
	PreferredCurrency       string `json:"preferred_currency"`
	PreferredCurrencySymbol string `json:"preferred_currency_symbol"`
}

func (req registerRequest) validate() string {
	switch {
	case req.Username == "" || req.Password == "":
		return "Username and password are required"
	case len(req.Username) < 3:
		return "Username must be at least 3 characters"
	case len(req.Password) < 6:
		return "Password must be at least 6 characters"
	case req.ConfirmPassword != "" && req.ConfirmPassword != req.Password:
		return "Passwords do not match"
	case req.PreferredCurrency != "" && !currency.Valid(req.PreferredCurrency):
		return "Unsupported preferred currency"
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return "Invalid email format"
		}
	}
	return ""
}

// Register creates a new account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.PreferredCurrency = strings.ToUpper(strings.TrimSpace(req.PreferredCurrency))

	if msg := req.validate(); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, r, "hash password", err)
		return
	}

	symbol := req.PreferredCurrencySymbol
	if len(symbol) > 10 {
		symbol = symbol[:10]
	}
	user := &models.User{
		Username:                req.Username,
		Email:                   req.Email,
		PasswordHash:            hash,
		PreferredCurrency:       req.PreferredCurrency,
		PreferredCurrencySymbol: symbol,
	}
	if err := h.db.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			WriteError(w, http.StatusConflict, "Username or email already exists")
			return
		}
		internalError(w, r, "create user", err)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Registration successful! Please log in.",
		Data:    user,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks credentials and starts a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), username)
	if err != nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		internalError(w, r, "generate session token", err)
		return
	}
	if err := h.db.CreateSession(r.Context(), token, user.ID, time.Now().Add(SessionDuration)); err != nil {
		internalError(w, r, "create session", err)
		return
	}

	h.setSessionCookie(w, token)
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Login successful", Data: user})
}

// Logout ends the current session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(r.Context(), cookie.Value); err != nil {
			log := logger.FromContext(r.Context())
			log.Warn().Err(err).Msg("Failed to delete session")
		}
	}
	h.clearSessionCookie(w)
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Logged out"})
}

// Me returns the authenticated user.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: GetUserFromContext(r)})
}
