package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/sessionauth/internal/logging"
	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/prudhvinik1/sessionauth/internal/services"
)

const maxFormBytes = 1 << 20

// Authenticator is the part of services.AuthService the HTTP layer uses.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	CurrentAccount(ctx context.Context, sessionToken string) (*models.Account, error)
	Logout(ctx context.Context, sessionToken string) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, resetToken, newPassword string) (*models.Account, error)
}

var _ Authenticator = (*services.AuthService)(nil)

type CookieOptions struct {
	Name string
	// MaxAge matches the session lifetime; zero leaves a browser-session cookie.
	MaxAge time.Duration
	Secure bool
}

type AuthHandler struct {
	auth   Authenticator
	cookie CookieOptions
	logger *slog.Logger
}

func NewAuthHandler(auth Authenticator, cookie CookieOptions, logger *slog.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "session_id"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, cookie: cookie, logger: logger}
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.Get("/", h.index)
	r.Post("/users", h.register)
	r.Post("/sessions", h.login)
	r.Delete("/sessions", h.logout)
	r.Get("/profile", h.profile)
	r.Post("/reset_password", h.requestReset)
	r.Put("/reset_password", h.updatePassword)
}

func (h *AuthHandler) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := h.auth.Register(r.Context(), email, password)
	switch {
	case errors.Is(err, services.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, "email already registered")
		return
	case errors.Is(err, services.ErrEmptyEmail), errors.Is(err, services.ErrEmptyPassword):
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": account.Email, "message": "user created"})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	email := r.PostFormValue("email")

	token, err := h.auth.Login(r.Context(), email, r.PostFormValue("password"))
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(token))
	writeJSON(w, http.StatusOK, map[string]string{"email": email, "message": "logged in"})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(r)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	err := h.auth.Logout(r.Context(), token)
	if errors.Is(err, services.ErrUnauthenticated) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: h.cookie.Name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) profile(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(r)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	account, err := h.auth.CurrentAccount(r.Context(), token)
	if errors.Is(err, services.ErrUnauthenticated) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": account.Email})
}

func (h *AuthHandler) requestReset(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	email := r.PostFormValue("email")
	if email == "" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	token, err := h.auth.RequestPasswordReset(r.Context(), email)
	if errors.Is(err, services.ErrNotFound) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email, "reset_token": token})
}

func (h *AuthHandler) updatePassword(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	email := r.PostFormValue("email")
	resetToken := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")
	if email == "" || resetToken == "" || newPassword == "" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	account, err := h.auth.UpdatePassword(r.Context(), resetToken, newPassword)
	if errors.Is(err, services.ErrInvalidToken) || errors.Is(err, services.ErrEmptyPassword) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": account.Email, "message": "Password updated"})
}

// parseForm reads url-encoded and multipart bodies alike.
func (h *AuthHandler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	err := r.ParseMultipartForm(maxFormBytes)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return false
	}
	return true
}

func (h *AuthHandler) sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(h.cookie.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (h *AuthHandler) sessionCookie(token string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cookie.MaxAge > 0 {
		cookie.MaxAge = int(h.cookie.MaxAge / time.Second)
	}
	return cookie
}

func (h *AuthHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(h.logger.With("request_id", RequestIDFrom(r.Context()), "path", r.URL.Path), "request failed", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
