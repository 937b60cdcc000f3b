package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/middleware"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/service"
)

// Cookie names used to carry long-lived credentials. The access token
// travels in the Authorization header instead.
const (
	refreshTokenCookie = "refresh_token"
	sessionIDCookie    = "session_id"
	userIDCookie       = "user_id"
)

// AuthHandlers is the HTTP transport adapter. It extracts plain credential
// values from headers and cookies, hands them to the services, and maps
// error kinds to status codes. The services never see HTTP framing.
type AuthHandlers struct {
	auth       *service.AuthService
	signUp     *service.SignUpService
	passwords  *service.PasswordService
	refreshTTL time.Duration
	logger     *logrus.Logger
}

func NewAuthHandlers(
	auth *service.AuthService,
	signUp *service.SignUpService,
	passwords *service.PasswordService,
	refreshTTL time.Duration,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		auth:       auth,
		signUp:     signUp,
		passwords:  passwords,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type SignUpTokenRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type SignUpTokenResponse struct {
	Key string `json:"key"`
}

type SignUpRequest struct {
	Key string `json:"key"`
	Pin string `json:"pin"`
}

type PasswordTokenRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email             string `json:"email"`
	TokenID           string `json:"token_id"`
	TemporaryPassword string `json:"temporary_password"`
	NewPassword       string `json:"new_password"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Login verifies credentials and registers a new device session. The
// refresh token, session id, and user id are set as HttpOnly cookies; the
// access token is returned in the body.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.setSessionCookies(w, result.User.ID, result.SessionID, result.Tokens.RefreshToken)
	h.respondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken: result.Tokens.AccessToken,
		TokenType:   result.Tokens.TokenType,
		ExpiresIn:   result.Tokens.ExpiresIn,
		User: UserResponse{
			ID:        result.User.ID,
			Name:      result.User.Name,
			Email:     result.User.Email,
			AvatarURL: result.User.AvatarURL,
		},
	})
}

// Refresh rotates the refresh token presented in cookies and returns a new
// access token. On any rejection the caller must log in again.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, refreshToken, ok := h.sessionFromCookies(r)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session credentials")
		return
	}

	result, err := h.auth.Rotate(r.Context(), userID, sessionID, refreshToken, r.UserAgent())
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.setSessionCookies(w, userID, sessionID, result.RefreshToken)
	h.respondWithJSON(w, http.StatusOK, RefreshResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
	})
}

// Logout removes the current device's session and clears the cookies.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, _, ok := h.sessionFromCookies(r)
	if ok {
		if err := h.auth.RemoveSession(r.Context(), userID, sessionID); err != nil {
			h.logger.WithError(err).Warn("Failed to remove session on logout")
		}
	}

	h.clearSessionCookies(w)
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// ListSessions returns the authenticated user's active sessions for the
// device management view. is_current is computed here by comparing against
// the request's session id cookie.
func (h *AuthHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	sessions, err := h.auth.ListSessions(r.Context(), userID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	currentSessionID := ""
	if cookie, err := r.Cookie(sessionIDCookie); err == nil {
		currentSessionID = cookie.Value
	}
	for i := range sessions {
		sessions[i].IsCurrent = sessions[i].SessionID == currentSessionID
	}

	h.respondWithJSON(w, http.StatusOK, map[string][]models.SessionInfo{"sessions": sessions})
}

// RemoveSession logs out one device by session id. Idempotent.
func (h *AuthHandlers) RemoveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	sessionID := mux.Vars(r)["session_id"]
	if sessionID == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Session id is required")
		return
	}

	if err := h.auth.RemoveSession(r.Context(), userID, sessionID); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]bool{"data": true})
}

// RequestSignUpToken starts the sign-up handshake and returns the lookup
// key. The pin arrives by email.
func (h *AuthHandlers) RequestSignUpToken(w http.ResponseWriter, r *http.Request) {
	var req SignUpTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	key, err := h.signUp.RequestSignUp(r.Context(), req.Name, req.Email, req.Password, req.AvatarURL)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, SignUpTokenResponse{Key: key})
}

// CompleteSignUp consumes the sign-up token and creates the user.
func (h *AuthHandlers) CompleteSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	user, err := h.signUp.CompleteSignUp(r.Context(), req.Key, req.Pin)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
	})
}

// RequestPasswordToken deposits a reset token and emails the temporary
// password. The response does not reveal whether the email exists beyond
// the documented NotFound mapping.
func (h *AuthHandlers) RequestPasswordToken(w http.ResponseWriter, r *http.Request) {
	var req PasswordTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.passwords.RequestReset(r.Context(), req.Email); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]bool{"data": true})
}

// ResetPassword sets a new password given the emailed temporary password and
// the token id from the reset link.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.passwords.ResetPassword(r.Context(), req.Email, req.TokenID, req.TemporaryPassword, req.NewPassword); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]bool{"data": true})
}

func (h *AuthHandlers) sessionFromCookies(r *http.Request) (uint64, string, string, bool) {
	userCookie, err := r.Cookie(userIDCookie)
	if err != nil {
		return 0, "", "", false
	}
	userID, err := strconv.ParseUint(userCookie.Value, 10, 64)
	if err != nil {
		return 0, "", "", false
	}

	sessionCookie, err := r.Cookie(sessionIDCookie)
	if err != nil {
		return 0, "", "", false
	}
	refreshCookie, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		return 0, "", "", false
	}

	return userID, sessionCookie.Value, refreshCookie.Value, true
}

func (h *AuthHandlers) setSessionCookies(w http.ResponseWriter, userID uint64, sessionID, refreshToken string) {
	maxAge := int(h.refreshTTL.Seconds())
	for name, value := range map[string]string{
		refreshTokenCookie: refreshToken,
		sessionIDCookie:    sessionID,
		userIDCookie:       strconv.FormatUint(userID, 10),
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *AuthHandlers) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{refreshTokenCookie, sessionIDCookie, userIDCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// respondWithServiceError maps the error kinds to HTTP statuses.
func (h *AuthHandlers) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized),
		errors.Is(err, apperr.ErrInvalidToken),
		errors.Is(err, apperr.ErrExpiredToken):
		h.respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials or token")
	case errors.Is(err, apperr.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, apperr.ErrInvalidArgument), errors.Is(err, apperr.ErrInvalidFormat):
		h.respondWithError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid request")
	case errors.Is(err, apperr.ErrDuplicatedKey):
		h.respondWithError(w, http.StatusConflict, "CONFLICT", "Resource already exists")
	default:
		h.logger.WithError(err).Error("Unhandled service error")
		h.respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
