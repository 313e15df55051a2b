package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/entity"
)

// Handler exposes HTTP endpoints for user operations (signup / login / profile).
type Handler struct {
	svc    *UserService
	tokens *auth.TokenService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, tokens *auth.TokenService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	ImageURL string `json:"image_url"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *entity.User `json:"user"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.Signup(r.Context(), SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	metrics.SignupSuccess.Inc()
	h.issue(w, r, http.StatusCreated, u)
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, ok, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		metrics.LoginFailure.WithLabelValues("error").Inc()
		h.writeError(w, r, err)
		return
	}
	if !ok {
		metrics.LoginFailure.WithLabelValues("bad_credentials").Inc()
		h.logger.Debugw("login failed", "username", req.Username)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials."})
		return
	}
	metrics.LoginSuccess.Inc()
	h.issue(w, r, http.StatusOK, u)
}

// Logout revokes the bearer token the request was made with.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := auth.FromContext(r.Context()).Require(); err != nil {
		h.writeError(w, r, err)
		return
	}
	token, _ := auth.BearerToken(r)
	if err := h.tokens.Revoke(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "You have successfully logged out."})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, err := h.svc.List(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// ProfileRequest edits the caller's profile. Password is the current one.
type ProfileRequest struct {
	Password       string  `json:"password"`
	Username       *string `json:"username"`
	Email          *string `json:"email"`
	ImageURL       *string `json:"image_url"`
	HeaderImageURL *string `json:"header_image_url"`
	Bio            *string `json:"bio"`
	Location       *string `json:"location"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid profile payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), auth.FromContext(r.Context()), req.Password, ProfileUpdate{
		Username:       req.Username,
		Email:          req.Email,
		ImageURL:       req.ImageURL,
		HeaderImageURL: req.HeaderImageURL,
		Bio:            req.Bio,
		Location:       req.Location,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// Delete removes the caller's account and revokes the token used.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.FromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	if token, ok := auth.BearerToken(r); ok {
		if err := h.tokens.Revoke(r.Context(), token); err != nil {
			h.logger.Warnw("revoke after delete failed", "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, status int, u *entity.User) {
	token, exp, err := h.tokens.Issue(r.Context(), u.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, status, AuthResponse{Token: token, ExpiresAt: exp, User: u})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Access unauthorized."})
	case errors.Is(err, ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrIntegrityViolation):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "Username or email already taken"})
	case errors.Is(err, ErrBadCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials."})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case errors.Is(err, auth.ErrInvalidToken):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Access unauthorized."})
	default:
		h.logger.Errorw("user request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
