package social

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/metrics"
)

// Handler serves profiles, follow edges and likes.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	prof, err := h.svc.Profile(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, prof)
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Follow(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	metrics.FollowChanges.WithLabelValues("follow").Inc()
	h.writeJSON(w, http.StatusOK, map[string]bool{"following": true})
}

func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Unfollow(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	metrics.FollowChanges.WithLabelValues("unfollow").Inc()
	h.writeJSON(w, http.StatusOK, map[string]bool{"following": false})
}

func (h *Handler) Followers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	users, err := h.svc.Followers(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) Following(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	users, err := h.svc.Following(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) Likes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	msgs, err := h.svc.Likes(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msgs)
}

// ToggleLike flips the caller's like on a message and reports the new state.
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	liked, err := h.svc.ToggleLike(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	action := "unlike"
	if liked {
		action = "like"
	}
	metrics.LikeChanges.WithLabelValues(action).Inc()
	h.writeLikeState(w, r, id, liked)
}

func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Unlike(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	metrics.LikeChanges.WithLabelValues("unlike").Inc()
	h.writeLikeState(w, r, id, false)
}

type likeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

func (h *Handler) writeLikeState(w http.ResponseWriter, r *http.Request, messageID int64, liked bool) {
	n, err := h.svc.MessageLikeCount(r.Context(), messageID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, likeState{Liked: liked, LikeCount: n})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Access unauthorized."})
	case errors.Is(err, ErrSelfFollow):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.logger.Errorw("social request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
