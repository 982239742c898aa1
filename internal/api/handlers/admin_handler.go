package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
)

type AdminHandler struct {
	store    *storage.ContentStore
	sessions repositories.SessionRepository
	scores   repositories.ScoreRepository
	locks    *utils.KeyedMutex
	log      *logrus.Logger
}

// NewAdminHandler takes the coordinators' session lock so a deletion never
// interleaves with a turn. scores may be nil.
func NewAdminHandler(store *storage.ContentStore, sessions repositories.SessionRepository, scores repositories.ScoreRepository, locks *utils.KeyedMutex, log *logrus.Logger) *AdminHandler {
	if locks == nil {
		locks = utils.NewKeyedMutex()
	}
	return &AdminHandler{store: store, sessions: sessions, scores: scores, locks: locks, log: log}
}

func (h *AdminHandler) StorageInfo(c *gin.Context) {
	info, err := h.store.Info()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "AdminHandler.StorageInfo", "failed to read storage", err))
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *AdminHandler) Expire(c *gin.Context) {
	rep, err := h.store.Expire(time.Now())
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "AdminHandler.Expire", "retention scan failed", err))
		return
	}
	h.log.WithFields(logrus.Fields{
		"cache_removed":    rep.CacheRemoved,
		"sessions_removed": rep.SessionsRemoved,
	}).Info("cache expired by admin")
	c.JSON(http.StatusOK, rep)
}

func (h *AdminHandler) Clear(c *gin.Context) {
	n, err := h.store.Clear()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "AdminHandler.Clear", "failed to clear cache", err))
		return
	}
	h.log.WithField("removed", n).Warn("render cache cleared by admin")
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// Scores lists the recorded score history of a session, newest first.
func (h *AdminHandler) Scores(c *gin.Context) {
	const op = "AdminHandler.Scores"
	if h.scores == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "score history is not configured", nil))
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "limit must be a non-negative integer", err))
			return
		}
		limit = n
	}
	rows, err := h.scores.ListBySession(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to list scores", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "scores": rows})
}

// DeleteSession removes a session record, its recordings and their mirrored
// copies. Score history is kept.
func (h *AdminHandler) DeleteSession(c *gin.Context) {
	const op = "AdminHandler.DeleteSession"
	ctx := c.Request.Context()
	id := c.Param("id")

	unlock := h.locks.Lock(id)
	defer unlock()

	s, err := h.sessions.Get(ctx, id)
	if errors.Is(err, utils.ErrNotFound) {
		writeError(c, utils.E(utils.CodeNotFound, op, "session not found", err))
		return
	}
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to load session", err))
		return
	}
	if err := h.store.RemoveSession(ctx, s.Kind, s.SessionID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessions.Delete(ctx, id); err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to delete session", err))
		return
	}
	h.log.WithFields(logrus.Fields{"session_id": id, "kind": s.Kind}).Warn("session deleted by admin")
	c.JSON(http.StatusOK, gin.H{"session_id": id, "deleted": true})
}
