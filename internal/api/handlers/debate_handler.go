package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/services"
	"github.com/yoockh/veriview/internal/utils"
)

type DebateHandler struct {
	svc         services.DebateService
	clipSizeCap int64
}

func NewDebateHandler(svc services.DebateService, clipSizeCap int64) *DebateHandler {
	return &DebateHandler{svc: svc, clipSizeCap: clipSizeCap}
}

type StartDebateRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Position string `json:"position" binding:"required"` // PRO|CON
}

type AIVideoRequest struct {
	Text     string `json:"text"`
	DebateID string `json:"debate_id"`
	Topic    string `json:"topic"`
	Position string `json:"position"`
}

func (h *DebateHandler) Start(c *gin.Context) {
	var req StartDebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "DebateHandler.Start", "invalid request body", err))
		return
	}

	res, err := h.svc.Start(c.Request.Context(), req.Topic, req.Position)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *DebateHandler) Get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// videoPhase extracts the phase from "<phase>-video" or "ai-<phase>-video".
func videoPhase(seg, prefix string) (models.Phase, bool) {
	if !strings.HasPrefix(seg, prefix) || !strings.HasSuffix(seg, "-video") {
		return "", false
	}
	return models.ParsePhase(strings.TrimSuffix(strings.TrimPrefix(seg, prefix), "-video"))
}

// SubmitTurn handles POST /debate/:id/:action for every phase.
func (h *DebateHandler) SubmitTurn(c *gin.Context) {
	const op = "DebateHandler.SubmitTurn"

	phase, ok := videoPhase(c.Param("action"), "")
	if !ok {
		writeError(c, utils.E(utils.CodeNotFound, op, "unknown debate phase", nil))
		return
	}
	f, err := clipFromForm(c, op, h.clipSizeCap)
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	res, err := h.svc.SubmitTurn(c.Request.Context(), c.Param("id"), phase, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AIVideo handles POST /debate/ai-<phase>-video; any other segment under
// POST /debate/:id is a 404.
func (h *DebateHandler) AIVideo(c *gin.Context) {
	const op = "DebateHandler.AIVideo"

	phase, ok := videoPhase(c.Param("id"), "ai-")
	if !ok {
		writeError(c, utils.E(utils.CodeNotFound, op, "route not found", nil))
		return
	}
	var req AIVideoRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
			return
		}
	}

	out, err := h.svc.AIVideo(c.Request.Context(), services.AIVideoRequest{
		DebateID: req.DebateID,
		Phase:    phase,
		Topic:    req.Topic,
		Position: req.Position,
		Text:     req.Text,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeVideo(c, out)
}
