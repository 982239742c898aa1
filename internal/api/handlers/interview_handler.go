package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/services"
	"github.com/yoockh/veriview/internal/utils"
)

type InterviewHandler struct {
	svc         services.InterviewService
	clipSizeCap int64
}

func NewInterviewHandler(svc services.InterviewService, clipSizeCap int64) *InterviewHandler {
	return &InterviewHandler{svc: svc, clipSizeCap: clipSizeCap}
}

type StartInterviewRequest struct {
	Type string `json:"type" binding:"required"` // job category, ex: ICT
}

func (h *InterviewHandler) Start(c *gin.Context) {
	var req StartInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Start", "invalid request body", err))
		return
	}

	q, err := h.svc.Start(c.Request.Context(), req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"interview_id":   q.InterviewID,
		"job_category":   q.Category,
		"first_question": q,
	})
}

func (h *InterviewHandler) Get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *InterviewHandler) Question(c *gin.Context) {
	q, err := h.svc.CurrentQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *InterviewHandler) QuestionVideo(c *gin.Context) {
	out, err := h.svc.QuestionVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeVideo(c, out)
}

func (h *InterviewHandler) SubmitAnswer(c *gin.Context) {
	const op = "InterviewHandler.SubmitAnswer"

	qtype, ok := models.ParseQuestionType(c.Param("qtype"))
	if !ok {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unknown question type", nil))
		return
	}
	f, err := clipFromForm(c, op, h.clipSizeCap)
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	res, err := h.svc.SubmitAnswer(c.Request.Context(), c.Param("id"), qtype, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
