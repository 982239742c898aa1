package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/veriview/internal/api/handlers"
	"github.com/yoockh/veriview/internal/api/middleware"
)

type Auth struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AdminTokenHash string
}

type Deps struct {
	Health    *handlers.HealthHandler
	Debate    *handlers.DebateHandler
	Interview *handlers.InterviewHandler
	Admin     *handlers.AdminHandler
	WS        *handlers.WSHandler
	Auth      Auth
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", d.Health.Health)

	// Practice routes are open unless a JWT secret is configured.
	api := r.Group("/")
	if d.Auth.JWTSecret != "" {
		api.Use(middleware.JWTAuth(d.Auth.JWTSecret, d.Auth.JWTIssuer, d.Auth.JWTAudience))
	}

	api.POST("/debate/start", d.Debate.Start)
	api.GET("/debate/:id", d.Debate.Get)
	api.POST("/debate/:id", d.Debate.AIVideo)            // ai-<phase>-video
	api.POST("/debate/:id/:action", d.Debate.SubmitTurn) // <phase>-video

	api.POST("/interview/start", d.Interview.Start)
	api.GET("/interview/:id", d.Interview.Get)
	api.GET("/interview/:id/question", d.Interview.Question)
	api.POST("/interview/:id/question-video", d.Interview.QuestionVideo)
	api.POST("/interview/:id/:qtype/answer-video", d.Interview.SubmitAnswer)

	if d.WS != nil {
		api.GET("/ws/sessions/:id", d.WS.SessionWS)
	}

	// Admin routes authenticate with a JWT, or with the static admin token
	// when no JWT secret is set. Reads are open to operators.
	var authn gin.HandlerFunc
	switch {
	case d.Auth.JWTSecret != "":
		authn = middleware.JWTAuth(d.Auth.JWTSecret, d.Auth.JWTIssuer, d.Auth.JWTAudience)
	case d.Auth.AdminTokenHash != "":
		authn = middleware.AdminToken(d.Auth.AdminTokenHash)
	default:
		return
	}
	admin := r.Group("/admin", authn)
	admin.GET("/storage", middleware.RequireOperator(), d.Admin.StorageInfo)
	admin.GET("/sessions/:id/scores", middleware.RequireOperator(), d.Admin.Scores)
	admin.POST("/cache/expire", middleware.RequireAdmin(), d.Admin.Expire)
	admin.DELETE("/cache", middleware.RequireAdmin(), d.Admin.Clear)
	admin.DELETE("/sessions/:id", middleware.RequireAdmin(), d.Admin.DeleteSession)
}
