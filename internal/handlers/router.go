package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustream/groupchat-service/internal/config"
	"github.com/edustream/groupchat-service/internal/realtime"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/services"
	"github.com/edustream/groupchat-service/internal/utils"
	"github.com/edustream/groupchat-service/internal/validator"
)

type HandlerManager struct {
	groupHandler   *GroupHandler
	messageHandler *MessageHandler
	quizHandler    *QuizHandler
	attemptHandler *AttemptHandler
	wsHandler      *WSHandler
	authMiddleware *CasdoorAuthMiddleware
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	hub *realtime.Hub,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		groupHandler:   NewGroupHandler(serviceManager.Group(), validator, logger),
		messageHandler: NewMessageHandler(serviceManager.Message(), validator, logger),
		quizHandler:    NewQuizHandler(serviceManager.Quiz(), serviceManager.Export(), validator, logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), serviceManager.Grading(), validator, logger),
		wsHandler:      NewWSHandler(hub, logger),
		authMiddleware: NewCasdoorAuthMiddleware(casdoorConfig, userRepo, logger),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		groups := v1.Group("/groups")
		{
			groups.POST("", hm.groupHandler.CreateGroup)
			groups.GET("", hm.groupHandler.ListGroups)
			groups.GET("/:id", hm.groupHandler.GetGroup)
			groups.GET("/:id/details", hm.groupHandler.GetGroupWithMembers)
			groups.PUT("/:id", hm.groupHandler.UpdateGroup)
			groups.DELETE("/:id", hm.groupHandler.DeleteGroup)
			groups.GET("/:id/stats", hm.groupHandler.GetStats)

			// Membership
			groups.POST("/:id/join", hm.groupHandler.JoinGroup)
			groups.POST("/:id/leave", hm.groupHandler.LeaveGroup)
			groups.GET("/:id/members", hm.groupHandler.GetMembers)
			groups.POST("/:id/members", hm.groupHandler.AddMember)
			groups.DELETE("/:id/members/:user_id", hm.groupHandler.RemoveMember)
			groups.PUT("/:id/members/:user_id/role", hm.groupHandler.UpdateMemberRole)
			groups.PUT("/:id/settings", hm.groupHandler.UpdateSettings)

			// Messages
			groups.POST("/:id/messages", hm.messageHandler.SendMessage)
			groups.GET("/:id/messages", hm.messageHandler.ListMessages)
			groups.GET("/:id/messages/search", hm.messageHandler.SearchMessages)
			groups.POST("/:id/messages/read-all", hm.messageHandler.MarkAllRead)
			groups.GET("/:id/messages/unread-count", hm.messageHandler.UnreadCount)

			// Quizzes
			groups.POST("/:id/quizzes", hm.quizHandler.CreateQuiz)
			groups.GET("/:id/quizzes", hm.quizHandler.ListQuizzes)
		}

		messages := v1.Group("/messages")
		{
			messages.GET("/:message_id", hm.messageHandler.GetMessage)
			messages.PUT("/:message_id", hm.messageHandler.EditMessage)
			messages.DELETE("/:message_id", hm.messageHandler.DeleteMessage)
			messages.POST("/:message_id/read", hm.messageHandler.MarkRead)
		}

		quizzes := v1.Group("/quizzes")
		{
			quizzes.GET("/:quiz_id", hm.quizHandler.GetQuiz)
			quizzes.GET("/:quiz_id/details", hm.quizHandler.GetQuizWithDetails)
			quizzes.PUT("/:quiz_id", hm.quizHandler.UpdateQuiz)
			quizzes.DELETE("/:quiz_id", hm.quizHandler.DeleteQuiz)
			quizzes.GET("/:quiz_id/analytics", hm.quizHandler.GetAnalytics)
			quizzes.GET("/:quiz_id/submissions", hm.quizHandler.GetSubmissions)
			quizzes.GET("/:quiz_id/export", hm.quizHandler.ExportResults)

			// Attempts
			quizzes.POST("/:quiz_id/attempts", hm.attemptHandler.StartAttempt)
			quizzes.POST("/:quiz_id/attempts/submit", hm.attemptHandler.SubmitAttempt)
			quizzes.GET("/:quiz_id/attempts", hm.attemptHandler.GetUserSubmissions)
			quizzes.GET("/:quiz_id/attempts/can-start", hm.attemptHandler.CanStart)

			// Manual grading
			quizzes.GET("/:quiz_id/grading/pending", hm.attemptHandler.GetPendingGrading)
		}

		submissions := v1.Group("/submissions")
		{
			submissions.GET("/:submission_id", hm.attemptHandler.GetSubmission)
			submissions.POST("/:submission_id/grade", hm.attemptHandler.GradeEssay)
		}
	}

	// WebSocket endpoint. Token comes via query parameter on handshake.
	ws := router.Group("/ws")
	ws.Use(hm.authMiddleware.AuthMiddleware())
	ws.GET("", hm.wsHandler.Connect)

	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "groupchat-service",
		})
	})
}
