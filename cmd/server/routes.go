package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-polls/backend/internal/auth"
	"github.com/aura-polls/backend/internal/middleware"
	"github.com/aura-polls/backend/internal/polls"
	"github.com/aura-polls/backend/pkg/response"
)

// routes holds what the HTTP surface is built from.
type routes struct {
	logger       *zap.Logger
	corsOrigins  string
	publicOrigin string
	tokens       middleware.TokenValidator
	auth         *auth.Handler
	polls        *polls.Handler
	ws           gin.HandlerFunc
}

func (rt routes) engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(rt.corsOrigins))
	router.Use(middleware.Logger(rt.logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	sameOrigin := middleware.SameOrigin(rt.publicOrigin)
	requireUser := middleware.JWT(rt.tokens)
	optionalUser := middleware.OptionalJWT(rt.tokens)

	// Auth (public)
	authGroup := api.Group("/auth", sameOrigin)
	{
		authGroup.POST("/register", rt.auth.Register)
		authGroup.POST("/login", rt.auth.Login)
	}

	profile := api.Group("/profile", sameOrigin, requireUser)
	{
		profile.GET("", rt.auth.GetProfile)
		profile.PATCH("", rt.auth.UpdateProfile)
		profile.POST("/avatar", rt.auth.UploadAvatar)
	}

	pollGroup := api.Group("/polls")
	{
		pollGroup.GET("", optionalUser, rt.polls.List)
		pollGroup.GET("/:id", optionalUser, rt.polls.Get)
		pollGroup.GET("/:id/results", rt.polls.Results)

		pollGroup.POST("", sameOrigin, requireUser, rt.polls.Create)
		pollGroup.POST("/vote", sameOrigin, requireUser, rt.polls.Vote)
		pollGroup.PATCH("/:id", sameOrigin, requireUser, rt.polls.Update)
		pollGroup.DELETE("/:id", sameOrigin, requireUser, rt.polls.Delete)
	}

	// WebSocket (token in query, optional)
	if rt.ws != nil {
		router.GET("/ws", rt.ws)
	}
	return router
}
