package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	avatarsvc "github.com/studygrove/studygrove/internal/avatar"
	"github.com/studygrove/studygrove/internal/config"
	contentservice "github.com/studygrove/studygrove/internal/content/service"
	notifservice "github.com/studygrove/studygrove/internal/notification/service"
	"github.com/studygrove/studygrove/internal/presence"
	"github.com/studygrove/studygrove/internal/realtime"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type Server struct {
	engine          *gin.Engine
	notificationSvc *notifservice.Service
	contentSvc      *contentservice.Service
	avatarSvc       *avatarsvc.Service
	presence        *presence.Tracker
	realtimeHandler *realtime.Handler
	log             *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	NotificationSvc *notifservice.Service
	ContentSvc      *contentservice.Service
	AvatarSvc       *avatarsvc.Service
	Presence        *presence.Tracker
	RealtimeHandler *realtime.Handler
	Log             *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		notificationSvc: p.NotificationSvc,
		contentSvc:      p.ContentSvc,
		avatarSvc:       p.AvatarSvc,
		presence:        p.Presence,
		realtimeHandler: p.RealtimeHandler,
		log:             p.Log.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/ws/notifications", s.realtimeHandler.Serve)

	api := s.engine.Group("/api")

	api.GET("/users/online", s.listOnlineUsers)
	api.POST("/users", s.registerUser)
	api.DELETE("/users/me", s.deleteUser)
	api.POST("/users/me/avatar", s.setAvatar)
	api.DELETE("/users/me/avatar", s.clearAvatar)

	api.GET("/notifications", s.listNotifications)
	api.GET("/notifications/unread_count", s.unreadCount)
	api.POST("/notifications/:id/read", s.markNotificationRead)
	api.POST("/notifications/read_all", s.markAllNotificationsRead)
	api.DELETE("/notifications/:id", s.deleteNotification)
	api.DELETE("/notifications", s.deleteAllNotifications)

	api.POST("/posts", s.createPost)
	api.DELETE("/posts/:id", s.deletePost)
	api.POST("/posts/:id/comments", s.createComment)
	api.DELETE("/comments/:id", s.deleteComment)
	api.POST("/likes", s.addLike)
	api.DELETE("/likes", s.removeLike)
}

// currentUserID reads the identity stamped by the auth proxy in front
// of this service.
func currentUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
