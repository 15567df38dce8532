package server

import (
	"net/http"
	"strings"
	"time"

	"biogy.com/biogyapi/internal/config"
	"biogy.com/biogyapi/internal/metrics"
	"biogy.com/biogyapi/internal/middleware"
	"biogy.com/biogyapi/pkg/ratelimiter"
	"biogy.com/biogyapi/pkg/storage"

	discussionHttp "biogy.com/biogyapi/internal/modules/discussion/delivery/http"
	discussionRepo "biogy.com/biogyapi/internal/modules/discussion/repository"
	discussionService "biogy.com/biogyapi/internal/modules/discussion/service"

	likeRepo "biogy.com/biogyapi/internal/modules/like/repository"
	likeService "biogy.com/biogyapi/internal/modules/like/service"

	notiHttp "biogy.com/biogyapi/internal/modules/notification/delivery/http"
	notifRepo "biogy.com/biogyapi/internal/modules/notification/repository"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"

	postHttp "biogy.com/biogyapi/internal/modules/post/delivery/http"
	postRepo "biogy.com/biogyapi/internal/modules/post/repository"
	postService "biogy.com/biogyapi/internal/modules/post/service"

	searchService "biogy.com/biogyapi/internal/modules/search/service"

	topicHttp "biogy.com/biogyapi/internal/modules/topic/delivery/http"
	topicRepo "biogy.com/biogyapi/internal/modules/topic/repository"
	topicService "biogy.com/biogyapi/internal/modules/topic/service"

	userHttp "biogy.com/biogyapi/internal/modules/user/delivery/http"
	userRepo "biogy.com/biogyapi/internal/modules/user/repository"
	userService "biogy.com/biogyapi/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the external clients the server is built on. Redis and
// Meili are optional.
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Meili     meilisearch.ServiceManager
	BlobStore storage.BlobStore
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
}

func NewServer(deps Dependencies) *Server {
	cfg := deps.Config
	logger := deps.Logger
	db := deps.DB
	redisClient := deps.Redis

	limiter := ratelimiter.New(redisClient, cfg.RateLimitGlobal, map[string]time.Duration{
		ratelimiter.ScopeTopic:      cfg.RateLimitTopic,
		ratelimiter.ScopeDiscussion: cfg.RateLimitDiscussion,
		ratelimiter.ScopePost:       cfg.RateLimitPost,
		ratelimiter.ScopeComment:    cfg.RateLimitComment,
	})

	var meiliSvc searchService.MeiliSearchService
	if deps.Meili != nil {
		meiliSvc = searchService.NewMeiliSearchService(deps.Meili, logger)
	}

	userRepository := userRepo.NewUserRepository(db)

	likeSvc := likeService.NewLikeService(likeRepo.NewLikeRepository(db), redisClient, logger)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, redisClient, logger)
	origins := allowedOrigins(cfg.AllowedOrigins)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient, func(origin string) bool {
		return origin == "" || contains(origins, origin)
	})

	postSvc := postService.NewPostService(postRepo.NewPostRepository(db), userRepository, likeSvc, notificationSvc, deps.BlobStore, cfg.CloudinaryUploadFolder, limiter, deps.Metrics, logger)
	postHandler := postHttp.NewPostHandler(postSvc)

	topicRepository := topicRepo.NewTopicRepository(db)
	topicSvc := topicService.NewTopicService(topicRepository, likeSvc, notificationSvc, meiliSvc, limiter, deps.Metrics, logger)
	topicHandler := topicHttp.NewTopicHandler(topicSvc)

	discussionSvc := discussionService.NewDiscussionService(discussionRepo.NewDiscussionRepository(db), topicRepository, likeSvc, notificationSvc, limiter, deps.Metrics, logger)
	discussionHandler := discussionHttp.NewDiscussionHandler(discussionSvc)

	// Purgers run in this order under the cascade policy.
	userSvc := userService.NewUserService(userRepository, likeSvc, notificationSvc, cfg.UserDeletePolicy, logger, postSvc, topicSvc, discussionSvc)
	userHandler := userHttp.NewUserHandler(userSvc)

	router := gin.New()

	setupCORS(router, origins)

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(deps.Metrics))

	health := newHealthHandler(db, redisClient)
	router.GET("/health", health.Health)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	authMiddleware := middleware.NewAuthMiddleware(userRepository, cfg.JWTSecret)

	api := router.Group("/api")

	// Public routes (no auth required)
	api.POST("/auth/register", userHandler.Register)

	// Readable anonymously; a valid token personalizes likes and counts views.
	public := api.Group("")
	public.Use(authMiddleware.OptionalAuth())
	{
		public.GET("/posts", postHandler.ListApproved)
		public.GET("/users/:username", userHandler.GetProfile)
		public.GET("/users/:username/posts", postHandler.ListByUser)
		public.GET("/users/:username/followers", userHandler.Followers)
		public.GET("/users/:username/following", userHandler.Following)

		public.GET("/topics", topicHandler.ListTopics)
		public.GET("/topics/search", topicHandler.SearchTopics)
		public.GET("/topics/:id", topicHandler.GetTopic)
		public.GET("/topics/:id/discussions", discussionHandler.GetThread)
		public.GET("/discussions/:id", discussionHandler.GetDiscussion)
	}

	// Protected routes (apply auth middleware explicitly)
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Admin routes
		adminGroup := protected.Group("/admin")
		adminGroup.Use(authMiddleware.RequireAdmin())
		{
			adminGroup.PATCH("/users/:id/role", userHandler.UpdateRole)
			adminGroup.DELETE("/users/:id", userHandler.DeleteUser)
		}

		// Post routes
		protected.POST("/posts", postHandler.CreatePost)
		protected.GET("/posts/admin", postHandler.ListForModeration)
		protected.PATCH("/posts/:id/status", postHandler.UpdateStatus)
		protected.POST("/posts/:id/like", postHandler.ToggleLike)
		protected.POST("/posts/:id/comments", postHandler.AddComment)
		protected.DELETE("/posts/:id", postHandler.DeletePost)

		// Topic routes
		protected.POST("/topics", topicHandler.CreateTopic)
		protected.PUT("/topics/:id", topicHandler.UpdateTopic)
		protected.DELETE("/topics/:id", topicHandler.DeleteTopic)
		protected.POST("/topics/:id/like", topicHandler.ToggleLike)
		protected.POST("/topics/:id/discussions", discussionHandler.CreateDiscussion)

		// Discussion routes
		protected.PUT("/discussions/:id", discussionHandler.UpdateDiscussion)
		protected.DELETE("/discussions/:id", discussionHandler.DeleteDiscussion)
		protected.POST("/discussions/:id/like", discussionHandler.ToggleLike)

		protected.POST("/users/:username/follow", userHandler.ToggleFollow)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func setupCORS(router *gin.Engine, origins []string) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
