package handlers

import (
	"net/http"
	"time"

	"encyclopedia-cms/metrics"
	"encyclopedia-cms/middleware"
	"encyclopedia-cms/models"
	"encyclopedia-cms/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services bundles what the HTTP layer routes to.
type Services struct {
	Revisions  services.RevisionService
	Moderation services.ModerationService
	Reviews    services.PeerReviewService
	Search     services.SearchService
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

func NewRouter(svc Services) *gin.Engine {
	articleHandler := NewArticleHandler(svc.Revisions)
	moderationHandler := NewModerationHandler(svc.Moderation)
	reviewHandler := NewReviewHandler(svc.Reviews)
	searchHandler := NewSearchHandler(svc.Search)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(svc.Log))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if svc.Metrics != nil {
		router.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		// Reader routes
		public := v1.Group("/public")
		{
			public.GET("/articles", func(c *gin.Context) {
				c.Request.URL.RawQuery = withPublished(c)
				articleHandler.GetArticles(c)
			})
			public.GET("/articles/:title", articleHandler.GetPublicArticle)
			public.GET("/search", searchHandler.Search)
			public.GET("/suggest", searchHandler.Suggest)
		}

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			articles := protected.Group("/articles")
			{
				articles.GET("", articleHandler.GetArticles)
				articles.POST("/revisions", articleHandler.SubmitRevision)
				articles.GET("/:title/history", articleHandler.GetHistory)
				articles.DELETE("/:title", middleware.RequireRole(models.RoleAdmin), articleHandler.RemoveArticle)
			}

			revisions := protected.Group("/revisions")
			{
				revisions.GET("/:id", articleHandler.GetRevision)
				revisions.POST("/:id/promote", middleware.RequireRole(models.RoleModerator, models.RoleAdmin), articleHandler.PromoteRevision)
				revisions.POST("/:id/reviews", reviewHandler.AssignReviewer)
				revisions.GET("/:id/reviews", reviewHandler.ListReviews)
				revisions.GET("/:id/consensus", reviewHandler.GetConsensus)
			}

			reviews := protected.Group("/reviews")
			{
				reviews.POST("/:id/start", reviewHandler.StartReview)
				reviews.PUT("/:id", reviewHandler.SubmitReview)
			}
			protected.GET("/reviewers/:id/stats", reviewHandler.ReviewerStats)

			moderation := protected.Group("/moderation")
			moderation.Use(middleware.RequireRole(models.RoleModerator, models.RoleAdmin))
			{
				moderation.GET("/queue", moderationHandler.ListQueue)
				moderation.POST("/queue/:id/begin", moderationHandler.BeginReview)
				moderation.PUT("/queue/:id/assign", moderationHandler.Assign)
				moderation.POST("/queue/:id/resolve", moderationHandler.Resolve)
				moderation.GET("/queue/:id/actions", moderationHandler.ListActions)
				moderation.GET("/stats", moderationHandler.Stats)
			}

			search := protected.Group("/search")
			search.Use(middleware.RequireRole(models.RoleAdmin))
			{
				search.POST("/reindex/:article_id", searchHandler.Reindex)
				search.POST("/resync", searchHandler.Resync)
				search.GET("/stale", searchHandler.Stale)
			}
		}
	}

	return router
}

// withPublished restricts a public listing to articles readers can see.
func withPublished(c *gin.Context) string {
	q := c.Request.URL.Query()
	q.Set("published", "true")
	return q.Encode()
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			log.Error("request failed", append(fields, zap.String("error", c.Errors.String()))...)
			return
		}
		log.Debug("request", fields...)
	}
}
