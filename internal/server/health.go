package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type healthHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
}

func newHealthHandler(db *gorm.DB, redisClient *redis.Client) *healthHandler {
	return &healthHandler{db: db, redisClient: redisClient}
}

// Health reports ready only when the database, and Redis if configured,
// answer a ping.
func (h *healthHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database ping failed"})
		return
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "redis connection failed"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "biogy-api"})
}
