package api

import (
	"net/http"

	"github.com/ensembot/ensembot/internal/database"
	"github.com/ensembot/ensembot/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the minimal operational surface: a health probe and
// a status snapshot. The full dashboard/API lives outside this service.
func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, engine *services.Engine, positions *database.PositionRepository) {
	router.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/status", func(c *gin.Context) {
		open, err := positions.ListOpen(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		profiles := engine.Profiles()
		experts := make([]gin.H, 0, len(profiles))
		for _, p := range profiles {
			experts = append(experts, gin.H{
				"id":       p.ID,
				"name":     p.DisplayName,
				"strategy": p.StrategyLabel,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"experts":        experts,
			"open_positions": open,
		})
	})
}
