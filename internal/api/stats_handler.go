package api

import (
	"net/http"

	"ScoreSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type StatsHandler struct {
	stats  *service.StatsService
	logger *logrus.Logger
}

func NewStatsHandler(stats *service.StatsService, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logger,
	}
}

// StatsHandler 系统快照：映射规模、各源覆盖率、增强进度、熔断器状态
// @Summary 系统统计
// @Success 200 {object} map[string]interface{}
// @Router /api/stats [get]
func (h *StatsHandler) StatsHandler(c *gin.Context) {
	snapshot, err := h.stats.Overview(c.Request.Context())
	if err != nil {
		h.logger.Errorf("统计查询失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

// HealthHandler 健康检查：探测存储连通性，故障返回 503
// @Summary 存活探针
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *StatsHandler) HealthHandler(c *gin.Context) {
	if err := h.stats.Ping(c.Request.Context()); err != nil {
		h.logger.Errorf("健康检查失败: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"service": "scoresync",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "scoresync",
	})
}
