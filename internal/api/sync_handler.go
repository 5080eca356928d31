package api

import (
	"errors"
	"net/http"
	"strconv"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SyncHandler struct {
	syncService *service.OutcomeSyncService
	logger      *logrus.Logger
}

func NewSyncHandler(syncService *service.OutcomeSyncService, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// SyncOutcomesHandler 全量结果同步
// @Summary 同步全部缺失的增强结果
// @Param dry_run query bool false "只模拟不写库"
// @Param limit query int false "本轮最多处理多少条（0=不限）"
// @Param page_size query int false "分页大小（0=取配置）"
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/sync/outcomes [post]
func (h *SyncHandler) SyncOutcomesHandler(c *gin.Context) {
	dryRun := c.DefaultQuery("dry_run", "false") == "true"
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit参数非法: " + err.Error()})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size参数非法: " + err.Error()})
		return
	}

	result, err := h.syncService.SyncAllMissing(c.Request.Context(), dryRun, limit, pageSize)
	h.respond(c, result, err, "结果同步完成")
}

// SyncRecentHandler 增量结果同步（只看最近N天的比赛）
// @Summary 同步最近N天的增强结果
// @Param days_back query int true "回溯天数（必须为正）"
// @Param dry_run query bool false "只模拟不写库"
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/sync/recent [post]
func (h *SyncHandler) SyncRecentHandler(c *gin.Context) {
	daysBack, err := strconv.Atoi(c.DefaultQuery("days_back", "3"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days_back参数非法: " + err.Error()})
		return
	}
	dryRun := c.DefaultQuery("dry_run", "false") == "true"

	result, err := h.syncService.SyncRecent(c.Request.Context(), daysBack, dryRun)
	h.respond(c, result, err, "增量结果同步完成")
}

// respond 同步结果的统一出口：参数错误400；熔断打开/存储不可用503并带上
// 已完成部分的计数（附重试时间）；其余故障500；成功200。
func (h *SyncHandler) respond(c *gin.Context, result *service.SyncResult, err error, okMsg string) {
	if err != nil {
		if errors.Is(err, errs.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, errs.ErrCircuitOpen) || errors.Is(err, errs.ErrStoreUnavailable) {
			h.logger.Warnf("结果同步中止: %v", err)
			body := gin.H{"error": err.Error(), "result": result}
			var coe *errs.CircuitOpenError
			if errors.As(err, &coe) {
				body["retry_at"] = coe.RetryAt
			}
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		h.logger.Errorf("结果同步失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": okMsg,
		"result":  result,
	})
}
