package api

import (
	"errors"
	"net/http"
	"strconv"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"
	"ScoreSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ResolutionHandler struct {
	resolution *service.ResolutionService
	logger     *logrus.Logger
}

func NewResolutionHandler(resolution *service.ResolutionService, logger *logrus.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolution: resolution,
		logger:     logger,
	}
}

// ResolveHandler 单条映射点查（纯缓存，不触发外部解析）
// @Summary 查询外部ID对应的canonical_id
// @Param source query string true "来源（network_a/network_b/feed_c/feed_d）"
// @Param external_id query string true "来源侧比赛ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/resolve [get]
func (h *ResolutionHandler) ResolveHandler(c *gin.Context) {
	source, err := model.ParseSource(c.Query("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	externalID := c.Query("external_id")

	canonicalID, err := h.resolution.Resolve(c.Request.Context(), externalID, source)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "映射不存在"})
			return
		}
		h.logger.Errorf("映射查询失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":       string(source),
		"external_id":  externalID,
		"canonical_id": canonicalID,
	})
}

// bulkResolveRequest 批量点查请求体
type bulkResolveRequest struct {
	Pairs []model.ExternalRef `json:"pairs" binding:"required"`
}

// bulkResolveEntry 批量点查的单条结果，未命中时 canonical_id 为 null
type bulkResolveEntry struct {
	ExternalID  string  `json:"external_id"`
	Source      string  `json:"source"`
	CanonicalID *string `json:"canonical_id"`
}

// ResolveBulkHandler 批量映射点查
// @Summary 批量查询外部ID对应的canonical_id
// @Param body body bulkResolveRequest true "外部引用列表"
// @Success 200 {object} map[string]interface{}
// @Router /api/resolve/bulk [post]
func (h *ResolutionHandler) ResolveBulkHandler(c *gin.Context) {
	var req bulkResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}

	resolved, err := h.resolution.ResolveBulk(c.Request.Context(), req.Pairs)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("批量映射查询失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hits := 0
	entries := make([]bulkResolveEntry, 0, len(req.Pairs))
	for _, ref := range req.Pairs {
		canonicalID := resolved[ref]
		if canonicalID != nil {
			hits++
		}
		entries = append(entries, bulkResolveEntry{
			ExternalID:  ref.ExternalID,
			Source:      string(ref.Source),
			CanonicalID: canonicalID,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   len(entries),
		"hits":    hits,
		"results": entries,
	})
}

// ResolveUnmappedHandler 扫描原始表并回填未映射的外部ID
// @Summary 未映射ID发现与回填
// @Param source query string false "只处理指定来源"
// @Param limit query int false "本轮最多处理多少条（默认500）"
// @Param dry_run query bool false "只统计不写库"
// @Success 200 {object} map[string]interface{}
// @Router /api/resolve/unmapped [post]
func (h *ResolutionHandler) ResolveUnmappedHandler(c *gin.Context) {
	var sourceFilter *model.Source
	if v := c.Query("source"); v != "" {
		source, err := model.ParseSource(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sourceFilter = &source
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit参数非法: " + err.Error()})
		return
	}
	dryRun := c.DefaultQuery("dry_run", "false") == "true"

	result, err := h.resolution.ResolveUnmapped(c.Request.Context(), sourceFilter, limit, dryRun)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("未映射回填失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "未映射回填完成",
		"result":  result,
	})
}

// SuspectMappingsHandler 低置信度/长期未核验映射的核验报告
// @Summary 可疑映射报告
// @Param threshold query number false "置信度阈值（默认取配置）"
// @Param stale_days query int false "多少天未核验视为陈旧（默认取配置）"
// @Param limit query int false "返回条数上限（默认100）"
// @Success 200 {object} map[string]interface{}
// @Router /api/mappings/suspect [get]
func (h *ResolutionHandler) SuspectMappingsHandler(c *gin.Context) {
	threshold, err := strconv.ParseFloat(c.DefaultQuery("threshold", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold参数非法: " + err.Error()})
		return
	}
	staleDays, err := strconv.Atoi(c.DefaultQuery("stale_days", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stale_days参数非法: " + err.Error()})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit参数非法: " + err.Error()})
		return
	}

	report, err := h.resolution.SuspectMappings(c.Request.Context(), threshold, staleDays, limit)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("可疑映射查询失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
