package service

import (
	"context"
	"fmt"
	"time"

	"ScoreSync/internal/config"
	"ScoreSync/internal/model"
	"ScoreSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// StatsService 汇总运营视角的系统快照：映射规模、各源覆盖率、
// 增强结果进度与熔断器状态
type StatsService struct {
	mappingRepo   repository.MappingRepository
	discoveryRepo repository.DiscoveryRepository
	outcomeRepo   repository.OutcomeRepository
	breaker       *StoreBreaker
	cfg           *config.Config
	logger        *logrus.Logger
}

func NewStatsService(
	mappingRepo repository.MappingRepository,
	discoveryRepo repository.DiscoveryRepository,
	outcomeRepo repository.OutcomeRepository,
	breaker *StoreBreaker,
	cfg *config.Config,
	logger *logrus.Logger,
) *StatsService {
	return &StatsService{
		mappingRepo:   mappingRepo,
		discoveryRepo: discoveryRepo,
		outcomeRepo:   outcomeRepo,
		breaker:       breaker,
		cfg:           cfg,
		logger:        logger,
	}
}

type EnrichedStats struct {
	Total  int64 `json:"total"`
	Graded int64 `json:"graded"`
}

type BreakerStats struct {
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalSuccesses      uint32 `json:"total_successes"`
	TotalFailures       uint32 `json:"total_failures"`
}

type SystemStats struct {
	Mappings    *model.MappingStats     `json:"mappings"`
	Coverage    []*model.SourceCoverage `json:"coverage"`
	Enriched    *EnrichedStats          `json:"enriched"`
	Breaker     *BreakerStats           `json:"breaker"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Ping 健康检查用的存储连通性探测
func (s *StatsService) Ping(ctx context.Context) error {
	return s.mappingRepo.Ping(ctx)
}

// Overview 拉取一次完整的系统快照
func (s *StatsService) Overview(ctx context.Context) (*SystemStats, error) {
	mappings, err := s.mappingRepo.Stats(ctx, s.cfg.Sync.SuspectConfidenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("统计映射失败: %w", err)
	}

	coverage, err := s.discoveryRepo.SourceCoverage(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计各源覆盖率失败: %w", err)
	}

	total, graded, err := s.outcomeRepo.CountEnriched(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计增强结果失败: %w", err)
	}

	counts := s.breaker.Counts()
	return &SystemStats{
		Mappings: mappings,
		Coverage: coverage,
		Enriched: &EnrichedStats{Total: total, Graded: graded},
		Breaker: &BreakerStats{
			State:               s.breaker.State(),
			ConsecutiveFailures: counts.ConsecutiveFailures,
			TotalSuccesses:      counts.TotalSuccesses,
			TotalFailures:       counts.TotalFailures,
		},
		GeneratedAt: time.Now(),
	}, nil
}
