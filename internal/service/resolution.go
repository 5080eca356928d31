package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ScoreSync/internal/config"
	"ScoreSync/internal/errs"
	"ScoreSync/internal/interfaces"
	"ScoreSync/internal/model"
	"ScoreSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// maxAggregatedErrors 结果对象中保留的错误明细上限，超出部分只计数
const maxAggregatedErrors = 50

// ResolutionService 身份解析服务：缓存优先查询、批量查询、
// 未命中时调外部解析服务并回写映射、未映射ID的批量回填。
type ResolutionService struct {
	mappingRepo   repository.MappingRepository
	discoveryRepo repository.DiscoveryRepository
	resolver      interfaces.ResolverClient
	cfg           *config.Config
	logger        *logrus.Logger
}

func NewResolutionService(
	mappingRepo repository.MappingRepository,
	discoveryRepo repository.DiscoveryRepository,
	resolver interfaces.ResolverClient,
	cfg *config.Config,
	logger *logrus.Logger,
) *ResolutionService {
	return &ResolutionService{
		mappingRepo:   mappingRepo,
		discoveryRepo: discoveryRepo,
		resolver:      resolver,
		cfg:           cfg,
		logger:        logger,
	}
}

// ResolveRequest 带创建的解析请求：外部ID + 来源 + 解析服务所需的比赛上下文
type ResolveRequest struct {
	ExternalID   string
	Source       model.Source
	HomeTeam     string
	AwayTeam     string
	GameDate     time.Time
	GameDatetime *time.Time
}

// ResolveUnmappedResult 未映射回填的汇总结果
type ResolveUnmappedResult struct {
	Scanned  int      `json:"scanned"`
	Resolved int      `json:"resolved"`
	Failed   int      `json:"failed"`
	DryRun   bool     `json:"dry_run"`
	Errors   []string `json:"errors"`
}

// SuspectReport 可疑映射核验报告
type SuspectReport struct {
	Threshold   float64                      `json:"threshold"`
	StaleBefore time.Time                    `json:"stale_before"`
	Count       int                          `json:"count"`
	Mappings    []*model.GameIdentityMapping `json:"mappings"`
}

// Resolve 热路径查询：(source, externalID) -> canonicalID。
// 纯缓存点查，永不触发外部解析调用；存储故障记日志后降级为 ErrNotFound，
// 调用方将"查询失败"与"尚未解析"同等对待，管道吞吐只降不停。
func (s *ResolutionService) Resolve(ctx context.Context, externalID string, source model.Source) (string, error) {
	if err := validateRef(externalID, source); err != nil {
		return "", err
	}

	m, err := s.mappingRepo.LookupBySourceID(ctx, source, externalID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", errs.ErrNotFound
		}
		// 置信度只影响核验报告，任何已入库映射都正常命中
		s.logger.WithError(err).WithFields(logrus.Fields{
			"source":      string(source),
			"external_id": externalID,
		}).Warn("映射查询故障，降级为未命中")
		return "", errs.ErrNotFound
	}
	return m.CanonicalID, nil
}

// ResolveOrCreate 缓存优先；未命中时调外部解析服务，置信度大于 0 则
// 合并写入映射并返回 canonical_id，等级 NONE 视为未匹配返回 ErrNotFound。
// 回填路径专用，写入失败会显式上抛（不做热路径那样的降级）。
func (s *ResolutionService) ResolveOrCreate(ctx context.Context, req *ResolveRequest) (string, error) {
	if err := validateRef(req.ExternalID, req.Source); err != nil {
		return "", err
	}
	if req.HomeTeam == "" || req.AwayTeam == "" {
		return "", fmt.Errorf("解析请求缺少队名: %w", errs.ErrInvalidArgument)
	}
	if req.GameDate.IsZero() {
		return "", fmt.Errorf("解析请求缺少比赛日期: %w", errs.ErrInvalidArgument)
	}

	// 1. 缓存优先
	m, err := s.mappingRepo.LookupBySourceID(ctx, req.Source, req.ExternalID)
	if err == nil {
		return m.CanonicalID, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"source":      string(req.Source),
			"external_id": req.ExternalID,
		}).Warn("映射查询故障，按未命中继续走解析")
	}

	// 2. 调外部解析服务做模糊匹配
	res, err := s.resolver.Resolve(ctx, &interfaces.MatchRequest{
		ExternalID: req.ExternalID,
		Source:     req.Source,
		HomeTeam:   req.HomeTeam,
		AwayTeam:   req.AwayTeam,
		GameDate:   req.GameDate,
	})
	if err != nil {
		return "", fmt.Errorf("外部解析调用失败: %w, external_id: %s", err, req.ExternalID)
	}
	if res == nil || res.CanonicalID == "" || res.Grade.Score() <= 0 {
		return "", errs.ErrNotFound
	}

	// 3. 合并写入映射（canonical_id 冲突时非破坏合并）
	now := time.Now()
	row := &model.GameIdentityMapping{
		CanonicalID:          res.CanonicalID,
		HomeTeam:             model.NormalizeTeam(req.HomeTeam),
		AwayTeam:             model.NormalizeTeam(req.AwayTeam),
		GameDate:             req.GameDate,
		GameDatetime:         req.GameDatetime,
		ResolutionConfidence: res.Grade.Score(),
		PrimarySource:        string(req.Source),
		LastVerifiedAt:       &now,
		VerificationAttempts: 1,
	}
	row.SetExternalID(req.Source, req.ExternalID)
	if err := s.mappingRepo.UpsertMerge(ctx, row); err != nil {
		return "", fmt.Errorf("映射写入失败: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"source":       string(req.Source),
		"external_id":  req.ExternalID,
		"canonical_id": res.CanonicalID,
		"grade":        string(res.Grade),
	}).Info("解析成功并已入库")
	return res.CanonicalID, nil
}

// ResolveBulk 批量查询。按来源分组，每组一次 IN 查询，把 O(n) 次往返
// 压成 O(源数) 次；返回覆盖每个输入对的完整结果（未命中为 nil，绝不缺项）。
// 某组存储故障时整组按未命中处理并记日志，与单条热路径的降级策略一致。
func (s *ResolutionService) ResolveBulk(ctx context.Context, refs []model.ExternalRef) (map[model.ExternalRef]*string, error) {
	// 1. 先整体校验，任何非法输入在触达存储前拒绝
	for _, ref := range refs {
		if err := validateRef(ref.ExternalID, ref.Source); err != nil {
			return nil, err
		}
	}

	out := make(map[model.ExternalRef]*string, len(refs))
	bySource := make(map[model.Source][]string)
	for _, ref := range refs {
		out[ref] = nil
		bySource[ref.Source] = append(bySource[ref.Source], ref.ExternalID)
	}

	// 2. 每个来源一次集合查询
	for source, ids := range bySource {
		hits, err := s.mappingRepo.LookupBulk(ctx, source, ids)
		if err != nil {
			s.logger.WithError(err).WithField("source", string(source)).Warn("批量映射查询故障，该组降级为未命中")
			continue
		}
		for extID, canonicalID := range hits {
			cid := canonicalID
			out[model.ExternalRef{ExternalID: extID, Source: source}] = &cid
		}
	}
	return out, nil
}

// ResolveUnmapped 扫描原始表中未映射的外部ID并逐个走 ResolveOrCreate 回填。
// dryRun 只做发现与逐条日志，不调解析服务也不写库。
// 失败候选不在本轮内重试，留给下一轮重新发现。
func (s *ResolutionService) ResolveUnmapped(ctx context.Context, sourceFilter *model.Source, limit int, dryRun bool) (*ResolveUnmappedResult, error) {
	if sourceFilter != nil && !sourceFilter.Valid() {
		return nil, fmt.Errorf("未知数据源 %q: %w", string(*sourceFilter), errs.ErrInvalidArgument)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit 必须为正整数，收到 %d: %w", limit, errs.ErrInvalidArgument)
	}

	pageSize := s.cfg.Sync.DiscoveryPageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	if pageSize > limit {
		pageSize = limit
	}

	// 翻页规则同结果同步：解析成功的候选会随即退出反联结谓词，
	// 非 dry-run 只把偏移推过仍未映射的失败候选，其余位置原地重查；
	// dry-run 不落映射，按页长正常推进
	result := &ResolveUnmappedResult{DryRun: dryRun, Errors: []string{}}
	offset := 0
	for result.Scanned < limit {
		page, err := s.discoveryRepo.FindUnmapped(ctx, sourceFilter, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("发现未映射ID失败: %w", err)
		}
		if len(page) == 0 {
			break
		}

		pageFailed := 0
		for _, cand := range page {
			if result.Scanned >= limit {
				break
			}
			result.Scanned++

			if dryRun {
				s.logger.WithFields(logrus.Fields{
					"source":      string(cand.Source),
					"external_id": cand.ExternalID,
					"home_team":   cand.HomeTeam,
					"away_team":   cand.AwayTeam,
				}).Info("dry-run: 待解析候选")
				continue
			}

			_, err := s.ResolveOrCreate(ctx, &ResolveRequest{
				ExternalID:   cand.ExternalID,
				Source:       cand.Source,
				HomeTeam:     cand.HomeTeam,
				AwayTeam:     cand.AwayTeam,
				GameDate:     cand.GameDate,
				GameDatetime: cand.GameDatetime,
			})
			if err != nil {
				result.Failed++
				pageFailed++
				if len(result.Errors) < maxAggregatedErrors {
					result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", string(cand.Source), cand.ExternalID, err))
				}
				// 单条失败不阻断回填，继续处理后续候选
				s.logger.WithError(err).WithFields(logrus.Fields{
					"source":      string(cand.Source),
					"external_id": cand.ExternalID,
				}).Warn("候选解析失败")
				continue
			}
			result.Resolved++
		}

		if len(page) < pageSize {
			break
		}
		if dryRun {
			offset += len(page)
		} else {
			offset += pageFailed
		}
	}

	s.logger.Infof("未映射回填完成：扫描 %d，解析成功 %d，失败 %d（dry_run=%v）",
		result.Scanned, result.Resolved, result.Failed, dryRun)
	return result, nil
}

// SuspectMappings 核验报告：低置信或超期未核验的映射只标记上报，不删除
func (s *ResolutionService) SuspectMappings(ctx context.Context, threshold float64, staleDays int, limit int) (*SuspectReport, error) {
	if threshold <= 0 {
		threshold = s.cfg.Sync.SuspectConfidenceThreshold
	}
	if threshold > 1 {
		return nil, fmt.Errorf("置信度阈值 %v 超出 (0,1]: %w", threshold, errs.ErrInvalidArgument)
	}
	if staleDays <= 0 {
		staleDays = s.cfg.Sync.SuspectStaleDays
	}

	staleBefore := time.Now().AddDate(0, 0, -staleDays)
	list, err := s.mappingRepo.ListSuspect(ctx, threshold, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("查询可疑映射失败: %w", err)
	}
	return &SuspectReport{
		Threshold:   threshold,
		StaleBefore: staleBefore,
		Count:       len(list),
		Mappings:    list,
	}, nil
}

// validateRef 外部ID与来源的公共校验，任何 I/O 之前执行
func validateRef(externalID string, source model.Source) error {
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("外部ID不能为空: %w", errs.ErrInvalidArgument)
	}
	if !source.Valid() {
		return fmt.Errorf("未知数据源 %q: %w", string(source), errs.ErrInvalidArgument)
	}
	return nil
}
