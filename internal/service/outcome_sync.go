package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"ScoreSync/internal/config"
	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"
	"ScoreSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OutcomeSyncService 结果同步引擎：分页发现待同步的权威比分，构造增强
// 结果行并以子批事务做幂等写入。全部存储操作经由熔断器。
type OutcomeSyncService struct {
	outcomeRepo repository.OutcomeRepository
	breaker     *StoreBreaker
	cfg         *config.Config
	logger      *logrus.Logger
}

func NewOutcomeSyncService(
	outcomeRepo repository.OutcomeRepository,
	breaker *StoreBreaker,
	cfg *config.Config,
	logger *logrus.Logger,
) *OutcomeSyncService {
	return &OutcomeSyncService{
		outcomeRepo: outcomeRepo,
		breaker:     breaker,
		cfg:         cfg,
		logger:      logger,
	}
}

// SyncResult 同步运行的结构化结果。部分失败也返回计数与错误明细，
// 调用方永远不需要靠"没抛错"推断成功。
type SyncResult struct {
	RunID           string   `json:"run_id"`
	OutcomesFound   int      `json:"outcomes_found"`
	Created         int      `json:"created"`
	Updated         int      `json:"updated"`
	Failures        int      `json:"failures"`
	DurationSeconds float64  `json:"duration_seconds"`
	DryRun          bool     `json:"dry_run"`
	Errors          []string `json:"errors"`
}

// fallbackQuality 无映射行可参照时增强行的质量分
const fallbackQuality = 0.5

// SyncAllMissing 全量同步：扫描全部"比分齐全但增强行缺失/缺比分"的结果。
// limit 为 0 表示不设上限；pageSize 为 0 时取配置默认值。
// dryRun 做同样的发现与构造，只是跳过写入并上报模拟计数。
func (s *OutcomeSyncService) SyncAllMissing(ctx context.Context, dryRun bool, limit, pageSize int) (*SyncResult, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit 不能为负，收到 %d: %w", limit, errs.ErrInvalidArgument)
	}
	if pageSize < 0 {
		return nil, fmt.Errorf("pageSize 不能为负，收到 %d: %w", pageSize, errs.ErrInvalidArgument)
	}
	return s.run(ctx, nil, dryRun, limit, pageSize)
}

// SyncRecent 增量同步：只看最近 daysBack 天内的比赛，供高频调度使用
func (s *OutcomeSyncService) SyncRecent(ctx context.Context, daysBack int, dryRun bool) (*SyncResult, error) {
	if daysBack <= 0 {
		return nil, fmt.Errorf("daysBack 必须为正整数，收到 %d: %w", daysBack, errs.ErrInvalidArgument)
	}
	since := time.Now().AddDate(0, 0, -daysBack)
	since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	return s.run(ctx, &since, dryRun, 0, 0)
}

func (s *OutcomeSyncService) run(ctx context.Context, since *time.Time, dryRun bool, limit, pageSize int) (*SyncResult, error) {
	start := time.Now()
	if pageSize == 0 {
		pageSize = s.cfg.Sync.PageSize
	}
	if pageSize <= 0 {
		pageSize = 1000
	}

	result := &SyncResult{
		RunID:  uuid.NewString(),
		DryRun: dryRun,
		Errors: []string{},
	}

	// 翻页规则：写入成功的行会随即退出待同步谓词，偏移若按页长推进，
	// 每写一页就会跳过等量仍待同步的行。因此非 dry-run 只把偏移推过
	// 仍留在谓词里的失败行（失败行不在本轮内重试，留给下一轮），
	// 其余位置原地重查；dry-run 不写库、谓词结果不变，按页长正常推进。
	offset := 0
	for {
		fetch := pageSize
		if limit > 0 {
			remaining := limit - result.OutcomesFound
			if remaining <= 0 {
				break
			}
			if remaining < fetch {
				fetch = remaining
			}
		}

		page, err := breakerResult[[]*model.PendingOutcome](s.breaker.Do("查询待同步结果", func() (any, error) {
			return s.outcomeRepo.FindPendingOutcomes(ctx, since, fetch, offset)
		}))
		if err != nil {
			return s.abort(result, start, err)
		}
		if len(page) == 0 {
			break
		}
		result.OutcomesFound += len(page)

		failuresBefore := result.Failures
		if err := s.processPage(ctx, page, dryRun, result); err != nil {
			// 熔断打开只中止当前页，已提交的子批与计数保留
			return s.abort(result, start, err)
		}

		if len(page) < fetch {
			break
		}
		if dryRun {
			offset += len(page)
		} else {
			offset += result.Failures - failuresBefore
		}
	}

	result.DurationSeconds = time.Since(start).Seconds()
	s.logger.Infof("结果同步完成：run_id=%s 扫描 %d 新建 %d 更新 %d 失败 %d 耗时 %.2fs（dry_run=%v）",
		result.RunID, result.OutcomesFound, result.Created, result.Updated, result.Failures,
		result.DurationSeconds, dryRun)
	return result, nil
}

// abort 运行级中止：熔断打开原样上抛（调用方可读出重试时间），
// 其余存储故障统一折算为 ErrStoreUnavailable。结果对象始终一并返回。
func (s *OutcomeSyncService) abort(result *SyncResult, start time.Time, err error) (*SyncResult, error) {
	if !errors.Is(err, errs.ErrCircuitOpen) {
		err = fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	result.Failures++
	if len(result.Errors) < maxAggregatedErrors {
		result.Errors = append(result.Errors, err.Error())
	}
	result.DurationSeconds = time.Since(start).Seconds()
	s.logger.WithError(err).Warnf("结果同步中止：run_id=%s 扫描 %d 新建 %d 更新 %d",
		result.RunID, result.OutcomesFound, result.Created, result.Updated)
	return result, err
}

// processPage 单页处理：构造增强行、与已有行比对划分新建/更新/无变化，
// 再按子批事务写入。单条构造失败只记数不中断；子批写入失败回滚该子批后
// 继续下一子批；熔断打开则上抛中止本轮。
func (s *OutcomeSyncService) processPage(ctx context.Context, page []*model.PendingOutcome, dryRun bool, result *SyncResult) error {
	// 1. 构造增强行
	records := make([]*model.EnrichedGameResult, 0, len(page))
	keys := make([]string, 0, len(page))
	for _, po := range page {
		rec, err := s.buildEnrichedRecord(po)
		if err != nil {
			result.Failures++
			if len(result.Errors) < maxAggregatedErrors {
				result.Errors = append(result.Errors, err.Error())
			}
			continue
		}
		records = append(records, rec)
		keys = append(keys, rec.GameKey)
	}
	if len(records) == 0 {
		return nil
	}

	// 2. 取已有增强行，划分新建/更新；完全相同的行跳过（纯 no-op）
	existing, err := breakerResult[map[string]*model.EnrichedGameResult](s.breaker.Do("查询已有增强行", func() (any, error) {
		return s.outcomeRepo.GetEnrichedByKeys(ctx, keys)
	}))
	if err != nil {
		return err
	}

	toWrite := make([]*model.EnrichedGameResult, 0, len(records))
	isUpdate := make(map[string]bool, len(records))
	for _, rec := range records {
		old, ok := existing[rec.GameKey]
		if !ok {
			toWrite = append(toWrite, rec)
			continue
		}
		if enrichedChanged(old, rec) {
			toWrite = append(toWrite, rec)
			isUpdate[rec.GameKey] = true
		}
	}

	// 3. dry-run 上报模拟计数后直接返回
	if dryRun {
		for _, rec := range toWrite {
			if isUpdate[rec.GameKey] {
				result.Updated++
			} else {
				result.Created++
			}
		}
		return nil
	}

	// 4. 子批事务写入，限制单事务的锁持有与内存
	subBatch := s.cfg.Sync.SubBatchSize
	if subBatch <= 0 {
		subBatch = 50
	}
	for begin := 0; begin < len(toWrite); begin += subBatch {
		end := begin + subBatch
		if end > len(toWrite) {
			end = len(toWrite)
		}
		chunk := toWrite[begin:end]

		_, err := s.breaker.Do("写入增强结果子批", func() (any, error) {
			return nil, s.outcomeRepo.UpsertEnrichedBatch(ctx, chunk)
		})
		if err != nil {
			if errors.Is(err, errs.ErrCircuitOpen) {
				return err
			}
			result.Failures += len(chunk)
			if len(result.Errors) < maxAggregatedErrors {
				result.Errors = append(result.Errors, fmt.Sprintf("子批写入失败（%d 行回滚）: %v", len(chunk), err))
			}
			s.logger.WithError(err).Warnf("增强结果子批写入失败，已回滚 %d 行", len(chunk))
			continue
		}
		for _, rec := range chunk {
			if isUpdate[rec.GameKey] {
				result.Updated++
			} else {
				result.Created++
			}
		}
	}
	return nil
}

// buildEnrichedRecord 由待同步行构造增强结果行：比分、胜负、大小分、
// 让分判定与质量分。metadata 透传结果源的 payload，保证重复构造完全一致。
func (s *OutcomeSyncService) buildEnrichedRecord(po *model.PendingOutcome) (*model.EnrichedGameResult, error) {
	key, err := po.GameKey()
	if err != nil {
		return nil, err
	}
	if po.HomeScore == nil || po.AwayScore == nil {
		return nil, fmt.Errorf("结果行 %d 比分不完整: %w", po.OutcomeID, errs.ErrInvalidArgument)
	}
	home, away := *po.HomeScore, *po.AwayScore

	quality := fallbackQuality
	if po.ResolutionConfidence != nil {
		quality = *po.ResolutionConfidence
	}

	return &model.EnrichedGameResult{
		GameKey:         key,
		CanonicalID:     po.CanonicalID,
		HomeTeam:        po.HomeTeam,
		AwayTeam:        po.AwayTeam,
		GameDate:        po.GameDate,
		HomeScore:       po.HomeScore,
		AwayScore:       po.AwayScore,
		HomeWin:         gradeHomeWin(home, away),
		OverUnderResult: gradeOverUnder(home, away, po.ClosingTotal),
		SpreadCovered:   gradeSpread(home, away, po.ClosingSpread),
		ClosingSpread:   po.ClosingSpread,
		ClosingTotal:    po.ClosingTotal,
		Status:          po.Status,
		QualityScore:    quality,
		Metadata:        po.Payload,
	}, nil
}

// gradeHomeWin 主队胜负，平局返回 nil
func gradeHomeWin(home, away int) *bool {
	if home == away {
		return nil
	}
	v := home > away
	return &v
}

// gradeOverUnder 大小分判定：总分对收盘大小分，走平为 push；无盘口返回 nil
func gradeOverUnder(home, away int, closingTotal *float64) *string {
	if closingTotal == nil {
		return nil
	}
	total := float64(home + away)
	var v string
	switch {
	case total > *closingTotal:
		v = model.OverUnderOver
	case total < *closingTotal:
		v = model.OverUnderUnder
	default:
		v = model.OverUnderPush
	}
	return &v
}

// gradeSpread 让分判定（主队视角，负数主队让分）：
// 主队分 + 让分 > 客队分即主队过盘；平盘退还返回 nil；无盘口返回 nil
func gradeSpread(home, away int, closingSpread *float64) *bool {
	if closingSpread == nil {
		return nil
	}
	margin := float64(home) + *closingSpread - float64(away)
	if margin == 0 {
		return nil
	}
	v := margin > 0
	return &v
}

// enrichedChanged 新旧增强行是否存在需要落库的差异
func enrichedChanged(old, next *model.EnrichedGameResult) bool {
	if !ptrEq(old.HomeScore, next.HomeScore) || !ptrEq(old.AwayScore, next.AwayScore) {
		return true
	}
	if !ptrEq(old.HomeWin, next.HomeWin) || !ptrEq(old.SpreadCovered, next.SpreadCovered) {
		return true
	}
	if !ptrEq(old.OverUnderResult, next.OverUnderResult) {
		return true
	}
	if !ptrEq(old.ClosingSpread, next.ClosingSpread) || !ptrEq(old.ClosingTotal, next.ClosingTotal) {
		return true
	}
	if !ptrEq(old.CanonicalID, next.CanonicalID) {
		return true
	}
	if old.Status != next.Status || old.QualityScore != next.QualityScore {
		return true
	}
	if !bytes.Equal(old.Metadata, next.Metadata) {
		return true
	}
	return false
}

func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
