package repository

import (
	"context"
	"fmt"
	"time"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutcomeRepository 结果同步仓储：待同步扫描 + 增强结果表的幂等写入
type OutcomeRepository interface {
	// FindPendingOutcomes 扫描一页待同步结果：比分齐全且状态已完结、
	// 但增强行缺失或缺比分的记录。since 非 nil 时仅看该日期之后的比赛。
	FindPendingOutcomes(ctx context.Context, since *time.Time, pageSize, offset int) ([]*model.PendingOutcome, error)
	// GetEnrichedByKeys 批量取已有增强行，键为 game_key
	GetEnrichedByKeys(ctx context.Context, keys []string) (map[string]*model.EnrichedGameResult, error)
	// UpsertEnrichedBatch 子批事务写入：任一记录失败则整个子批回滚，已提交的子批不受影响
	UpsertEnrichedBatch(ctx context.Context, records []*model.EnrichedGameResult) error
	// CountEnriched 返回增强结果总行数与已有比分的行数
	CountEnriched(ctx context.Context) (total int64, graded int64, err error)
}

type outcomeRepository struct {
	db *gorm.DB
}

func NewOutcomeRepository(db *gorm.DB) OutcomeRepository {
	return &outcomeRepository{db: db}
}

// pendingQuery 待同步扫描。联映射表取置信度供质量分计算，
// 左联增强表筛掉已同步的行；排序固定保证翻页稳定。
const pendingQuery = `
SELECT o.id AS outcome_id, o.canonical_id, o.source, o.external_id,
       o.home_team, o.away_team, o.game_date, o.home_score, o.away_score,
       o.status, o.closing_spread, o.closing_total, o.payload,
       m.resolution_confidence, m.primary_source
FROM game_outcomes o
LEFT JOIN game_identity_mappings m ON m.canonical_id = o.canonical_id
LEFT JOIN enriched_game_results e ON e.game_key = COALESCE(o.canonical_id, o.external_id)
WHERE o.status = ? AND o.home_score IS NOT NULL AND o.away_score IS NOT NULL
  AND (e.id IS NULL OR e.home_score IS NULL OR e.away_score IS NULL)`

func (r *outcomeRepository) FindPendingOutcomes(ctx context.Context, since *time.Time, pageSize, offset int) ([]*model.PendingOutcome, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("pageSize 必须为正整数，收到 %d: %w", pageSize, errs.ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset 不能为负，收到 %d: %w", offset, errs.ErrInvalidArgument)
	}

	query := pendingQuery
	args := []interface{}{model.GameStatusFinal}
	if since != nil {
		query += " AND o.game_date >= ?"
		args = append(args, *since)
	}
	query += " ORDER BY o.game_date ASC, o.id ASC LIMIT ? OFFSET ?"
	args = append(args, pageSize, offset)

	var rows []*model.PendingOutcome
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询待同步结果失败: %w", err)
	}
	return rows, nil
}

func (r *outcomeRepository) GetEnrichedByKeys(ctx context.Context, keys []string) (map[string]*model.EnrichedGameResult, error) {
	out := make(map[string]*model.EnrichedGameResult, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []*model.EnrichedGameResult
	if err := r.db.WithContext(ctx).Where("game_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询增强结果失败: %w", err)
	}
	for _, row := range rows {
		out[row.GameKey] = row
	}
	return out, nil
}

// UpsertEnrichedBatch 以 game_key 冲突更新实现幂等写入。并发的两次同步
// 同时写同一场比赛时，后写者走 ON CONFLICT 更新而不是唯一约束报错。
func (r *outcomeRepository) UpsertEnrichedBatch(ctx context.Context, records []*model.EnrichedGameResult) error {
	if len(records) == 0 {
		return nil
	}

	// 开启事务
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	updateCols := []string{
		"canonical_id", "home_team", "away_team", "game_date",
		"home_score", "away_score", "home_win", "over_under_result", "spread_covered",
		"closing_spread", "closing_total", "status", "quality_score", "metadata", "updated_at",
	}
	for i := range records {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_key"}},
			DoUpdates: clause.AssignmentColumns(updateCols),
		}).Create(records[i]).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("写入增强结果失败: %w, game_key: %s", err, records[i].GameKey)
		}
	}

	// 提交事务
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func (r *outcomeRepository) CountEnriched(ctx context.Context) (int64, int64, error) {
	var total, graded int64
	if err := r.db.WithContext(ctx).Model(&model.EnrichedGameResult{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("统计增强结果失败: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&model.EnrichedGameResult{}).
		Where("home_score IS NOT NULL AND away_score IS NOT NULL").
		Count(&graded).Error; err != nil {
		return 0, 0, fmt.Errorf("统计已定分结果失败: %w", err)
	}
	return total, graded, nil
}
