package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MappingRepository 身份映射仓储
type MappingRepository interface {
	// Ping 存储连通性探测（健康检查用）
	Ping(ctx context.Context) error
	// LookupBySourceID 按 (source, external_id) 做索引点查，未命中返回 ErrNotFound
	LookupBySourceID(ctx context.Context, source model.Source, externalID string) (*model.GameIdentityMapping, error)
	// LookupBulk 单源批量查询，返回 externalID -> canonicalID（未命中的键不在结果中）
	LookupBulk(ctx context.Context, source model.Source, externalIDs []string) (map[string]string, error)
	GetByCanonicalID(ctx context.Context, canonicalID string) (*model.GameIdentityMapping, error)
	// UpsertMerge 以 canonical_id 冲突合并写入：各源外部ID非破坏合并，置信度取大
	UpsertMerge(ctx context.Context, m *model.GameIdentityMapping) error
	// ListSuspect 列出低置信或长期未核验的可疑映射（只标记不删除）
	ListSuspect(ctx context.Context, threshold float64, staleBefore time.Time, limit int) ([]*model.GameIdentityMapping, error)
	Stats(ctx context.Context, lowConfidenceBelow float64) (*model.MappingStats, error)
}

type mappingRepository struct {
	db *gorm.DB
}

func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层连接失败: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("存储连通性探测失败: %w", err)
	}
	return nil
}

func (r *mappingRepository) LookupBySourceID(ctx context.Context, source model.Source, externalID string) (*model.GameIdentityMapping, error) {
	var m model.GameIdentityMapping
	col := source.MappingColumn()
	err := r.db.WithContext(ctx).Where(col+" = ?", externalID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("查询映射失败: %w", err)
	}
	return &m, nil
}

func (r *mappingRepository) LookupBulk(ctx context.Context, source model.Source, externalIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}
	col := source.MappingColumn()
	var rows []struct {
		ExternalID  string `gorm:"column:external_id"`
		CanonicalID string `gorm:"column:canonical_id"`
	}
	err := r.db.WithContext(ctx).
		Model(&model.GameIdentityMapping{}).
		Select(col+" AS external_id, canonical_id").
		Where(col+" IN ?", externalIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("批量查询映射失败: %w", err)
	}
	for _, row := range rows {
		out[row.ExternalID] = row.CanonicalID
	}
	return out, nil
}

func (r *mappingRepository) GetByCanonicalID(ctx context.Context, canonicalID string) (*model.GameIdentityMapping, error) {
	var m model.GameIdentityMapping
	err := r.db.WithContext(ctx).Where("canonical_id = ?", canonicalID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("查询映射失败: %w", err)
	}
	return &m, nil
}

// UpsertMerge 单语句合并写入。canonical_id 唯一约束是并发去重的唯一机制：
// 两个调用方同时解析同一场比赛时，后写者走 ON CONFLICT 合并而不是报错。
// 合并规则：
//   - 各源外部ID列 COALESCE(新, 旧)，对源X的写入永不清掉源Y已有的ID；
//   - resolution_confidence 取新旧较大值；
//   - 队名仅在新值非空时刷新，game_datetime/last_verified_at 按 COALESCE 补齐；
//   - verification_attempts 自增。
func (r *mappingRepository) UpsertMerge(ctx context.Context, m *model.GameIdentityMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}

	assigns := clause.Set{}
	for _, src := range model.AllSources() {
		col := src.MappingColumn()
		assigns = append(assigns, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf("COALESCE(excluded.%s, %s)", col, col)),
		})
	}
	assigns = append(assigns,
		clause.Assignment{
			Column: clause.Column{Name: "resolution_confidence"},
			Value:  gorm.Expr("CASE WHEN excluded.resolution_confidence > resolution_confidence THEN excluded.resolution_confidence ELSE resolution_confidence END"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "home_team"},
			Value:  gorm.Expr("CASE WHEN excluded.home_team <> '' THEN excluded.home_team ELSE home_team END"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "away_team"},
			Value:  gorm.Expr("CASE WHEN excluded.away_team <> '' THEN excluded.away_team ELSE away_team END"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "game_date"},
			Value:  gorm.Expr("excluded.game_date"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "game_datetime"},
			Value:  gorm.Expr("COALESCE(excluded.game_datetime, game_datetime)"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "last_verified_at"},
			Value:  gorm.Expr("COALESCE(excluded.last_verified_at, last_verified_at)"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "verification_attempts"},
			Value:  gorm.Expr("verification_attempts + 1"),
		},
		clause.Assignment{
			Column: clause.Column{Name: "updated_at"},
			Value:  gorm.Expr("excluded.updated_at"),
		},
	)

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canonical_id"}},
		DoUpdates: assigns,
	}).Create(m).Error; err != nil {
		return fmt.Errorf("写入映射失败: %w, canonical_id: %s", err, m.CanonicalID)
	}
	// 冲突合并时 gorm 不回填自增ID，按 canonical_id 补查
	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(m).Where("canonical_id = ?", m.CanonicalID).Select("id").First(m).Error; err != nil {
			return fmt.Errorf("回查映射ID失败: %w, canonical_id: %s", err, m.CanonicalID)
		}
	}
	return nil
}

func (r *mappingRepository) ListSuspect(ctx context.Context, threshold float64, staleBefore time.Time, limit int) ([]*model.GameIdentityMapping, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var list []*model.GameIdentityMapping
	err := r.db.WithContext(ctx).
		Where("resolution_confidence < ?"+
			" OR (last_verified_at IS NOT NULL AND last_verified_at < ?)"+
			" OR (last_verified_at IS NULL AND created_at < ?)",
			threshold, staleBefore, staleBefore).
		Order("resolution_confidence ASC, updated_at ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("查询可疑映射失败: %w", err)
	}
	return list, nil
}

func (r *mappingRepository) Stats(ctx context.Context, lowConfidenceBelow float64) (*model.MappingStats, error) {
	selects := "COUNT(*) AS total"
	for _, src := range model.AllSources() {
		// COUNT(列) 只计非空值，即该源已登记外部ID的行数
		selects += fmt.Sprintf(", COUNT(%s) AS %s", src.MappingColumn(), string(src))
	}
	var row struct {
		Total    int64 `gorm:"column:total"`
		NetworkA int64 `gorm:"column:network_a"`
		NetworkB int64 `gorm:"column:network_b"`
		FeedC    int64 `gorm:"column:feed_c"`
		FeedD    int64 `gorm:"column:feed_d"`
	}
	if err := r.db.WithContext(ctx).Model(&model.GameIdentityMapping{}).Select(selects).Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("统计映射失败: %w", err)
	}
	var lowConfidence int64
	if err := r.db.WithContext(ctx).Model(&model.GameIdentityMapping{}).
		Where("resolution_confidence < ?", lowConfidenceBelow).
		Count(&lowConfidence).Error; err != nil {
		return nil, fmt.Errorf("统计低置信映射失败: %w", err)
	}
	return &model.MappingStats{
		Total: row.Total,
		BySource: map[string]int64{
			string(model.SourceNetworkA): row.NetworkA,
			string(model.SourceNetworkB): row.NetworkB,
			string(model.SourceFeedC):    row.FeedC,
			string(model.SourceFeedD):    row.FeedD,
		},
		LowConfidence: lowConfidence,
	}, nil
}

// validateMapping 落库前的硬性校验，违反即拒绝且不触达存储
func validateMapping(m *model.GameIdentityMapping) error {
	if m == nil {
		return fmt.Errorf("映射为空: %w", errs.ErrInvalidArgument)
	}
	if m.CanonicalID == "" {
		return fmt.Errorf("canonical_id 不能为空: %w", errs.ErrInvalidArgument)
	}
	if !m.HasExternalID() {
		return fmt.Errorf("映射行至少需要一个外部ID, canonical_id: %s: %w", m.CanonicalID, errs.ErrInvalidArgument)
	}
	if m.HomeTeam == "" || m.AwayTeam == "" {
		return fmt.Errorf("队名不能为空, canonical_id: %s: %w", m.CanonicalID, errs.ErrInvalidArgument)
	}
	if m.GameDate.IsZero() {
		return fmt.Errorf("比赛日期不能为空, canonical_id: %s: %w", m.CanonicalID, errs.ErrInvalidArgument)
	}
	if m.ResolutionConfidence < 0 || m.ResolutionConfidence > 1 {
		return fmt.Errorf("置信度 %v 超出 [0,1], canonical_id: %s: %w", m.ResolutionConfidence, m.CanonicalID, errs.ErrInvalidArgument)
	}
	return nil
}
