package repository

import (
	"context"
	"fmt"
	"strings"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DiscoveryRepository 未映射外部ID发现仓储（纯读，零副作用）
type DiscoveryRepository interface {
	// FindUnmapped 扫描原始抓取表中尚无映射的外部ID，返回一页候选。
	// sourceFilter 为 nil 时跨全部数据源扫描；调用方以 offset 递增翻页，
	// 返回行数小于 pageSize 即为扫描完成。
	FindUnmapped(ctx context.Context, sourceFilter *model.Source, pageSize, offset int) ([]*model.UnmappedCandidate, error)
	// SourceCoverage 各数据源的原始行数与已映射行数
	SourceCoverage(ctx context.Context) ([]*model.SourceCoverage, error)
}

type discoveryRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDiscoveryRepository(db *gorm.DB, logger *logrus.Logger) DiscoveryRepository {
	return &discoveryRepository{db: db, logger: logger}
}

// warnPageSize 超过该页大小仅告警不拒绝
const warnPageSize = 1000

func (r *discoveryRepository) FindUnmapped(ctx context.Context, sourceFilter *model.Source, pageSize, offset int) ([]*model.UnmappedCandidate, error) {
	if sourceFilter != nil && !sourceFilter.Valid() {
		return nil, fmt.Errorf("未知数据源 %q: %w", string(*sourceFilter), errs.ErrInvalidArgument)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("pageSize 必须为正整数，收到 %d: %w", pageSize, errs.ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset 不能为负，收到 %d: %w", offset, errs.ErrInvalidArgument)
	}
	if pageSize > warnPageSize {
		r.logger.Warnf("发现查询 pageSize=%d 超过 %d，单页扫描可能偏慢", pageSize, warnPageSize)
	}

	sources := model.AllSources()
	if sourceFilter != nil {
		sources = []model.Source{*sourceFilter}
	}

	// 每个数据源一段反联结子查询，表名/列名全部来自 Source 枚举的穷举 switch，
	// 不接受任何外部字符串拼接
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, unmappedSelect(src))
	}
	query := strings.Join(parts, "\nUNION ALL\n") +
		"\nORDER BY source_tag, external_id LIMIT ? OFFSET ?"

	var rows []*model.UnmappedCandidate
	if err := r.db.WithContext(ctx).Raw(query, pageSize, offset).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("发现查询失败: %w", err)
	}
	return rows, nil
}

// unmappedSelect 单数据源的反联结片段：原始表里映射表查不到对应外部ID的行
func unmappedSelect(src model.Source) string {
	table := src.RawTable()
	col := src.MappingColumn()
	return fmt.Sprintf(
		"SELECT '%s' AS source_tag, r.external_game_id AS external_id, r.home_team, r.away_team, r.game_date, r.game_datetime, '%s' AS origin_table"+
			" FROM %s r"+
			" WHERE r.external_game_id IS NOT NULL AND r.external_game_id <> ''"+
			" AND NOT EXISTS (SELECT 1 FROM game_identity_mappings m WHERE m.%s = r.external_game_id)",
		string(src), table, table, col,
	)
}

func (r *discoveryRepository) SourceCoverage(ctx context.Context) ([]*model.SourceCoverage, error) {
	out := make([]*model.SourceCoverage, 0, len(model.AllSources()))
	for _, src := range model.AllSources() {
		table := src.RawTable()
		col := src.MappingColumn()
		var row struct {
			Total  int64 `gorm:"column:total"`
			Mapped int64 `gorm:"column:mapped"`
		}
		query := fmt.Sprintf(
			"SELECT COUNT(*) AS total,"+
				" COALESCE(SUM(CASE WHEN EXISTS (SELECT 1 FROM game_identity_mappings m WHERE m.%s = r.external_game_id) THEN 1 ELSE 0 END), 0) AS mapped"+
				" FROM %s r",
			col, table,
		)
		if err := r.db.WithContext(ctx).Raw(query).Scan(&row).Error; err != nil {
			return nil, fmt.Errorf("统计 %s 覆盖率失败: %w", string(src), err)
		}
		cov := &model.SourceCoverage{
			Source:   string(src),
			RawTotal: row.Total,
			Mapped:   row.Mapped,
		}
		if row.Total > 0 {
			cov.CoveragePct = float64(row.Mapped) / float64(row.Total) * 100
		}
		out = append(out, cov)
	}
	return out, nil
}
