package model

import (
	"fmt"
	"time"

	"ScoreSync/internal/errs"

	"gorm.io/datatypes"
)

// GameOutcome 权威比分源表（外部协作方写入，本子系统只读）。
// 行以 canonical_id 为主键关联；个别来自赔率源的行尚无 canonical_id，
// 仅携带 source + external_id，同步时以外部ID 作回退键。
type GameOutcome struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalID   *string        `gorm:"column:canonical_id;type:varchar(64);index"`
	Source        *string        `gorm:"column:source;type:varchar(32)"`
	ExternalID    *string        `gorm:"column:external_id;type:varchar(64)"`
	HomeTeam      string         `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam      string         `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate      time.Time      `gorm:"column:game_date;type:date;not null"`
	HomeScore     *int           `gorm:"column:home_score;type:int"`
	AwayScore     *int           `gorm:"column:away_score;type:int"`
	Status        string         `gorm:"column:status;type:varchar(16);default:scheduled"`
	ClosingSpread *float64       `gorm:"column:closing_spread;type:numeric(6,2)"` // 收盘让分（主队视角，负数主队让分）
	ClosingTotal  *float64       `gorm:"column:closing_total;type:numeric(6,2)"`  // 收盘大小分
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (GameOutcome) TableName() string { return "game_outcomes" }

// EnrichedGameResult 读优化的增强结果表（本子系统独占写入，下游特征/报表只读）。
// game_key 为幂等键：有 canonical_id 用之，否则回退到结果源携带的外部ID。
type EnrichedGameResult struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	GameKey         string         `gorm:"column:game_key;type:varchar(64);uniqueIndex;not null"`
	CanonicalID     *string        `gorm:"column:canonical_id;type:varchar(64);index"`
	HomeTeam        string         `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam        string         `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate        time.Time      `gorm:"column:game_date;type:date;not null"`
	HomeScore       *int           `gorm:"column:home_score;type:int"`
	AwayScore       *int           `gorm:"column:away_score;type:int"`
	HomeWin         *bool          `gorm:"column:home_win"`                          // 平局为 nil
	OverUnderResult *string        `gorm:"column:over_under_result;type:varchar(8)"` // over/under/push
	SpreadCovered   *bool          `gorm:"column:spread_covered"`                    // 让分平盘为 nil
	ClosingSpread   *float64       `gorm:"column:closing_spread;type:numeric(6,2)"`  // 判定所用收盘让分
	ClosingTotal    *float64       `gorm:"column:closing_total;type:numeric(6,2)"`   // 判定所用收盘大小分
	Status          string         `gorm:"column:status;type:varchar(16);not null"`
	QualityScore    float64        `gorm:"column:quality_score;type:numeric(4,3);default:0"` // 取映射置信度，无映射回退 0.5
	Metadata        datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (EnrichedGameResult) TableName() string { return "enriched_game_results" }

// PendingOutcome 待同步结果查询的扫描行：game_outcomes 联 game_identity_mappings
// 左联 enriched_game_results 后筛出"有完整比分但增强行缺失或缺比分"的记录
type PendingOutcome struct {
	OutcomeID            uint64         `gorm:"column:outcome_id"`
	CanonicalID          *string        `gorm:"column:canonical_id"`
	Source               *string        `gorm:"column:source"`
	ExternalID           *string        `gorm:"column:external_id"`
	HomeTeam             string         `gorm:"column:home_team"`
	AwayTeam             string         `gorm:"column:away_team"`
	GameDate             time.Time      `gorm:"column:game_date"`
	HomeScore            *int           `gorm:"column:home_score"`
	AwayScore            *int           `gorm:"column:away_score"`
	Status               string         `gorm:"column:status"`
	ClosingSpread        *float64       `gorm:"column:closing_spread"`
	ClosingTotal         *float64       `gorm:"column:closing_total"`
	Payload              datatypes.JSON `gorm:"column:payload"`
	ResolutionConfidence *float64       `gorm:"column:resolution_confidence"` // 左联映射表，无映射为 nil
	PrimarySource        *string        `gorm:"column:primary_source"`
}

// GameKey 计算增强行的幂等键：canonical_id 优先，回退外部ID，两者皆缺为构造错误
func (p *PendingOutcome) GameKey() (string, error) {
	if p.CanonicalID != nil && *p.CanonicalID != "" {
		return *p.CanonicalID, nil
	}
	if p.ExternalID != nil && *p.ExternalID != "" {
		return *p.ExternalID, nil
	}
	return "", fmt.Errorf("结果行 %d 缺少 canonical_id 与 external_id: %w", p.OutcomeID, errs.ErrInvalidArgument)
}
