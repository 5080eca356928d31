package model

import (
	"time"
)

// GameIdentityMapping 跨源比赛身份映射表（本子系统独占写入）。
// canonical_id 为权威跨源键（外部统计服务商的比赛ID），创建后不可变更；
// 各数据源的外部ID各占一列（可空 + 唯一索引），一行至少有一个非空外部ID。
type GameIdentityMapping struct {
	ID                   uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalID          string     `gorm:"column:canonical_id;type:varchar(64);uniqueIndex;not null"`
	NetworkAGameID       *string    `gorm:"column:network_a_game_id;type:varchar(64);uniqueIndex"`
	NetworkBGameID       *string    `gorm:"column:network_b_game_id;type:varchar(64);uniqueIndex"`
	FeedCGameID          *string    `gorm:"column:feed_c_game_id;type:varchar(64);uniqueIndex"`
	FeedDGameID          *string    `gorm:"column:feed_d_game_id;type:varchar(64);uniqueIndex"`
	HomeTeam             string     `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam             string     `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate             time.Time  `gorm:"column:game_date;type:date;not null"`
	GameDatetime         *time.Time `gorm:"column:game_datetime;type:timestamp"`
	ResolutionConfidence float64    `gorm:"column:resolution_confidence;type:numeric(4,3);default:1.0"` // 解析置信度 [0,1]，只升不降
	PrimarySource        string     `gorm:"column:primary_source;type:varchar(32);not null"`            // 首次建行的来源标签或 manual
	LastVerifiedAt       *time.Time `gorm:"column:last_verified_at;type:timestamp"`
	VerificationAttempts int        `gorm:"column:verification_attempts;type:int;default:0"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (GameIdentityMapping) TableName() string { return "game_identity_mappings" }

// ExternalID 读取指定数据源的外部ID，未登记返回 nil
func (m *GameIdentityMapping) ExternalID(src Source) *string {
	switch src {
	case SourceNetworkA:
		return m.NetworkAGameID
	case SourceNetworkB:
		return m.NetworkBGameID
	case SourceFeedC:
		return m.FeedCGameID
	case SourceFeedD:
		return m.FeedDGameID
	default:
		return nil
	}
}

// SetExternalID 写入指定数据源的外部ID（仅内存修改，不落库）
func (m *GameIdentityMapping) SetExternalID(src Source, externalID string) {
	id := externalID
	switch src {
	case SourceNetworkA:
		m.NetworkAGameID = &id
	case SourceNetworkB:
		m.NetworkBGameID = &id
	case SourceFeedC:
		m.FeedCGameID = &id
	case SourceFeedD:
		m.FeedDGameID = &id
	}
}

// ExternalIDs 返回已登记的全部 源->外部ID 映射
func (m *GameIdentityMapping) ExternalIDs() map[Source]string {
	out := make(map[Source]string)
	for _, src := range AllSources() {
		if id := m.ExternalID(src); id != nil && *id != "" {
			out[src] = *id
		}
	}
	return out
}

// HasExternalID 行内是否至少有一个非空外部ID（建行/合并前的硬性校验）
func (m *GameIdentityMapping) HasExternalID() bool {
	for _, src := range AllSources() {
		if id := m.ExternalID(src); id != nil && *id != "" {
			return true
		}
	}
	return false
}

// MappingStats 映射表概览统计（管理端 /api/stats 用）
type MappingStats struct {
	Total         int64            `json:"total"`
	BySource      map[string]int64 `json:"by_source"`
	LowConfidence int64            `json:"low_confidence"`
}
