package model

import (
	"time"
)

// 各数据源的原始抓取表。写入方是源站抓取器（外部协作方），本子系统只读，
// 建模仅为 AutoMigrate 开发环境建表与发现查询扫描用。

type NetworkAGame struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalGameID string     `gorm:"column:external_game_id;type:varchar(64);uniqueIndex;not null"`
	HomeTeam       string     `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam       string     `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate       time.Time  `gorm:"column:game_date;type:date;not null"`
	GameDatetime   *time.Time `gorm:"column:game_datetime;type:timestamp"`
	CapturedAt     time.Time  `gorm:"column:captured_at;autoCreateTime"`
}

type NetworkBGame struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalGameID string     `gorm:"column:external_game_id;type:varchar(64);uniqueIndex;not null"`
	HomeTeam       string     `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam       string     `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate       time.Time  `gorm:"column:game_date;type:date;not null"`
	GameDatetime   *time.Time `gorm:"column:game_datetime;type:timestamp"`
	CapturedAt     time.Time  `gorm:"column:captured_at;autoCreateTime"`
}

type FeedCGame struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalGameID string     `gorm:"column:external_game_id;type:varchar(64);uniqueIndex;not null"`
	HomeTeam       string     `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam       string     `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate       time.Time  `gorm:"column:game_date;type:date;not null"`
	GameDatetime   *time.Time `gorm:"column:game_datetime;type:timestamp"`
	CapturedAt     time.Time  `gorm:"column:captured_at;autoCreateTime"`
}

type FeedDGame struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalGameID string     `gorm:"column:external_game_id;type:varchar(64);uniqueIndex;not null"`
	HomeTeam       string     `gorm:"column:home_team;type:varchar(128);not null"`
	AwayTeam       string     `gorm:"column:away_team;type:varchar(128);not null"`
	GameDate       time.Time  `gorm:"column:game_date;type:date;not null"`
	GameDatetime   *time.Time `gorm:"column:game_datetime;type:timestamp"`
	CapturedAt     time.Time  `gorm:"column:captured_at;autoCreateTime"`
}

func (NetworkAGame) TableName() string { return "network_a_games" }
func (NetworkBGame) TableName() string { return "network_b_games" }
func (FeedCGame) TableName() string    { return "feed_c_games" }
func (FeedDGame) TableName() string    { return "feed_d_games" }

// UnmappedCandidate 发现查询的结果行：原始表中尚无映射的外部ID 及其比赛上下文
type UnmappedCandidate struct {
	ExternalID   string     `gorm:"column:external_id" json:"external_id"`
	Source       Source     `gorm:"column:source_tag" json:"source"`
	HomeTeam     string     `gorm:"column:home_team" json:"home_team"`
	AwayTeam     string     `gorm:"column:away_team" json:"away_team"`
	GameDate     time.Time  `gorm:"column:game_date" json:"game_date"`
	GameDatetime *time.Time `gorm:"column:game_datetime" json:"game_datetime,omitempty"`
	OriginTable  string     `gorm:"column:origin_table" json:"origin_table"`
}

// SourceCoverage 单个数据源的映射覆盖率统计
type SourceCoverage struct {
	Source      string  `json:"source"`
	RawTotal    int64   `json:"raw_total"`
	Mapped      int64   `json:"mapped"`
	CoveragePct float64 `json:"coverage_pct"`
}
