package model

import (
	"fmt"

	"ScoreSync/internal/errs"
)

// Source 赔率数据源枚举（闭集）。
// 新增数据源时必须同步扩展本文件内所有 switch，保证调度在编译期收口，
// 禁止用字符串拼 SQL 片段的方式做动态分发。
type Source string

const (
	SourceNetworkA Source = "network_a"
	SourceNetworkB Source = "network_b"
	SourceFeedC    Source = "feed_c"
	SourceFeedD    Source = "feed_d"
)

// PrimarySourceManual 人工录入映射时 primary_source 的取值（不对应任何原始表）
const PrimarySourceManual = "manual"

// AllSources 返回全部合法数据源，顺序固定（发现分页的排序依赖该顺序稳定）
func AllSources() []Source {
	return []Source{SourceNetworkA, SourceNetworkB, SourceFeedC, SourceFeedD}
}

// ParseSource 解析数据源标签，未知值返回 ErrInvalidArgument
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", fmt.Errorf("未知数据源 %q: %w", s, errs.ErrInvalidArgument)
	}
	return src, nil
}

// Valid 判断是否为合法数据源
func (s Source) Valid() bool {
	switch s {
	case SourceNetworkA, SourceNetworkB, SourceFeedC, SourceFeedD:
		return true
	}
	return false
}

// MappingColumn 返回该数据源在 game_identity_mappings 表中的外部ID列名。
// 入参必须先经 Valid/ParseSource 校验，未知源直接 panic（启动期即暴露，不做静默回退）。
func (s Source) MappingColumn() string {
	switch s {
	case SourceNetworkA:
		return "network_a_game_id"
	case SourceNetworkB:
		return "network_b_game_id"
	case SourceFeedC:
		return "feed_c_game_id"
	case SourceFeedD:
		return "feed_d_game_id"
	default:
		panic(fmt.Sprintf("model: 未注册的数据源 %q", string(s)))
	}
}

// RawTable 返回该数据源的原始抓取表名
func (s Source) RawTable() string {
	switch s {
	case SourceNetworkA:
		return "network_a_games"
	case SourceNetworkB:
		return "network_b_games"
	case SourceFeedC:
		return "feed_c_games"
	case SourceFeedD:
		return "feed_d_games"
	default:
		panic(fmt.Sprintf("model: 未注册的数据源 %q", string(s)))
	}
}

// ExternalRef 数据源 + 外部ID 的二元组，批量解析的输入单元
type ExternalRef struct {
	ExternalID string `json:"external_id"`
	Source     Source `json:"source"`
}
