package model

import (
	"regexp"
	"strings"
)

// 比赛状态枚举（游戏结果表与增强结果表共用）
const (
	GameStatusScheduled  = "scheduled"
	GameStatusInProgress = "in_progress"
	GameStatusFinal      = "final"
	GameStatusCanceled   = "canceled"
)

// 大小分判定结果
const (
	OverUnderOver  = "over"
	OverUnderUnder = "under"
	OverUnderPush  = "push"
)

// maxTeamLen 与映射表 home_team/away_team 的 varchar(128) 一致
const maxTeamLen = 128

var (
	nonAlphaNum = regexp.MustCompile(`[^a-z0-9\s]+`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// NormalizeTeam 队名规范化：小写、去非字母数字、压缩空白。
// 各数据源对同一支球队的写法不同（"Red Sox" / "BOS Red-Sox"），入库前统一规范化，
// 保证映射行与结果行的队名可直接比对。
func NormalizeTeam(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlphaNum.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > maxTeamLen {
		s = s[:maxTeamLen]
	}
	return s
}
