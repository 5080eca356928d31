package interfaces

import (
	"context"
	"fmt"
	"time"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"
)

// ConfidenceGrade 外部解析服务返回的置信等级
type ConfidenceGrade string

const (
	GradeHigh   ConfidenceGrade = "HIGH"
	GradeMedium ConfidenceGrade = "MEDIUM"
	GradeLow    ConfidenceGrade = "LOW"
	GradeNone   ConfidenceGrade = "NONE" // 视为未匹配
)

// Score 置信等级到 [0,1] 置信度的固定换算
func (g ConfidenceGrade) Score() float64 {
	switch g {
	case GradeHigh:
		return 1.0
	case GradeMedium:
		return 0.8
	case GradeLow:
		return 0.6
	default:
		return 0.0
	}
}

// ParseGrade 解析置信等级字符串，未知值返回 ErrInvalidArgument
func ParseGrade(s string) (ConfidenceGrade, error) {
	switch ConfidenceGrade(s) {
	case GradeHigh, GradeMedium, GradeLow, GradeNone:
		return ConfidenceGrade(s), nil
	default:
		return "", fmt.Errorf("未知置信等级 %q: %w", s, errs.ErrInvalidArgument)
	}
}

// MatchRequest 解析请求：外部ID + 来源 + 比赛双方 + 日期
type MatchRequest struct {
	ExternalID string
	Source     model.Source
	HomeTeam   string
	AwayTeam   string
	GameDate   time.Time
}

// MatchResult 解析结果。Grade 为 NONE 时 CanonicalID 无意义
type MatchResult struct {
	CanonicalID string
	Grade       ConfidenceGrade
}

// ResolverClient 外部模糊匹配解析服务的契约。实现方（statsfeed 适配器等）
// 基于队名 + 日期做跨源匹配，返回 best-effort 的 canonical_id 与置信等级；
// 匹配算法本身在服务端，本仓库只消费该契约。
type ResolverClient interface {
	GetName() string
	Resolve(ctx context.Context, req *MatchRequest) (*MatchResult, error)
}
