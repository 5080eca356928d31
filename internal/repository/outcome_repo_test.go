package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"
	"ScoreSync/internal/repository/testutil"

	"gorm.io/gorm"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func seedOutcome(t *testing.T, db *gorm.DB, canonicalID string, gameDate time.Time, home, away *int, status string) {
	t.Helper()
	row := &model.GameOutcome{
		CanonicalID: strPtr(canonicalID),
		HomeTeam:    "red sox",
		AwayTeam:    "yankees",
		GameDate:    gameDate,
		HomeScore:   home,
		AwayScore:   away,
		Status:      status,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed game_outcomes %s: %v", canonicalID, err)
	}
}

func TestOutcomeRepo_FindPendingOutcomes(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutcomeRepository(db)
	ctx := context.Background()
	day := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

	// 待同步：完结且比分齐全，增强行缺失
	seedOutcome(t, db, "MLB-1", day, intPtr(7), intPtr(4), model.GameStatusFinal)
	// 不同步：未完结
	seedOutcome(t, db, "MLB-2", day, intPtr(3), intPtr(3), model.GameStatusInProgress)
	// 不同步：比分不完整
	seedOutcome(t, db, "MLB-3", day, intPtr(5), nil, model.GameStatusFinal)
	// 不同步：增强行已有比分
	seedOutcome(t, db, "MLB-4", day, intPtr(2), intPtr(1), model.GameStatusFinal)
	if err := db.Create(&model.EnrichedGameResult{
		GameKey:     "MLB-4",
		CanonicalID: strPtr("MLB-4"),
		HomeTeam:    "red sox",
		AwayTeam:    "yankees",
		GameDate:    day,
		HomeScore:   intPtr(2),
		AwayScore:   intPtr(1),
		Status:      model.GameStatusFinal,
	}).Error; err != nil {
		t.Fatalf("seed enriched: %v", err)
	}
	// 待同步：增强行存在但缺比分
	seedOutcome(t, db, "MLB-5", day, intPtr(9), intPtr(8), model.GameStatusFinal)
	if err := db.Create(&model.EnrichedGameResult{
		GameKey:     "MLB-5",
		CanonicalID: strPtr("MLB-5"),
		HomeTeam:    "red sox",
		AwayTeam:    "yankees",
		GameDate:    day,
		Status:      model.GameStatusScheduled,
	}).Error; err != nil {
		t.Fatalf("seed enriched: %v", err)
	}

	page, err := repo.FindPendingOutcomes(ctx, nil, 100, 0)
	if err != nil {
		t.Fatalf("FindPendingOutcomes: %v", err)
	}
	got := map[string]bool{}
	for _, po := range page {
		got[*po.CanonicalID] = true
	}
	if len(got) != 2 || !got["MLB-1"] || !got["MLB-5"] {
		t.Fatalf("待同步集合 = %v，期望 {MLB-1, MLB-5}", got)
	}
}

func TestOutcomeRepo_FindPendingSince(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutcomeRepository(db)
	ctx := context.Background()

	seedOutcome(t, db, "MLB-old", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), intPtr(1), intPtr(0), model.GameStatusFinal)
	seedOutcome(t, db, "MLB-new", time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC), intPtr(7), intPtr(4), model.GameStatusFinal)

	since := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	page, err := repo.FindPendingOutcomes(ctx, &since, 100, 0)
	if err != nil {
		t.Fatalf("FindPendingOutcomes: %v", err)
	}
	if len(page) != 1 || *page[0].CanonicalID != "MLB-new" {
		t.Fatalf("since 过滤结果错误: %+v", page)
	}
}

func TestOutcomeRepo_FindPendingValidation(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutcomeRepository(db)
	ctx := context.Background()

	if _, err := repo.FindPendingOutcomes(ctx, nil, 0, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("非正 pageSize 应返回 ErrInvalidArgument，实际 %v", err)
	}
	if _, err := repo.FindPendingOutcomes(ctx, nil, 10, -3); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("负 offset 应返回 ErrInvalidArgument，实际 %v", err)
	}
}

func TestOutcomeRepo_UpsertEnrichedBatchIdempotent(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutcomeRepository(db)
	ctx := context.Background()
	day := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

	build := func(homeScore int) []*model.EnrichedGameResult {
		return []*model.EnrichedGameResult{{
			GameKey:      "MLB-1",
			CanonicalID:  strPtr("MLB-1"),
			HomeTeam:     "red sox",
			AwayTeam:     "yankees",
			GameDate:     day,
			HomeScore:    intPtr(homeScore),
			AwayScore:    intPtr(4),
			HomeWin:      boolPtr(true),
			Status:       model.GameStatusFinal,
			QualityScore: 1.0,
		}}
	}

	if err := repo.UpsertEnrichedBatch(ctx, build(7)); err != nil {
		t.Fatalf("首次写入: %v", err)
	}
	// 同键重写不产生重复行
	if err := repo.UpsertEnrichedBatch(ctx, build(8)); err != nil {
		t.Fatalf("重写: %v", err)
	}

	var rows []*model.EnrichedGameResult
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("行数 = %d，期望 1", len(rows))
	}
	if rows[0].HomeScore == nil || *rows[0].HomeScore != 8 {
		t.Fatalf("home_score 未更新: %v", rows[0].HomeScore)
	}

	existing, err := repo.GetEnrichedByKeys(ctx, []string{"MLB-1", "MLB-404"})
	if err != nil {
		t.Fatalf("GetEnrichedByKeys: %v", err)
	}
	if len(existing) != 1 || existing["MLB-1"] == nil {
		t.Fatalf("按键查询结果 = %v", existing)
	}

	total, graded, err := repo.CountEnriched(ctx)
	if err != nil {
		t.Fatalf("CountEnriched: %v", err)
	}
	if total != 1 || graded != 1 {
		t.Fatalf("CountEnriched = (%d, %d)", total, graded)
	}
}
