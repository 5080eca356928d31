package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ScoreSync/internal/errs"
	"ScoreSync/internal/model"
	"ScoreSync/internal/repository/testutil"

	"gorm.io/gorm"
)

func seedNetworkAGame(t *testing.T, db *gorm.DB, externalID, home, away string) {
	t.Helper()
	row := &model.NetworkAGame{
		ExternalGameID: externalID,
		HomeTeam:       home,
		AwayTeam:       away,
		GameDate:       time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed network_a_games %s: %v", externalID, err)
	}
}

func seedFeedCGame(t *testing.T, db *gorm.DB, externalID, home, away string) {
	t.Helper()
	row := &model.FeedCGame{
		ExternalGameID: externalID,
		HomeTeam:       home,
		AwayTeam:       away,
		GameDate:       time.Date(2024, 8, 16, 0, 0, 0, 0, time.UTC),
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed feed_c_games %s: %v", externalID, err)
	}
}

func TestDiscovery_FindUnmapped(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDiscoveryRepository(db, testutil.Logger(t))
	mappings := NewMappingRepository(db)
	ctx := context.Background()

	seedNetworkAGame(t, db, "AN-1", "red sox", "yankees")
	seedNetworkAGame(t, db, "AN-2", "mets", "braves")
	seedFeedCGame(t, db, "FC-1", "cubs", "cardinals")

	// AN-1 已有映射，发现结果里不应出现
	if err := mappings.UpsertMerge(ctx, newMapping("MLB-1", model.SourceNetworkA, "AN-1", 1.0)); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	page, err := repo.FindUnmapped(ctx, nil, 100, 0)
	if err != nil {
		t.Fatalf("FindUnmapped: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("候选数 = %d，期望 2", len(page))
	}
	found := map[string]model.Source{}
	for _, c := range page {
		found[c.ExternalID] = c.Source
		if c.HomeTeam == "" || c.OriginTable == "" {
			t.Fatalf("候选缺少上下文: %+v", c)
		}
	}
	if found["AN-2"] != model.SourceNetworkA || found["FC-1"] != model.SourceFeedC {
		t.Fatalf("候选集合错误: %v", found)
	}
}

func TestDiscovery_SourceFilter(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDiscoveryRepository(db, testutil.Logger(t))
	ctx := context.Background()

	seedNetworkAGame(t, db, "AN-1", "red sox", "yankees")
	seedFeedCGame(t, db, "FC-1", "cubs", "cardinals")

	src := model.SourceFeedC
	page, err := repo.FindUnmapped(ctx, &src, 100, 0)
	if err != nil {
		t.Fatalf("FindUnmapped: %v", err)
	}
	if len(page) != 1 || page[0].ExternalID != "FC-1" || page[0].OriginTable != "feed_c_games" {
		t.Fatalf("过滤结果错误: %+v", page)
	}
}

// 以 pageSize=k 翻页到短页为止，应与一次性大页拿到完全相同的集合（无重无漏）
func TestDiscovery_PaginationComplete(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDiscoveryRepository(db, testutil.Logger(t))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		seedNetworkAGame(t, db, fmt.Sprintf("AN-%02d", i), "home", "away")
	}
	for i := 0; i < 4; i++ {
		seedFeedCGame(t, db, fmt.Sprintf("FC-%02d", i), "home", "away")
	}

	all, err := repo.FindUnmapped(ctx, nil, 1000, 0)
	if err != nil {
		t.Fatalf("全量查询: %v", err)
	}
	if len(all) != 11 {
		t.Fatalf("全量候选数 = %d", len(all))
	}

	const pageSize = 3
	paged := map[string]int{}
	total := 0
	for offset := 0; ; {
		page, err := repo.FindUnmapped(ctx, nil, pageSize, offset)
		if err != nil {
			t.Fatalf("翻页 offset=%d: %v", offset, err)
		}
		for _, c := range page {
			paged[string(c.Source)+"/"+c.ExternalID]++
			total++
		}
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}

	if total != len(all) {
		t.Fatalf("翻页总数 %d != 全量 %d", total, len(all))
	}
	for key, n := range paged {
		if n != 1 {
			t.Fatalf("候选 %s 出现 %d 次", key, n)
		}
	}
	for _, c := range all {
		if paged[string(c.Source)+"/"+c.ExternalID] != 1 {
			t.Fatalf("翻页遗漏候选 %s/%s", c.Source, c.ExternalID)
		}
	}
}

func TestDiscovery_Validation(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDiscoveryRepository(db, testutil.Logger(t))
	ctx := context.Background()

	if _, err := repo.FindUnmapped(ctx, nil, -1, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("负 pageSize 应返回 ErrInvalidArgument，实际 %v", err)
	}
	if _, err := repo.FindUnmapped(ctx, nil, 10, -1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("负 offset 应返回 ErrInvalidArgument，实际 %v", err)
	}
	bad := model.Source("x")
	if _, err := repo.FindUnmapped(ctx, &bad, 10, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("未知来源应返回 ErrInvalidArgument，实际 %v", err)
	}
}

func TestDiscovery_SourceCoverage(t *testing.T) {
	db := testutil.DB(t)
	repo := NewDiscoveryRepository(db, testutil.Logger(t))
	mappings := NewMappingRepository(db)
	ctx := context.Background()

	seedNetworkAGame(t, db, "AN-1", "h", "a")
	seedNetworkAGame(t, db, "AN-2", "h", "a")
	if err := mappings.UpsertMerge(ctx, newMapping("MLB-1", model.SourceNetworkA, "AN-1", 1.0)); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	coverage, err := repo.SourceCoverage(ctx)
	if err != nil {
		t.Fatalf("SourceCoverage: %v", err)
	}
	if len(coverage) != len(model.AllSources()) {
		t.Fatalf("覆盖率条目数 = %d", len(coverage))
	}
	byTag := map[string]*model.SourceCoverage{}
	for _, c := range coverage {
		byTag[c.Source] = c
	}
	na := byTag[string(model.SourceNetworkA)]
	if na.RawTotal != 2 || na.Mapped != 1 || na.CoveragePct != 50 {
		t.Fatalf("network_a 覆盖率 = %+v", na)
	}
	fd := byTag[string(model.SourceFeedD)]
	if fd.RawTotal != 0 || fd.CoveragePct != 0 {
		t.Fatalf("feed_d 覆盖率 = %+v", fd)
	}
}
