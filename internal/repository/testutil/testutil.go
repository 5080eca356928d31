package testutil

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"ScoreSync/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	pgOnce sync.Once
	pgDB   *gorm.DB
	pgErr  error

	logOnce sync.Once
	logg    *logrus.Logger

	sqliteSeq int64
)

// Logger 静默的测试日志器
func Logger(tb testing.TB) *logrus.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg = logrus.New()
		logg.SetOutput(io.Discard)
	})
	return logg
}

// DB 返回已迁移好的测试库。默认用进程内独立命名的 SQLite 内存库（每次调用全新），
// 设置 TEST_POSTGRES_DSN 后改连 PostgreSQL 跑集成测试（表在用例结束时清空）。
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return postgresDB(tb, dsn)
	}
	return sqliteDB(tb)
}

func sqliteDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := fmt.Sprintf("file:scoresync_test_%d?mode=memory&cache=shared", atomic.AddInt64(&sqliteSeq, 1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("get sql db: %v", err)
	}
	// 单连接串行化，避免共享内存库上的表锁竞争
	sqlDB.SetMaxOpenConns(1)
	if err := migrateAll(db); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	tb.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func postgresDB(tb testing.TB, dsn string) *gorm.DB {
	tb.Helper()
	pgOnce.Do(func() {
		pgDB, pgErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if pgErr != nil {
			return
		}
		pgErr = migrateAll(pgDB)
	})
	if pgErr != nil {
		tb.Fatalf("init test postgres: %v", pgErr)
	}
	cleanTables(tb, pgDB)
	tb.Cleanup(func() {
		cleanTables(tb, pgDB)
	})
	return pgDB
}

func migrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.NetworkAGame{},
		&model.NetworkBGame{},
		&model.FeedCGame{},
		&model.FeedDGame{},
		&model.GameIdentityMapping{},
		&model.GameOutcome{},
		&model.EnrichedGameResult{},
	)
}

func cleanTables(tb testing.TB, db *gorm.DB) {
	tb.Helper()
	tables := []string{
		"enriched_game_results",
		"game_outcomes",
		"game_identity_mappings",
		"network_a_games",
		"network_b_games",
		"feed_c_games",
		"feed_d_games",
	}
	for _, t := range tables {
		if err := db.Exec("DELETE FROM " + t).Error; err != nil {
			tb.Fatalf("clean table %s: %v", t, err)
		}
	}
}
