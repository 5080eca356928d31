package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ScoreSync/internal/config"
	"ScoreSync/internal/interfaces"
	"ScoreSync/internal/model"
	"ScoreSync/internal/repository"
	"ScoreSync/internal/repository/testutil"
	"ScoreSync/internal/service"

	"github.com/gin-gonic/gin"
)

type noopResolver struct{}

func (noopResolver) GetName() string { return "noop" }

func (noopResolver) Resolve(context.Context, *interfaces.MatchRequest) (*interfaces.MatchResult, error) {
	return &interfaces.MatchResult{Grade: interfaces.GradeNone}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	logger := testutil.Logger(t)
	cfg := &config.Config{
		Breaker: config.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute, SuccessThreshold: 3},
		Sync: config.SyncConfig{
			PageSize:                   100,
			SubBatchSize:               50,
			DiscoveryPageSize:          50,
			SuspectConfidenceThreshold: 0.8,
			SuspectStaleDays:           30,
		},
	}

	mappingRepo := repository.NewMappingRepository(db)
	discoveryRepo := repository.NewDiscoveryRepository(db, logger)
	outcomeRepo := repository.NewOutcomeRepository(db)
	breaker := service.NewStoreBreaker("test-api", &cfg.Breaker, logger)

	m := &model.GameIdentityMapping{
		CanonicalID:   "MLB-778899",
		HomeTeam:      "red sox",
		AwayTeam:      "yankees",
		GameDate:      time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
		PrimarySource: string(model.SourceNetworkA),
	}
	m.SetExternalID(model.SourceNetworkA, "AN-9001")
	m.ResolutionConfidence = 1.0
	if err := mappingRepo.UpsertMerge(context.Background(), m); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	resolution := service.NewResolutionService(mappingRepo, discoveryRepo, noopResolver{}, cfg, logger)
	sync := service.NewOutcomeSyncService(outcomeRepo, breaker, cfg, logger)
	stats := service.NewStatsService(mappingRepo, discoveryRepo, outcomeRepo, breaker, cfg, logger)

	r := gin.New()
	resolutionHandler := NewResolutionHandler(resolution, logger)
	r.GET("/api/resolve", resolutionHandler.ResolveHandler)
	r.POST("/api/resolve/bulk", resolutionHandler.ResolveBulkHandler)
	syncHandler := NewSyncHandler(sync, logger)
	r.POST("/api/sync/outcomes", syncHandler.SyncOutcomesHandler)
	r.POST("/api/sync/recent", syncHandler.SyncRecentHandler)
	statsHandler := NewStatsHandler(stats, logger)
	r.GET("/api/stats", statsHandler.StatsHandler)
	r.GET("/health", statsHandler.HealthHandler)
	return r
}

func do(t *testing.T, r *gin.Engine, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("响应体解析失败 (%d): %s", w.Code, w.Body.String())
	}
	return w, payload
}

func TestResolveEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w, payload := do(t, r, http.MethodGet, "/api/resolve?source=network_a&external_id=AN-9001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d: %v", w.Code, payload)
	}
	if payload["canonical_id"] != "MLB-778899" {
		t.Fatalf("canonical_id = %v", payload["canonical_id"])
	}

	w, _ = do(t, r, http.MethodGet, "/api/resolve?source=network_a&external_id=AN-404", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("未命中状态码 = %d", w.Code)
	}

	w, _ = do(t, r, http.MethodGet, "/api/resolve?source=bogus&external_id=AN-1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("未知来源状态码 = %d", w.Code)
	}
}

func TestResolveBulkEndpoint(t *testing.T) {
	r := newTestRouter(t)

	body := `{"pairs":[{"external_id":"AN-9001","source":"network_a"},{"external_id":"AN-404","source":"feed_c"}]}`
	w, payload := do(t, r, http.MethodPost, "/api/resolve/bulk", body)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d: %v", w.Code, payload)
	}
	if payload["total"] != float64(2) || payload["hits"] != float64(1) {
		t.Fatalf("汇总 = %v", payload)
	}
}

func TestSyncEndpointValidation(t *testing.T) {
	r := newTestRouter(t)

	w, _ := do(t, r, http.MethodPost, "/api/sync/recent?days_back=-5", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("负 days_back 状态码 = %d", w.Code)
	}

	w, payload := do(t, r, http.MethodPost, "/api/sync/outcomes?dry_run=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("dry-run 状态码 = %d: %v", w.Code, payload)
	}
}

func TestStatsAndHealthEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w, payload := do(t, r, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d: %v", w.Code, payload)
	}
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v", payload["data"])
	}
	breaker, ok := data["breaker"].(map[string]any)
	if !ok || breaker["state"] != "closed" {
		t.Fatalf("breaker = %v", data["breaker"])
	}

	w, payload = do(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("健康检查 = %d %v", w.Code, payload)
	}
}
