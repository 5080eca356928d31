package statsfeed

import (
	"ScoreSync/internal/config"
	"ScoreSync/internal/utils/httpclient"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ScoreSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// Client statsfeed 模糊匹配服务的HTTP适配器。匹配算法在服务端，
// 这里只负责把请求参数编码上去、把 canonical_id + 置信等级取回来。
type Client struct {
	cfg        *config.ResolverConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewStatsfeedResolver(cfg *config.ResolverConfig, logger *logrus.Logger) interfaces.ResolverClient {
	return &Client{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

// GetName ========== 实现ResolverClient接口 ==========
func (c *Client) GetName() string {
	return "Statsfeed"
}

// matchResponse 匹配接口的响应体
type matchResponse struct {
	CanonicalID string `json:"canonical_id"`
	Confidence  string `json:"confidence"`
}

// Resolve 调用匹配接口。404 表示服务端无匹配，按 NONE 等级返回而非报错；
// 其余非 200 状态与网络故障原样上抛，由调用方决定跳过还是中止。
func (c *Client) Resolve(ctx context.Context, req *interfaces.MatchRequest) (*interfaces.MatchResult, error) {
	// 1. 拼接匹配接口URL与查询参数
	matchURL, err := url.Parse(c.cfg.BaseURL + c.cfg.MatchPath)
	if err != nil {
		return nil, fmt.Errorf("解析匹配接口地址失败: %w", err)
	}
	query := url.Values{}
	query.Set("external_id", req.ExternalID)
	query.Set("source", string(req.Source))
	query.Set("home_team", req.HomeTeam)
	query.Set("away_team", req.AwayTeam)
	query.Set("game_date", req.GameDate.Format("2006-01-02"))
	matchURL.RawQuery = query.Encode()

	// 2. 发起请求（带认证头）
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, matchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("构造匹配请求失败: %w", err)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("调用解析服务失败: %w", err)
	}
	defer resp.Body.Close()

	// 3. 404 = 服务端明确无匹配，不算错误
	if resp.StatusCode == http.StatusNotFound {
		return &interfaces.MatchResult{Grade: interfaces.GradeNone}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("解析服务返回异常状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// 4. 解析响应
	var payload matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析匹配响应失败: %w", err)
	}
	grade, err := interfaces.ParseGrade(payload.Confidence)
	if err != nil {
		return nil, fmt.Errorf("解析服务返回非法置信等级: %w", err)
	}
	if grade != interfaces.GradeNone && payload.CanonicalID == "" {
		return nil, fmt.Errorf("解析服务返回 %s 等级但缺少 canonical_id，external_id: %s", grade, req.ExternalID)
	}

	return &interfaces.MatchResult{
		CanonicalID: payload.CanonicalID,
		Grade:       grade,
	}, nil
}
