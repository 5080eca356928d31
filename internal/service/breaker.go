package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ScoreSync/internal/config"
	"ScoreSync/internal/errs"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// StoreBreaker 包住结果同步路径的全部存储操作（分页扫描、子批写入）。
// 连续失败达到阈值即打开，打开期间立即拒绝并携带最早可重试时间；
// recovery_timeout 后进入半开，连续成功 success_threshold 次才闭合，
// 半开中任一失败立刻回到打开。计数内部由 gobreaker 互斥保护，
// 多个同步任务可安全共享同一实例。热路径 resolve 查询不走熔断。
type StoreBreaker struct {
	cb              *gobreaker.CircuitBreaker[any]
	recoveryTimeout time.Duration
	logger          *logrus.Logger

	mu       sync.Mutex
	openedAt time.Time
}

func NewStoreBreaker(name string, cfg *config.BreakerConfig, logger *logrus.Logger) *StoreBreaker {
	b := &StoreBreaker{
		recoveryTimeout: cfg.RecoveryTimeout,
		logger:          logger,
	}
	failureThreshold := cfg.FailureThreshold
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: name,
		// 半开下放行的试探请求数即闭合所需的连续成功数
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("熔断器状态变更")
			if to == gobreaker.StateOpen {
				b.mu.Lock()
				b.openedAt = time.Now()
				b.mu.Unlock()
			}
		},
	})
	return b
}

// Do 执行一次受熔断保护的存储操作。打开态/半开超额的拒绝转成
// *errs.CircuitOpenError，其余错误原样透传（并计入失败）。
func (b *StoreBreaker) Do(op string, fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			retryAt := b.retryAt()
			b.logger.WithFields(logrus.Fields{
				"op":       op,
				"retry_at": retryAt.Format(time.RFC3339),
			}).Warn("熔断器拒绝存储操作")
			return nil, &errs.CircuitOpenError{RetryAt: retryAt}
		}
		return nil, err
	}
	return v, nil
}

// breakerResult 把 Do 的 any 结果断言回具体类型
func breakerResult[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("熔断结果类型断言失败: %T", v)
	}
	return typed, nil
}

// retryAt 最早可重试时间 = 打开时刻 + 恢复等待；已过期（半开超额拒绝）取当前时间
func (b *StoreBreaker) retryAt() time.Time {
	b.mu.Lock()
	openedAt := b.openedAt
	b.mu.Unlock()
	retry := openedAt.Add(b.recoveryTimeout)
	if now := time.Now(); retry.Before(now) {
		return now
	}
	return retry
}

// State 当前状态（closed/half-open/open），供管理端统计
func (b *StoreBreaker) State() string {
	return b.cb.State().String()
}

// Counts 当前计数快照
func (b *StoreBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
