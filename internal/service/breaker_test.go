package service

import (
	"errors"
	"testing"
	"time"

	"ScoreSync/internal/config"
	"ScoreSync/internal/errs"
	"ScoreSync/internal/repository/testutil"
)

func testBreaker(t *testing.T) *StoreBreaker {
	t.Helper()
	cfg := &config.BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  80 * time.Millisecond,
		SuccessThreshold: 2,
	}
	return NewStoreBreaker("test-store", cfg, testutil.Logger(t))
}

var errBoom = errors.New("boom")

func fail(b *StoreBreaker) error {
	_, err := b.Do("op", func() (any, error) { return nil, errBoom })
	return err
}

func succeed(b *StoreBreaker) error {
	_, err := b.Do("op", func() (any, error) { return "ok", nil })
	return err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := testBreaker(t)

	if b.State() != "closed" {
		t.Fatalf("初始状态 = %s", b.State())
	}

	// 阈值前的失败原样透传
	for i := 0; i < 3; i++ {
		if err := fail(b); !errors.Is(err, errBoom) {
			t.Fatalf("第 %d 次失败应透传原始错误，实际 %v", i+1, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("连续 3 次失败后状态 = %s，期望 open", b.State())
	}

	// 打开期间立即拒绝，携带最早可重试时间
	before := time.Now()
	err := fail(b)
	if !errors.Is(err, errs.ErrCircuitOpen) {
		t.Fatalf("打开态应返回 ErrCircuitOpen，实际 %v", err)
	}
	var coe *errs.CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("错误类型应为 *CircuitOpenError，实际 %T", err)
	}
	if coe.RetryAt.Before(before) {
		t.Fatalf("RetryAt %v 早于拒绝时刻 %v", coe.RetryAt, before)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := testBreaker(t)

	// 2 失败 + 1 成功 + 2 失败：从未达到连续 3 次，保持闭合
	_ = fail(b)
	_ = fail(b)
	if err := succeed(b); err != nil {
		t.Fatalf("成功调用报错: %v", err)
	}
	_ = fail(b)
	_ = fail(b)
	if b.State() != "closed" {
		t.Fatalf("状态 = %s，期望 closed", b.State())
	}
}

func TestBreaker_RecoveryCycle(t *testing.T) {
	b := testBreaker(t)

	for i := 0; i < 3; i++ {
		_ = fail(b)
	}
	if b.State() != "open" {
		t.Fatalf("状态 = %s，期望 open", b.State())
	}

	// 恢复窗口过后进入半开，连续 2 次成功闭合
	time.Sleep(120 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := succeed(b); err != nil {
			t.Fatalf("半开试探第 %d 次失败: %v", i+1, err)
		}
	}
	if b.State() != "closed" {
		t.Fatalf("恢复后状态 = %s，期望 closed", b.State())
	}
	if err := succeed(b); err != nil {
		t.Fatalf("闭合后调用失败: %v", err)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := testBreaker(t)

	for i := 0; i < 3; i++ {
		_ = fail(b)
	}
	time.Sleep(120 * time.Millisecond)

	// 半开中的任一失败立刻回到打开
	if err := fail(b); !errors.Is(err, errBoom) {
		t.Fatalf("半开试探失败应透传原始错误，实际 %v", err)
	}
	if b.State() != "open" {
		t.Fatalf("状态 = %s，期望 open", b.State())
	}
	if err := succeed(b); !errors.Is(err, errs.ErrCircuitOpen) {
		t.Fatalf("重新打开后应拒绝，实际 %v", err)
	}
}

func TestBreakerResult_TypeAssertion(t *testing.T) {
	b := testBreaker(t)

	got, err := breakerResult[string](b.Do("op", func() (any, error) { return "value", nil }))
	if err != nil || got != "value" {
		t.Fatalf("breakerResult = (%q, %v)", got, err)
	}

	if _, err := breakerResult[int](b.Do("op", func() (any, error) { return "not-int", nil })); err == nil {
		t.Fatal("类型不匹配应报错")
	}
}
