package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument 入参非法（空ID、未知数据源、负分页参数等），I/O 之前直接拒绝
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound 查询未命中，调用方视为"尚未解析"信号而非故障
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable 存储连接/超时类瞬时故障，仅在同步边界显式暴露
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCircuitOpen 熔断器打开期间拒绝调用
	ErrCircuitOpen = errors.New("circuit open")
)

// CircuitOpenError 熔断拒绝错误，携带最早可重试时间
type CircuitOpenError struct {
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("熔断器打开中，最早可于 %s 重试", e.RetryAt.Format(time.RFC3339))
}

// Is 支持 errors.Is(err, ErrCircuitOpen) 判定
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
