package diag

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"smexplorer/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeUsage      Code = "usage"
	CodeNoMap      Code = "no_source_map"
	CodeDegenerate Code = "degenerate_map"
	CodeProtocol   Code = "protocol"
	CodeInvariant  Code = "invariant"
	CodeCancel     Code = "cancel"
	CodeIO         Code = "io"
	CodeNotFound   Code = "not_found"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrInvalidUsage) {
		return CodeUsage
	}
	if errors.Is(err, contract.ErrNoSourceMap) {
		return CodeNoMap
	}
	if errors.Is(err, contract.ErrDegenerateSourceMap) {
		return CodeDegenerate
	}
	// 协议/解码
	if errors.Is(err, contract.ErrMapInvalid) {
		return CodeProtocol
	}
	// 不变量
	if errors.Is(err, contract.ErrInvariantViolation) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	if errors.Is(err, fs.ErrNotExist) {
		return CodeNotFound
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
