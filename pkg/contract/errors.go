package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrNoSourceMap: 无法找到内联、相邻或显式指定的 source map。
	ErrNoSourceMap = errors.New("unable to find a source map")
	// ErrDegenerateSourceMap: source map 仅含一个来源且该来源即 bundle 自身。
	ErrDegenerateSourceMap = errors.New("degenerate source map")
	// ErrMapInvalid: source map 文档结构或 mappings 编码非法。
	ErrMapInvalid = errors.New("source map invalid")
	// ErrInvalidUsage: 调用参数组合非法（例如 --replace 未与 --with 成对）。
	ErrInvalidUsage = errors.New("invalid usage")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// DegenerateSourceMapError 携带出问题的 bundle 与来源名。
type DegenerateSourceMapError struct {
	Bundle string
	Source string
}

func (e *DegenerateSourceMapError) Error() string {
	return fmt.Sprintf("%s: your source map only contains one source (%s)\n"+
		"This typically means that your source map doesn't map all the way back to the original sources.\n"+
		"This can happen if you use browserify+uglifyjs, for example, and don't set the --in-source-map flag to uglify.",
		e.Bundle, e.Source)
}

func (e *DegenerateSourceMapError) Unwrap() error { return ErrDegenerateSourceMap }
