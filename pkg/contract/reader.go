package contract

import "context"

// BufferLabel 为来自内存/STDIN 输入的 bundle 展示标签。
const BufferLabel = "Buffer"

// CombinedLabel 为多 bundle 汇总报告的展示标签。
const CombinedLabel = "[combined]"

// BundleRef: 发现阶段的 {代码文件, map 文件} 配对。
// MapPath 为空表示“查找内联/引用 map，否则失败”。
type BundleRef struct {
	CodePath string `json:"codePath"`
	MapPath  string `json:"mapPath,omitempty"`
}

// Bundle: 已读入内存的 bundle。
// Map 为空表示未能定位任何 source map（由归属阶段报 ErrNoSourceMap）。
type Bundle struct {
	Label    string
	CodePath string
	Code     []byte
	MapPath  string
	Map      []byte
}

// Reader: bundle 输入源抽象（文件系统/STDIN）。
// 约束：
// 1) Discover 结果按 CodePath 升序，显式 map 时恰返回一对；
// 2) Load 负责定位 map（显式 > 相邻 .map > 内联/引用），但不解析 map；
// 3) 文件缺失时原样返回底层 os 错误；
// 4) 不在内部起并发。
type Reader interface {
	Discover(ctx context.Context, pattern, mapPath string) ([]BundleRef, error)
	Load(ctx context.Context, ref BundleRef) (Bundle, error)
}

// Decoder: 将 source map 文档解码为有序映射集合。
// 纯计算，不做 I/O；非法文档返回包装 ErrMapInvalid 的错误。
type Decoder interface {
	Decode(ctx context.Context, raw []byte) (*SourceMap, error)
}
