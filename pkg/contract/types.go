package contract

import "sort"

// UnmappedKey 为未归属字节桶在 Files 中的保留键。
const UnmappedKey = "<unmapped>"

// FileID: 逻辑文件标识（通常为路径，需规范化，跨平台一致）。
type FileID string

// Mapping: 解码器产出的单条映射记录（与 source map v3 语义一致）。
// - GeneratedLine 从 1 开始；GeneratedColumn 从 0 开始，单位为 UTF-16 码元；
// - HasSource=false 表示该位置之后的字节“无映射”。
type Mapping struct {
	GeneratedLine   int
	GeneratedColumn int
	Source          string
	HasSource       bool
	OriginalLine    int
	OriginalColumn  int
}

// SourceMap: 解码完成的 source map（最小必要字段）。
// 约束：Mappings 保持解码顺序（按生成位置升序，同位置保持原始次序）。
type SourceMap struct {
	// File: source map 自述的生成文件名（可为空）。
	File     string
	Sources  []string
	Mappings []Mapping
}

// MappingEntry: 生成文本中的绝对字节偏移 + 可选来源。
// 仅在单个 bundle 处理期间存在。
type MappingEntry struct {
	Offset    int64
	Source    string
	HasSource bool
}

// SizeRange: 半开区间 [Start,End) 及其归属来源。
// 同一 bundle 的全部区间恰好划分 [0,TotalBytes)。
type SizeRange struct {
	Start     int64
	End       int64
	Source    string
	HasSource bool
}

// Len 返回区间字节数。
func (r SizeRange) Len() int64 { return r.End - r.Start }

// Key 返回区间在 Files 中的累加键（无来源时为 UnmappedKey）。
func (r SizeRange) Key() string {
	if !r.HasSource {
		return UnmappedKey
	}
	return r.Source
}

// BundleSizes: 单个 bundle 的归属结果。
// 约束：Files 必含 UnmappedKey；sum(Files) == TotalBytes；Files[UnmappedKey] == UnmappedBytes。
type BundleSizes struct {
	Label         string
	Files         map[string]int64
	UnmappedBytes int64
	TotalBytes    int64
}

// Report: 跨 bundle 汇总结果。
// 约束：TotalBytes == UnmappedBytes + 除 UnmappedKey 外各项之和。
type Report struct {
	Files         map[string]int64 `json:"files"`
	UnmappedBytes int64            `json:"unmappedBytes"`
	TotalBytes    int64            `json:"totalBytes"`
	// Bundles: 参与汇总的 bundle 标签（输入顺序）。
	Bundles []string `json:"-"`
}

// MappedBytes 返回除未归属桶以外的字节总和。
func (r Report) MappedBytes() int64 {
	var n int64
	for k, v := range r.Files {
		if k == UnmappedKey {
			continue
		}
		n += v
	}
	return n
}

// ReplaceRule: 有序 find/replace 规则。
// Literal=true 时 Pattern 按字面量匹配；否则为正则表达式。
// Global=false 时每个键仅替换首个匹配。
type ReplaceRule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	With    string `json:"with" yaml:"with"`
	Literal bool   `json:"literal,omitempty" yaml:"literal,omitempty"`
	Global  bool   `json:"global,omitempty" yaml:"global,omitempty"`
}

// FileSize: 报告中的一行（来源 + 字节数）。
type FileSize struct {
	Source string `json:"source"`
	Bytes  int64  `json:"bytes"`
}

// Sorted 返回按字节数降序、同值按来源升序排列的行，供各渲染器共享确定性顺序。
func (r Report) Sorted() []FileSize {
	out := make([]FileSize, 0, len(r.Files))
	for k, v := range r.Files {
		out = append(out, FileSize{Source: k, Bytes: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Source < out[j].Source
	})
	return out
}
