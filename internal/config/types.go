package config

import (
	"encoding/json"

	"smexplorer/pkg/contract"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 文件使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// MapPath: 显式 source map；仅在单个输入时有效。
	MapPath     string `json:"map_path"`
	Concurrency int    `json:"concurrency"`
	// Format: table|json|tsv|html。
	Format string `json:"format"`
	// Output: 报告文件路径；为空时交给 components.writer（默认 stdout）。
	Output string `json:"output"`

	// 三态布尔：nil 表示未设置，Merge 时不覆盖。
	OnlyMapped *bool `json:"only_mapped"`
	NoRoot     *bool `json:"no_root"`
	SkipFailed *bool `json:"skip_failed"`

	// Replace: 有序替换规则；非空时关闭公共前缀剥离。
	Replace     []contract.ReplaceRule `json:"replace"`
	MetricsFile string                 `json:"metrics_file"`
	Logging     Logging                `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
// 渲染器由 Format 决定，不在此处选择。
type Components struct {
	Reader  string `json:"reader"`
	Decoder string `json:"decoder"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
// Renderer 以格式名为键。
type Options struct {
	Reader   json.RawMessage            `json:"reader"`
	Decoder  json.RawMessage            `json:"decoder"`
	Writer   json.RawMessage            `json:"writer"`
	Renderer map[string]json.RawMessage `json:"renderer"`
}
