package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"smexplorer/pkg/contract"
)

// EnvPrefix 为环境变量覆盖的统一前缀。
const EnvPrefix = "SME_"

// DefaultFileNames 为未显式指定配置文件时在工作目录依次查找的文件名。
var DefaultFileNames = []string{"smexplorer.json", "smexplorer.yaml", "smexplorer.yml"}

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: runtime.NumCPU(),
		Format:      "table",
		Logging:     Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:  "fs",
			Decoder: "sourcemap",
			Writer:  "stdout",
		},
	}
}

// ResolvePath 决定配置文件路径：显式 > SME_CONFIG_FILE > 工作目录默认文件名。
// 均不存在时返回空串。
func ResolvePath(explicit string, getenv func(string) string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if getenv != nil {
		if p := strings.TrimSpace(getenv(EnvPrefix + "CONFIG_FILE")); p != "" {
			return p
		}
	}
	for _, name := range DefaultFileNames {
		if st, err := os.Stat(name); err == nil && !st.IsDir() {
			return name
		}
	}
	return ""
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSONC（允许注释与尾逗号）。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(raw, "yaml")
	default:
		return Parse(raw, "json")
	}
}

// Parse 解析原始配置文本（严格拒绝未知字段）。
// format 为 "yaml" 时先转为 JSON，再与 JSON 走同一条严格解码路径。
func Parse(raw []byte, format string) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, errors.New("config: empty document")
	}
	var doc []byte
	switch format {
	case "yaml":
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return cfg, fmt.Errorf("config: yaml: %w", err)
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return cfg, fmt.Errorf("config: yaml: %w", err)
		}
		doc = b
	default:
		doc = jsonc.ToJSON(raw)
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.MapPath != "" {
		out.MapPath = over.MapPath
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if s := strings.TrimSpace(over.Format); s != "" {
		out.Format = strings.ToLower(s)
	}
	if over.Output != "" {
		out.Output = over.Output
	}
	if over.OnlyMapped != nil {
		out.OnlyMapped = boolPtr(*over.OnlyMapped)
	}
	if over.NoRoot != nil {
		out.NoRoot = boolPtr(*over.NoRoot)
	}
	if over.SkipFailed != nil {
		out.SkipFailed = boolPtr(*over.SkipFailed)
	}
	// 规则整体替换，不拼接：来源越靠后越具体
	if len(over.Replace) > 0 {
		out.Replace = append([]contract.ReplaceRule(nil), over.Replace...)
	}
	if over.MetricsFile != "" {
		out.MetricsFile = over.MetricsFile
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Renderer) > 0 {
		m := make(map[string]json.RawMessage, len(out.Options.Renderer)+len(over.Options.Renderer))
		for k, v := range out.Options.Renderer {
			m[k] = v
		}
		for k, v := range over.Options.Renderer {
			m[k] = cloneRaw(v)
		}
		out.Options.Renderer = m
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SME_；集合之外的键忽略；无法解析的数值/布尔返回错误。
// 支持：INPUTS, MAP_PATH, CONCURRENCY, FORMAT, OUTPUT, ONLY_MAPPED, NO_ROOT, SKIP_FAILED,
// METRICS_FILE, LOG_LEVEL, LOG_DIR, COMPONENTS_{READER,DECODER,WRITER},
// OPTIONS_{READER,DECODER,WRITER}_JSON 以及 OPTIONS_RENDERER__<format>_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		key, val, ok := strings.Cut(kv, "=")
		if !ok || len(key) <= len(EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		tv := strings.TrimSpace(val)
		if tv == "" {
			// 空值视为未设置，避免 .env 模板中的空键清空配置
			continue
		}
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(tv)
		case "MAP_PATH":
			over.MapPath = tv
		case "CONCURRENCY":
			n, err := strconv.Atoi(tv)
			if err != nil {
				return over, fmt.Errorf("config: %s: %w", key, err)
			}
			over.Concurrency = n
		case "FORMAT":
			over.Format = tv
		case "OUTPUT":
			over.Output = tv
		case "ONLY_MAPPED", "NO_ROOT", "SKIP_FAILED":
			b, err := strconv.ParseBool(tv)
			if err != nil {
				return over, fmt.Errorf("config: %s: %w", key, err)
			}
			switch nk {
			case "ONLY_MAPPED":
				over.OnlyMapped = &b
			case "NO_ROOT":
				over.NoRoot = &b
			default:
				over.SkipFailed = &b
			}
		case "METRICS_FILE":
			over.MetricsFile = tv
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "LOG_DIR":
			over.Logging.Dir = tv
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_DECODER":
			over.Components.Decoder = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(tv)
		case "OPTIONS_DECODER_JSON":
			over.Options.Decoder = json.RawMessage(tv)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(tv)
		default:
			// OPTIONS_RENDERER__<format>_JSON
			if rest, ok := strings.CutPrefix(nk, "OPTIONS_RENDERER__"); ok {
				name, ok := strings.CutSuffix(rest, "_JSON")
				if !ok || name == "" {
					continue
				}
				if over.Options.Renderer == nil {
					over.Options.Renderer = map[string]json.RawMessage{}
				}
				over.Options.Renderer[strings.ToLower(name)] = json.RawMessage(tv)
			}
		}
	}
	return over, nil
}

func boolPtr(b bool) *bool { return &b }

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
