package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为当前目录下全部 .js（"*.js"），报告输出到终端表格；
// - 组件名采用仓库内置实现；
// - 选项给出全部键与安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	f := false
	cfg := Config{
		Inputs:      []string{"*.js"},
		Concurrency: d.Concurrency,
		Format:      d.Format,
		OnlyMapped:  &f,
		NoRoot:      &f,
		SkipFailed:  &f,
		Logging:     d.Logging,
		Components:  d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "extensions": [".js", ".mjs", ".cjs", ".jsx"],
  "exclude_dir_names": [".git", "node_modules"]
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "ignore_source_root": false
}`)
	cfg.Options.Writer = json.RawMessage(`{}`)
	cfg.Options.Renderer = map[string]json.RawMessage{
		"table": json.RawMessage(`{"limit": 0, "raw": false}`),
		"json":  json.RawMessage(`{"indent": 2, "full": false}`),
		"tsv":   json.RawMessage(`{}`),
		"html":  json.RawMessage(`{"template": ""}`),
	}
	return cfg
}

// WriteTemplate 在 dir 下生成 smexplorer.json 与 .env 模板；已存在的文件跳过，不覆盖。
// 返回实际写出的文件路径。
func WriteTemplate(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return nil, err
	}
	var written []string
	for _, f := range []struct {
		name string
		body []byte
	}{
		{DefaultFileNames[0], append(b, '\n')},
		{".env", []byte(dotEnvTemplate())},
	} {
		p := filepath.Join(dir, f.name)
		ok, err := writeNew(p, f.body)
		if err != nil {
			return written, err
		}
		if ok {
			written = append(written, p)
		}
	}
	return written, nil
}

// writeNew 仅在文件不存在时创建；已存在返回 (false, nil)。
func writeNew(path string, body []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func dotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# smexplorer .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "MAP_PATH", "CONCURRENCY", "FORMAT", "OUTPUT", "ONLY_MAPPED", "NO_ROOT", "SKIP_FAILED", "METRICS_FILE"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 日志\n")
	b.WriteString(EnvPrefix + "LOG_LEVEL=\n")
	b.WriteString(EnvPrefix + "LOG_DIR=\n")

	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"READER", "DECODER", "WRITER"} {
		b.WriteString(EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	for _, k := range []string{"READER", "DECODER", "WRITER"} {
		b.WriteString(EnvPrefix + "OPTIONS_" + k + "_JSON=\n")
	}
	b.WriteString(EnvPrefix + "OPTIONS_RENDERER__TABLE_JSON=\n")
	return b.String()
}
