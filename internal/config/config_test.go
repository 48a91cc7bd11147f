package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"smexplorer/pkg/contract"
)

// 解析带注释与尾逗号的 JSON 配置
func TestLoadFileJSONC(t *testing.T) {
	cfg, err := LoadFile("../../testdata/config/basic.json")
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(cfg.Inputs) != 2 || cfg.Format != "json" || cfg.Concurrency != 2 {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if cfg.OnlyMapped == nil || !*cfg.OnlyMapped || cfg.NoRoot != nil {
		t.Fatalf("三态布尔错误: %+v", cfg)
	}
	want := contract.ReplaceRule{Pattern: "webpack:///", With: "", Literal: true}
	if len(cfg.Replace) != 1 || cfg.Replace[0] != want {
		t.Fatalf("replace 规则错误: %+v", cfg.Replace)
	}
	if string(cfg.Options.Renderer["json"]) == "" {
		t.Fatalf("renderer options 丢失")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	cfg, err := LoadFile("../../testdata/config/basic.yaml")
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.MapPath != "dist/app.js.map" || cfg.Format != "html" || cfg.Output != "out/report.html" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if cfg.NoRoot == nil || !*cfg.NoRoot || cfg.SkipFailed == nil || !*cfg.SkipFailed {
		t.Fatalf("布尔字段错误: %+v", cfg)
	}
	cfg = Merge(Defaults(), cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
}

// 含非法字段：JSON 与 YAML 同样拒绝
func TestParseUnknown(t *testing.T) {
	if _, err := Parse([]byte(`{"unknown":1}`), "json"); err == nil {
		t.Fatalf("JSON 应当返回错误")
	}
	if _, err := Parse([]byte("unknown: 1\n"), "yaml"); err == nil {
		t.Fatalf("YAML 应当返回错误")
	}
	if _, err := Parse([]byte("  \n"), "json"); err == nil {
		t.Fatalf("空文档应当返回错误")
	}
}

func TestEnvOverlay(t *testing.T) {
	env := []string{
		"SME_INPUTS=a.js, b.js",
		"SME_CONCURRENCY=3",
		"SME_FORMAT=tsv",
		"SME_ONLY_MAPPED=true",
		"SME_NO_ROOT=",
		"SME_COMPONENTS_WRITER=fs",
		"SME_OPTIONS_RENDERER__JSON_JSON={\"indent\":4}",
		"OTHER_FORMAT=json",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if over.Format != "tsv" || over.Concurrency != 3 || len(over.Inputs) != 2 || over.Inputs[1] != "b.js" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if over.OnlyMapped == nil || !*over.OnlyMapped {
		t.Fatalf("ONLY_MAPPED 未生效")
	}
	if over.NoRoot != nil {
		t.Fatalf("空值不应覆盖")
	}
	if over.Components.Writer != "fs" || string(over.Options.Renderer["json"]) != `{"indent":4}` {
		t.Fatalf("组件/选项覆盖错误: %+v", over)
	}

	if _, err := EnvOverlay([]string{"SME_CONCURRENCY=many"}); err == nil {
		t.Fatal("非法数值应失败")
	}
	if _, err := EnvOverlay([]string{"SME_SKIP_FAILED=maybe"}); err == nil {
		t.Fatal("非法布尔应失败")
	}
}

// 合并：后者覆盖前者，nil 布尔不覆盖
func TestMerge(t *testing.T) {
	yes, no := true, false
	base := Defaults()
	base.OnlyMapped = &yes
	base.Options.Renderer = map[string]json.RawMessage{}
	out := Merge(base, Config{Format: "JSON", NoRoot: &no, Replace: []contract.ReplaceRule{{Pattern: "a", With: "b"}}})
	if out.Format != "json" {
		t.Fatalf("format 应小写化: %q", out.Format)
	}
	if out.OnlyMapped == nil || !*out.OnlyMapped {
		t.Fatal("nil 不应覆盖 only_mapped")
	}
	if out.NoRoot == nil || *out.NoRoot {
		t.Fatal("显式 false 应覆盖")
	}
	if len(out.Replace) != 1 || out.Components.Reader != "fs" {
		t.Fatalf("合并结果错误: %+v", out)
	}
}

func TestValidateErrors(t *testing.T) {
	if err := Validate(Config{}); err == nil {
		t.Fatal("空配置应失败")
	}
	cases := map[string]func(*Config){
		"dash mixed":      func(c *Config) { c.Inputs = []string{"-", "a.js"} },
		"empty input":     func(c *Config) { c.Inputs = []string{" "} },
		"concurrency":     func(c *Config) { c.Concurrency = 0 },
		"format":          func(c *Config) { c.Format = "xml" },
		"renderer opts":   func(c *Config) { c.Options.Renderer = map[string]json.RawMessage{"xml": json.RawMessage(`{}`)} },
		"bad regexp":      func(c *Config) { c.Replace = []contract.ReplaceRule{{Pattern: "(", With: "x"}} },
		"empty pattern":   func(c *Config) { c.Replace = []contract.ReplaceRule{{With: "x"}} },
		"log level":       func(c *Config) { c.Logging.Level = "verbose" },
		"unknown reader":  func(c *Config) { c.Components.Reader = "s3" },
		"unknown decoder": func(c *Config) { c.Components.Decoder = "v2" },
		"unknown writer":  func(c *Config) { c.Components.Writer = "kafka" },
		"map multi": func(c *Config) {
			c.Inputs = []string{"a.js", "b.js"}
			c.MapPath = "a.js.map"
		},
	}
	for name, mut := range cases {
		cfg := DefaultTemplateConfig()
		mut(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: 应失败", name)
		}
	}
}

func TestAssemble(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.Inputs = []string{"dist/app.js"}
	cfg.Replace = []contract.ReplaceRule{{Pattern: "^src/", With: ""}}
	comp, set, err := Assemble(cfg)
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	if comp.Reader == nil || comp.Decoder == nil || comp.Renderer == nil || comp.Writer == nil {
		t.Fatalf("组件缺失: %+v", comp)
	}
	if !set.Path.StripCommonPrefix || len(set.Path.Replace) != 1 || set.OnlyMapped {
		t.Fatalf("settings 错误: %+v", set)
	}
	if set.Output != "report.txt" {
		t.Fatalf("默认工件名错误: %q", set.Output)
	}

	yes := true
	cfg.NoRoot = &yes
	cfg.Format = "html"
	cfg.Output = filepath.Join(t.TempDir(), "out", "r.html")
	_, set, err = Assemble(cfg)
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	if set.Path.StripCommonPrefix || set.Output != "r.html" {
		t.Fatalf("settings 错误: %+v", set)
	}

	cfg.Options.Renderer = map[string]json.RawMessage{"html": json.RawMessage(`{"nope":1}`)}
	if _, _, err := Assemble(cfg); err == nil || !strings.Contains(err.Error(), "html") {
		t.Fatalf("严格 options 应失败: %v", err)
	}
}

func TestWriteTemplate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "init")
	written, err := WriteTemplate(dir)
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("应写出两个文件: %v", written)
	}
	// 模板本身可解析、可校验
	cfg, err := LoadFile(filepath.Join(dir, "smexplorer.json"))
	if err != nil {
		t.Fatalf("模板解析失败: %v", err)
	}
	if _, _, err := Assemble(cfg); err != nil {
		t.Fatalf("模板装配失败: %v", err)
	}
	env, err := os.ReadFile(filepath.Join(dir, ".env"))
	if err != nil || !strings.Contains(string(env), "SME_FORMAT=") {
		t.Fatalf(".env 模板错误: %v %q", err, env)
	}

	// 再次生成不覆盖
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("KEEP=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	written, err = WriteTemplate(dir)
	if err != nil || len(written) != 0 {
		t.Fatalf("已存在文件应跳过: %v %v", written, err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, ".env"))
	if string(b) != "KEEP=1\n" {
		t.Fatal(".env 被覆盖")
	}
}

func TestResolvePath(t *testing.T) {
	env := map[string]string{"SME_CONFIG_FILE": "from-env.json"}
	getenv := func(k string) string { return env[k] }
	if p := ResolvePath("flag.json", getenv); p != "flag.json" {
		t.Fatalf("显式路径优先: %q", p)
	}
	if p := ResolvePath("", getenv); p != "from-env.json" {
		t.Fatalf("ENV 次之: %q", p)
	}
}
