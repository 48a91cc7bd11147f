package testdata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "smexplorer/internal/config"
	"smexplorer/internal/pipeline"
	"smexplorer/pkg/contract"
	"smexplorer/plugins/decoder/sourcemap"
)

// line 将生成文本的一整行映射到 source。
type line struct {
	text   string
	source string
}

type mapMode int

const (
	adjacent mapMode = iota
	inline
	noMap
)

// writeBundle 生成 bundle 与其 map；返回 bundle 路径。
// 每行从第 0 列起映射到对应来源，source 为空时该行无映射。
func writeBundle(t *testing.T, dir, name string, lines []line, mode mapMode) string {
	t.Helper()
	var code strings.Builder
	var mappings []contract.Mapping
	for i, l := range lines {
		if i > 0 {
			code.WriteByte('\n')
		}
		code.WriteString(l.text)
		if l.source != "" {
			mappings = append(mappings, contract.Mapping{GeneratedLine: i + 1, Source: l.source, HasSource: true, OriginalLine: 1})
		}
	}
	raw, err := sourcemap.Marshal(&contract.SourceMap{File: name, Mappings: mappings})
	require.NoError(t, err)

	p := filepath.Join(dir, name)
	body := code.String()
	switch mode {
	case adjacent:
		require.NoError(t, os.WriteFile(p+".map", raw, 0o644))
	case inline:
		body += "\n//# sourceMappingURL=data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(raw)
	}
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// fooInline 对应三来源的 browserify 产物：prelude 5 字节，bar 9 字节，foo 2 字节 + 注释行。
func fooInline(t *testing.T, dir string) string {
	return writeBundle(t, dir, "foo.min.inline-map.js", []line{
		{"AAAA", "node_modules/browserify/node_modules/browser-pack/_prelude.js"},
		{"BBBBBBBB", "dist/bar.js"},
		{"CC", "dist/foo.js"},
	}, inline)
}

func baseConfig(inputs []string, format, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = inputs
	cfg.Format = format
	cfg.Concurrency = 2
	cfg.Components.Writer = "fs"
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + quote(outDir) + `}`)
	return cfg
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// runReport 装配并运行流水线，返回写出的报告文本。
func runReport(t *testing.T, cfg cfgpkg.Config) (pipeline.Result, string, error) {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg)
	require.NoError(t, err)
	res, err := pipeline.Run(context.Background(), comp, set, nil)
	if err != nil {
		return res, "", err
	}
	var dir struct {
		OutputDir string `json:"output_dir"`
	}
	require.NoError(t, json.Unmarshal(cfg.Options.Writer, &dir))
	b, err := os.ReadFile(filepath.Join(dir.OutputDir, string(set.Output)))
	require.NoError(t, err)
	return res, string(b), nil
}

func TestE2EFormats(t *testing.T) {
	dir := t.TempDir()
	bundle := fooInline(t, dir)
	out := filepath.Join(dir, "out")

	// 第三行 "CC" 之后的换行与注释行同属 foo.js
	commentLen := int64(len("\n//# sourceMappingURL=data:application/json;charset=utf-8;base64,"))
	info, err := os.Stat(bundle)
	require.NoError(t, err)
	fooBytes := info.Size() - 5 - 9
	assert.Greater(t, fooBytes, commentLen)

	_, got, err := runReport(t, baseConfig([]string{bundle}, "json", out))
	require.NoError(t, err)
	assert.JSONEq(t, `{
  "node_modules/browserify/node_modules/browser-pack/_prelude.js": 5,
  "dist/bar.js": 9,
  "dist/foo.js": `+jsonInt(fooBytes)+`,
  "<unmapped>": 0
}`, got)
	assert.True(t, strings.HasPrefix(got, "{\n  \"dist/foo.js\": "), got)
	assert.True(t, strings.HasSuffix(got, "}\n"))

	_, got, err = runReport(t, baseConfig([]string{bundle}, "tsv", out))
	require.NoError(t, err)
	assert.Equal(t, "Source\tSize\n"+
		jsonInt(fooBytes)+"\tdist/foo.js\n"+
		"9\tdist/bar.js\n"+
		"5\tnode_modules/browserify/node_modules/browser-pack/_prelude.js\n"+
		"0\t<unmapped>\n", got)

	_, got, err = runReport(t, baseConfig([]string{bundle}, "html", out))
	require.NoError(t, err)
	assert.Contains(t, got, "<title>"+filepath.ToSlash(bundle)+" - Source Map Explorer</title>")
	assert.Contains(t, got, `"bar.js`)

	_, got, err = runReport(t, baseConfig([]string{bundle}, "table", out))
	require.NoError(t, err)
	assert.Contains(t, got, "dist/bar.js")
	assert.Contains(t, got, "unmapped")
}

func TestE2ECombined(t *testing.T) {
	dir := t.TempDir()
	a := writeBundle(t, dir, "foo.1234.js", []line{{"xxxx", "src/a.js"}, {"yy", "src/shared.js"}}, adjacent)
	b := writeBundle(t, dir, "foo.min.js", []line{{"zzz", "src/shared.js"}, {"w", "src/b.js"}}, adjacent)
	writeBundle(t, dir, "foo.min.no-map.js", []line{{"nnn", ""}}, noMap)
	out := filepath.Join(dir, "out")

	res, got, err := runReport(t, baseConfig([]string{filepath.Join(dir, "foo.1234.js"), filepath.Join(dir, "foo.min.js")}, "html", out))
	require.NoError(t, err)
	assert.Equal(t, contract.CombinedLabel, res.Label)
	assert.Contains(t, got, "<title>[combined] - Source Map Explorer</title>")
	// 公共前缀 src/ 被剥离；跨 bundle 同名来源求和
	assert.Equal(t, map[string]int64{"a.js": 5, "shared.js": 6, "b.js": 1, contract.UnmappedKey: 0}, res.Report.Files)
	assert.Equal(t, []string{filepath.ToSlash(a), filepath.ToSlash(b)}, res.Report.Bundles)

	// glob 含无 map 的 bundle：默认失败，skip_failed 时跳过
	glob := filepath.Join(dir, "foo.*.js")
	_, _, err = runReport(t, baseConfig([]string{glob}, "json", out))
	require.ErrorIs(t, err, contract.ErrNoSourceMap)

	cfg := baseConfig([]string{glob}, "json", out)
	yes := true
	cfg.SkipFailed = &yes
	res, _, err = runReport(t, cfg)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "foo.min.no-map.js")), res.Failed[0].Label)
	assert.Equal(t, int64(12), res.Report.TotalBytes)
}

func TestE2EOnlyMappedReplace(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir, "foo.min.no-map.js", []line{
		{"/* banner */", ""},
		{"bar()", "dist/bar.js"},
		{"foo()", "dist/foo.js"},
	}, noMap)
	writeBundle(t, dir, "separated.js", []line{
		{"/* banner */", ""},
		{"bar()", "dist/bar.js"},
		{"foo()", "dist/foo.js"},
	}, adjacent)
	mapPath := filepath.Join(dir, "separated.js.map")

	cfg := baseConfig([]string{bundle}, "json", filepath.Join(dir, "out"))
	cfg.MapPath = mapPath
	yes := true
	cfg.OnlyMapped = &yes
	cfg.Replace = []contract.ReplaceRule{{Pattern: "dist", With: "hello"}}
	res, got, err := runReport(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"hello/bar.js": 6, "hello/foo.js": 5}, res.Report.Files)
	assert.Equal(t, int64(13), res.Report.UnmappedBytes)
	assert.Equal(t, int64(24), res.Report.TotalBytes)
	assert.Equal(t, "{\n  \"hello/bar.js\": 6,\n  \"hello/foo.js\": 5\n}\n", got)
}

func TestE2EErrors(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	// 文件缺失
	_, _, err := runReport(t, baseConfig([]string{filepath.Join(dir, "missing.js")}, "json", out))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "no such file or directory")

	bundle := fooInline(t, dir)
	cfg := baseConfig([]string{bundle}, "json", out)
	cfg.MapPath = filepath.Join(dir, "missing.js.map")
	_, _, err = runReport(t, cfg)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// 无 map
	plain := writeBundle(t, dir, "plain.js", []line{{"x", ""}}, noMap)
	_, _, err = runReport(t, baseConfig([]string{plain}, "json", out))
	assert.ErrorIs(t, err, contract.ErrNoSourceMap)

	// 退化 map：唯一来源即 bundle 自身
	degenerate := writeBundle(t, dir, "foo.min.js", []line{{"a", "foo.min.js"}, {"b", "foo.min.js"}}, adjacent)
	_, _, err = runReport(t, baseConfig([]string{degenerate}, "json", out))
	require.ErrorIs(t, err, contract.ErrDegenerateSourceMap)
	assert.Contains(t, err.Error(), "only contains one source (foo.min.js)")

	// 非法 map
	bad := filepath.Join(dir, "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(bad+".map", []byte(`{"version":3,"sources":["a.js"],"mappings":"!!"}`), 0o644))
	_, _, err = runReport(t, baseConfig([]string{bad}, "json", out))
	assert.ErrorIs(t, err, contract.ErrMapInvalid)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
