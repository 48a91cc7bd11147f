package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	cfgpkg "smexplorer/internal/config"
	"smexplorer/internal/diag"
	"smexplorer/internal/pipeline"
	"smexplorer/pkg/contract"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

var pipelineRun = pipeline.Run

// 退出码
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
	exitConfig  = 3
)

const errReplacePairing = "--replace flags must be paired with --with flags."

// 用法：smexplorer [flags] <bundle.js|glob|dir|-> [<bundle.js.map>]
// 多个位置参数时逐个展开并汇总为 [combined] 报告。
func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// cliFlags 为命令行旗标的解析结果。
type cliFlags struct {
	config      string
	json        bool
	tsv         bool
	html        bool
	table       bool
	onlyMapped  bool
	noRoot      bool
	replace     []string
	with        []string
	literal     bool
	global      bool
	output      string
	concurrency int
	skipFailed  bool
	logLevel    string
	logDir      string
	metricsFile string
	status      bool
	initDir     string
	version     bool
}

func newFlagSet(f *cliFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("smexplorer", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.BoolVar(&f.json, "json", false, "输出 JSON")
	fs.BoolVar(&f.tsv, "tsv", false, "输出 TSV")
	fs.BoolVar(&f.html, "html", false, "输出 HTML treemap 页面")
	fs.BoolVar(&f.table, "table", false, "输出终端表格（默认）")
	fs.BoolVarP(&f.onlyMapped, "only-mapped", "m", false, "从结果中排除 <unmapped>（合计不变）")
	fs.BoolVar(&f.noRoot, "noroot", false, "不剥离来源路径的公共前缀")
	fs.StringArrayVar(&f.replace, "replace", nil, "来源路径替换的匹配串（正则，可重复，须与 --with 成对）")
	fs.StringArrayVar(&f.with, "with", nil, "对应 --replace 的替换串（支持 $1 引用）")
	fs.BoolVar(&f.literal, "literal-replace", false, "--replace 按字面量匹配")
	fs.BoolVar(&f.global, "global-replace", false, "--replace 替换全部匹配（默认仅首个）")
	fs.StringVarP(&f.output, "output", "o", "", "报告写入文件（原子替换）；缺省写 stdout")
	fs.StringVar(&f.config, "config", "", "配置文件路径（JSON/JSONC/YAML）；缺省读取 ./smexplorer.json（若存在）")
	fs.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	fs.BoolVar(&f.skipFailed, "skip-failed", false, "跳过失败的 bundle 并汇总其余结果")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error")
	fs.StringVar(&f.logDir, "log-dir", "", "日志目录（默认 logs）")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "运行结束后写出 Prometheus 文本格式指标")
	fs.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	fs.StringVar(&f.initDir, "init-config", "", "在指定目录生成 smexplorer.json 与 .env 模板（不覆盖）；不带值时为当前目录")
	fs.Lookup("init-config").NoOptDefVal = "."
	fs.BoolVar(&f.version, "version", false, "打印版本并退出")
	return fs
}

func run(args []string, stderr io.Writer) int {
	start := time.Now()
	corrID := genCorrID()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load()

	var f cliFlags
	fs := newFlagSet(&f)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fprintf(stderr, "用法: smexplorer [flags] <bundle.js|glob|dir|-> [<bundle.js.map>]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		// ContinueOnError 下 pflag 不输出解析错误
		fprintf(stderr, "%v\n", err)
		fs.Usage()
		return exitUsage
	}
	if f.version {
		fprintf(stderr, "smexplorer %s\n", version)
		return exitOK
	}

	// --init-config: 生成模板并退出
	if f.initDir != "" {
		written, err := cfgpkg.WriteTemplate(strings.TrimSpace(f.initDir))
		if err != nil {
			fprintf(stderr, "生成默认配置失败: %v\n", err)
			return exitConfig
		}
		for _, p := range written {
			fprintf(stderr, "已生成 %s\n", p)
		}
		return exitOK
	}

	overCLI, err := cliOverlay(fs, &f)
	if err != nil {
		fprintf(stderr, "%v\n", err)
		return exitUsage
	}

	cfg := cfgpkg.Defaults()
	if path := cfgpkg.ResolvePath(f.config, os.Getenv); path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			fprintf(stderr, "配置解析失败: %v\n", err)
			return exitConfig
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(stderr, "环境变量解析失败: %v\n", err)
		return exitConfig
	}
	cfg = cfgpkg.Merge(cfg, overEnv)
	cfg = cfgpkg.Merge(cfg, overCLI)

	if len(cfg.Inputs) == 0 {
		fs.Usage()
		return exitUsage
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(stderr, cfg)
		return exitConfig
	}

	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return exitConfig
	}

	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count": fmt.Sprintf("%d", len(cfg.Inputs)),
		"concurrency":  fmt.Sprintf("%d", cfg.Concurrency),
		"format":       cfg.Format,
		"output":       cfg.Output,
		"reader":       cfg.Components.Reader,
		"decoder":      cfg.Components.Decoder,
		"writer":       cfg.Components.Writer,
		"replace":      fmt.Sprintf("%d", len(cfg.Replace)),
	})

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	diag.SetTerminal(diag.NewTerminal(os.Stderr, f.status))
	defer diag.SetTerminal(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := logger.Start("pipeline", "run")
	res, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "%s\n", explain(err))
		}
		if errors.Is(err, contract.ErrInvalidUsage) {
			return exitUsage
		}
		return exitRuntime
	}
	for _, fl := range res.Failed {
		fprintf(stderr, "跳过 %s: %s\n", fl.Label, explain(fl.Err))
	}
	t.Finish("run", int64(len(res.Report.Bundles)))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	return exitOK
}

// cliOverlay 将显式给出的旗标与位置参数转为 Config 覆盖。
// 未显式设置的布尔旗标保持 nil，不覆盖配置文件/ENV。
func cliOverlay(fs *pflag.FlagSet, f *cliFlags) (cfgpkg.Config, error) {
	var over cfgpkg.Config
	if len(f.replace) != len(f.with) {
		return over, errors.New(errReplacePairing)
	}
	n := 0
	for _, on := range []bool{f.json, f.tsv, f.html, f.table} {
		if on {
			n++
		}
	}
	if n > 1 {
		return over, errors.New("--json, --tsv, --html and --table are mutually exclusive")
	}
	switch {
	case f.json:
		over.Format = "json"
	case f.tsv:
		over.Format = "tsv"
	case f.html:
		over.Format = "html"
	case f.table:
		over.Format = "table"
	}
	for i := range f.replace {
		over.Replace = append(over.Replace, contract.ReplaceRule{
			Pattern: f.replace[i],
			With:    f.with[i],
			Literal: f.literal,
			Global:  f.global,
		})
	}
	if fs.Changed("only-mapped") {
		over.OnlyMapped = &f.onlyMapped
	}
	if fs.Changed("noroot") {
		over.NoRoot = &f.noRoot
	}
	if fs.Changed("skip-failed") {
		over.SkipFailed = &f.skipFailed
	}
	if f.concurrency > 0 {
		over.Concurrency = f.concurrency
	}
	over.Output = f.output
	over.MetricsFile = f.metricsFile
	over.Logging.Level = f.logLevel
	over.Logging.Dir = f.logDir

	args := fs.Args()
	// 恰好两个位置参数且第二个是 .map 时视为显式 map
	if len(args) == 2 && strings.HasSuffix(strings.ToLower(args[1]), ".map") {
		over.Inputs = []string{args[0]}
		over.MapPath = args[1]
	} else if len(args) > 0 {
		over.Inputs = args
	}
	return over, nil
}

// explain 为常见错误补充面向用户的说明。
func explain(err error) string {
	switch {
	case errors.Is(err, contract.ErrNoSourceMap):
		return err.Error() + "\nUnable to find a source map."
	default:
		return err.Error()
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fprintf(w, "有效配置:\n%s\n", b)
	return nil
}

func genCorrID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}
