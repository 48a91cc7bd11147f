package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sync/errgroup"

	"smexplorer/internal/aggregate"
	"smexplorer/internal/attribution"
	"smexplorer/internal/diag"
	"smexplorer/internal/pathnorm"
	"smexplorer/pkg/contract"
)

// - 单点并发：仅此层管理并发；原子组件均为同步、无内部并发。
// - 结果槽位：每个 bundle 写入自己的槽位，Wait 之后统一汇总，完成顺序不影响输出。
// - 首错取消：默认策略下任一 bundle 失败即取消整体并返回该错误；
//   SkipFailed 时失败 bundle 记录在 Result.Failed 中，不参与汇总。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader   contract.Reader
	Decoder  contract.Decoder
	Renderer contract.Renderer
	Writer   contract.Writer
}

// Settings 为运行期参数。
type Settings struct {
	// Inputs: bundle 路径/glob/"-"，按顺序展开。
	Inputs []string
	// MapPath: 显式 map 文件；仅允许单个输入。
	MapPath     string
	Concurrency int
	OnlyMapped  bool
	Path        pathnorm.Mode
	SkipFailed  bool
	// Output: 报告工件标识；为空时使用 "report"（stdout Writer 忽略该值）。
	Output contract.ArtifactID
	// MetricsFile: 非空时运行结束后写出 Prometheus 文本格式指标。
	MetricsFile string
}

// Failure 记录单个 bundle 的失败原因。
type Failure struct {
	Label string
	Err   error
}

// Result 为一次运行的产物。
type Result struct {
	Report contract.Report
	// Label: 报告标题（仅发现一个 bundle 时为其标签，否则为 "[combined]"，失败跳过不改变）。
	Label  string
	Failed []Failure
}

// slot: 单个 bundle 的处理结果。
type slot struct {
	label string
	sizes contract.BundleSizes
	err   error
}

type loadFunc func(ctx context.Context, i int) (contract.Bundle, error)

// Run 执行完整流程：发现 -> 读取 -> 解码 -> 归属 -> 汇总 -> 路径规范化 -> 渲染 -> 写出。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	if err := sanity(comp, set); err != nil {
		return Result{}, fmt.Errorf("sanity: %w", err)
	}
	if comp.Reader == nil {
		return Result{}, errors.New("sanity: pipeline: missing reader")
	}
	if len(set.Inputs) == 0 {
		return Result{}, fmt.Errorf("%w: no bundle given", contract.ErrInvalidUsage)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	refs, err := discover(ctx, comp.Reader, set, logger)
	if err != nil {
		return Result{}, err
	}
	labels := make([]string, len(refs))
	for i, r := range refs {
		labels[i] = refLabel(r)
	}
	load := func(ctx context.Context, i int) (contract.Bundle, error) {
		return comp.Reader.Load(ctx, refs[i])
	}
	return explore(ctx, comp, set, labels, load, logger)
}

// RunBundles 处理已在内存中的 bundle（例如 Buffer 输入），不经过 Reader。
func RunBundles(ctx context.Context, comp Components, set Settings, bundles []contract.Bundle, logger *diag.Logger) (Result, error) {
	if err := sanity(comp, set); err != nil {
		return Result{}, fmt.Errorf("sanity: %w", err)
	}
	if len(bundles) == 0 {
		return Result{}, fmt.Errorf("%w: no bundles", contract.ErrInvalidUsage)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	labels := make([]string, len(bundles))
	for i, b := range bundles {
		if b.Label == "" {
			bundles[i].Label = contract.BufferLabel
		}
		labels[i] = bundles[i].Label
	}
	load := func(_ context.Context, i int) (contract.Bundle, error) { return bundles[i], nil }
	return explore(ctx, comp, set, labels, load, logger)
}

// discover 依次展开全部输入，按 CodePath 去重并保持首次出现的顺序。
func discover(ctx context.Context, r contract.Reader, set Settings, logger *diag.Logger) ([]contract.BundleRef, error) {
	timer := logger.Start("reader", "discover")
	seen := make(map[string]struct{})
	var refs []contract.BundleRef
	for _, in := range set.Inputs {
		found, err := r.Discover(ctx, in, set.MapPath)
		if err != nil {
			code := diag.Classify(err)
			logger.ErrorWith("reader", string(code), "discover failed: "+err.Error(), timer.Since(), in)
			diag.IncOp("reader", "error", "error")
			diag.IncError("reader", string(code))
			return nil, err
		}
		if len(found) == 0 {
			err := fmt.Errorf("%s: no bundles matched: %w", in, fs.ErrNotExist)
			logger.ErrorWith("reader", string(diag.CodeNotFound), err.Error(), timer.Since(), in)
			diag.IncOp("reader", "error", "error")
			diag.IncError("reader", string(diag.CodeNotFound))
			return nil, err
		}
		for _, ref := range found {
			if _, dup := seen[ref.CodePath]; dup {
				continue
			}
			seen[ref.CodePath] = struct{}{}
			refs = append(refs, ref)
		}
	}
	timer.Finish("discovered", int64(len(refs)))
	diag.IncOp("reader", "finish", "success")
	return refs, nil
}

func explore(ctx context.Context, comp Components, set Settings, labels []string, load loadFunc, logger *diag.Logger) (Result, error) {
	t0 := time.Now()
	conc := set.Concurrency
	if conc < 1 {
		conc = 1
	}
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(conc, len(labels))
	}

	slots := make([]slot, len(labels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for i := range labels {
		i := i
		g.Go(func() error {
			s := processOne(gctx, comp, labels[i], func(ctx context.Context) (contract.Bundle, error) { return load(ctx, i) }, logger)
			slots[i] = s
			if s.err != nil && !set.SkipFailed {
				return s.err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	var (
		ok     []contract.BundleSizes
		failed []Failure
	)
	for _, s := range slots {
		if s.err != nil {
			failed = append(failed, Failure{Label: s.label, Err: s.err})
			continue
		}
		ok = append(ok, s.sizes)
	}
	if waitErr != nil {
		finishRun(false, 0, t0)
		return Result{Failed: failed}, waitErr
	}
	if err := ctx.Err(); err != nil {
		finishRun(false, 0, t0)
		return Result{Failed: failed}, err
	}
	if len(ok) == 0 {
		finishRun(false, 0, t0)
		// 全部失败时返回首个错误
		return Result{Failed: failed}, failed[0].Err
	}
	for _, f := range failed {
		logger.Warn("pipeline", string(diag.Classify(f.Err)), "skipped: "+f.Err.Error(), f.Label)
	}

	rep := aggregate.Aggregate(ok, aggregate.Options{OnlyMapped: set.OnlyMapped})
	atimer := logger.Start("aggregate", "merge")
	norm, err := pathnorm.Normalize(rep, set.Path)
	if err != nil {
		logger.Error("pathnorm", string(diag.Classify(err)), err.Error(), atimer.Since())
		finishRun(false, rep.TotalBytes, t0)
		return Result{Failed: failed}, err
	}
	atimer.Finish("merged", int64(len(norm.Files)))
	diag.SetSourceSizes(norm.Files)

	res := Result{Report: norm, Label: aggregate.Label(norm, len(labels)), Failed: failed}
	if err := emit(ctx, comp, set, res, logger); err != nil {
		finishRun(false, norm.TotalBytes, t0)
		return res, err
	}
	if set.MetricsFile != "" {
		if err := diag.DefaultMetrics().WriteTextfile(set.MetricsFile); err != nil {
			logger.Warn("metrics", string(diag.Classify(err)), "write metrics failed: "+err.Error(), "")
		}
	}
	finishRun(len(failed) == 0, norm.TotalBytes, t0)
	logger.InfoFinish("pipeline", "done", t0, int64(len(ok)))
	return res, nil
}

// processOne 读取、解码并归属单个 bundle，结果只写入返回的槽位。
func processOne(ctx context.Context, comp Components, label string, load func(context.Context) (contract.Bundle, error), logger *diag.Logger) slot {
	t0 := time.Now()
	if t := diag.GetTerminal(); t != nil {
		t.BundleStart(label)
	}
	fail := func(c, stage string, err error, since *time.Time) slot {
		code := diag.Classify(err)
		logger.ErrorWith(c, string(code), stage+" failed: "+err.Error(), since, label)
		diag.IncOp(c, "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError(c, string(code))
		}
		if t := diag.GetTerminal(); t != nil {
			t.BundleFinish(label, false, 0, time.Since(t0))
		}
		return slot{label: label, err: err}
	}

	rtimer := logger.StartWith("reader", "load", label)
	b, err := load(ctx)
	if err != nil {
		return fail("reader", "load", err, rtimer.Since())
	}
	rtimer.Finish("loaded", int64(len(b.Code)))
	diag.IncOp("reader", "finish", "success")
	if b.Label != "" {
		label = b.Label
	}

	var sm *contract.SourceMap
	if b.Map != nil {
		dtimer := logger.StartWith("decoder", "decode", label)
		sm, err = comp.Decoder.Decode(ctx, b.Map)
		if err != nil {
			return fail("decoder", "decode", fmt.Errorf("%s: %w", label, err), dtimer.Since())
		}
		dtimer.Finish("decoded", int64(len(sm.Mappings)))
		diag.IncOp("decoder", "finish", "success")
	}

	atimer := logger.StartWith("attribution", "attribute", label)
	sizes, err := attribution.Attribute(b.Code, sm, label)
	if err != nil {
		return fail("attribution", "attribute", err, atimer.Since())
	}
	atimer.Finish("attributed", int64(len(sizes.Files)))
	diag.IncOp("attribution", "finish", "success")
	diag.ObserveDuration("attribution", "bundle", time.Since(t0).Milliseconds())
	diag.SetBundleSize(label, sizes.TotalBytes, sizes.UnmappedBytes)
	if t := diag.GetTerminal(); t != nil {
		t.BundleFinish(label, true, sizes.TotalBytes, time.Since(t0))
	}
	return slot{label: label, sizes: sizes}
}

// emit 渲染并写出报告；未配置 Renderer/Writer 时跳过（库调用场景）。
func emit(ctx context.Context, comp Components, set Settings, res Result, logger *diag.Logger) error {
	if comp.Renderer == nil || comp.Writer == nil {
		return nil
	}
	rtimer := logger.Start("renderer", "render")
	r, err := comp.Renderer.Render(ctx, res.Label, res.Report)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("renderer", string(code), "render failed: "+err.Error(), rtimer.Since())
		diag.IncOp("renderer", "error", "error")
		return err
	}
	rtimer.Finish("rendered", int64(len(res.Report.Files)))
	diag.IncOp("renderer", "finish", "success")

	id := set.Output
	if id == "" {
		id = "report"
	}
	wtimer := logger.StartWith("writer", "write", string(id))
	if err := comp.Writer.Write(ctx, id, r); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed: "+err.Error(), wtimer.Since(), string(id))
		diag.IncOp("writer", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("writer", string(code))
		}
		return err
	}
	wtimer.Finish("written", 1)
	diag.IncOp("writer", "finish", "success")
	return nil
}

func finishRun(ok bool, total int64, t0 time.Time) {
	if t := diag.GetTerminal(); t != nil {
		t.RunFinish(ok, total, time.Since(t0))
	}
}

func refLabel(r contract.BundleRef) string {
	if r.CodePath == "-" {
		return contract.BufferLabel
	}
	return string(contract.NormalizeFileID(r.CodePath))
}

func sanity(c Components, s Settings) error {
	if c.Decoder == nil {
		return errors.New("pipeline: missing components")
	}
	if (c.Renderer == nil) != (c.Writer == nil) {
		return errors.New("pipeline: renderer and writer must be set together")
	}
	if s.MapPath != "" && len(s.Inputs) > 1 {
		return fmt.Errorf("%w: an explicit source map requires exactly one bundle", contract.ErrInvalidUsage)
	}
	return nil
}
