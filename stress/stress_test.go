package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "smexplorer/internal/config"
	"smexplorer/internal/pipeline"
	"smexplorer/pkg/contract"
	"smexplorer/plugins/decoder/sourcemap"
)

// baseConfig 构造可运行的最小配置：glob 输入，JSON 报告写入 outDir。
func baseConfig(glob, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{glob}
	cfg.Format = "json"
	cfg.Components.Writer = "fs"
	cfg.Logging.Level = "error"
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false,"flat":true,"perm_file":0,"perm_dir":0,"buf_size":65536}`, outDir))
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(cfg cfgpkg.Config) (pipeline.Result, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

// writeBundles 生成 n 个 bundle 及相邻 map，每个 lines 行，来源在 modules 个模块间轮换。
func writeBundles(t *testing.T, dir string, n, lines, modules int) int64 {
	t.Helper()
	var total int64
	for b := 0; b < n; b++ {
		var code strings.Builder
		sm := &contract.SourceMap{File: fmt.Sprintf("chunk-%d.js", b)}
		for l := 0; l < lines; l++ {
			if l > 0 {
				code.WriteByte('\n')
			}
			code.WriteString("function f(){return 1}")
			sm.Mappings = append(sm.Mappings, contract.Mapping{
				GeneratedLine: l + 1,
				Source:        fmt.Sprintf("src/mod%03d.js", l%modules),
				HasSource:     true,
				OriginalLine:  l + 1,
			})
		}
		raw, err := sourcemap.Marshal(sm)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		p := filepath.Join(dir, sm.File)
		if err := os.WriteFile(p, []byte(code.String()), 0o644); err != nil {
			t.Fatalf("write bundle: %v", err)
		}
		if err := os.WriteFile(p+".map", raw, 0o644); err != nil {
			t.Fatalf("write map: %v", err)
		}
		total += int64(code.Len())
	}
	return total
}

// TestStress 在不同并发度下汇总大量 bundle 并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	dataDir := t.TempDir()
	want := writeBundles(t, dataDir, 64, 2000, 50)
	glob := filepath.Join(dataDir, "chunk-*.js")

	levels := []int{1, 8, 16, 32, 64}
	for _, conc := range levels {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			const runs = 5
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				cfg := baseConfig(glob, t.TempDir())
				cfg.Concurrency = conc
				start := time.Now()
				res, err := runPipeline(cfg)
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				if res.Report.TotalBytes != want || len(res.Report.Bundles) != 64 {
					t.Errorf("run %d: total %d bundles %d", i, res.Report.TotalBytes, len(res.Report.Bundles))
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("并发%d 成功率%.2f 平均%v 95%%延迟%v", conc, float64(successes)/float64(runs), avg, p95)
		})
	}
}
