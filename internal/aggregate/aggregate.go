package aggregate

import "smexplorer/pkg/contract"

// Options 汇总选项。
type Options struct {
	// OnlyMapped: 从 Files 中移除未归属桶条目；UnmappedBytes/TotalBytes 仍按全量计算。
	OnlyMapped bool
}

// Aggregate 合并多个 bundle 的按来源字节数。
// 合并满足交换律与结合律：输出与输入顺序无关（Bundles 标签除外，按输入顺序保留）。
func Aggregate(bundles []contract.BundleSizes, opts Options) contract.Report {
	rep := contract.Report{
		Files:   map[string]int64{contract.UnmappedKey: 0},
		Bundles: make([]string, 0, len(bundles)),
	}
	for _, b := range bundles {
		for src, n := range b.Files {
			if src == contract.UnmappedKey {
				continue
			}
			rep.Files[src] += n
		}
		rep.UnmappedBytes += b.UnmappedBytes
		rep.TotalBytes += b.TotalBytes
		rep.Bundles = append(rep.Bundles, b.Label)
	}
	rep.Files[contract.UnmappedKey] = rep.UnmappedBytes
	if opts.OnlyMapped {
		delete(rep.Files, contract.UnmappedKey)
	}
	return rep
}

// Label 返回报告的展示标签：仅发现一个 bundle 时为其标签，否则为 [combined]。
// discovered 为参与运行的 bundle 数（含被跳过的失败项）。
func Label(rep contract.Report, discovered int) string {
	if discovered == 1 && len(rep.Bundles) == 1 {
		return rep.Bundles[0]
	}
	return contract.CombinedLabel
}
