// Package attribution 将 source map 的稀疏位置映射还原为生成文本上连续的字节区间，
// 并按来源累计字节数。
//
// 规则：
//   - 偏移单位为字节；列号按 UTF-16 码元换算；
//   - 越界映射（行号超出、偏移 > 总长）跳过，不报错；
//   - 同一偏移上出现多条映射时，解码顺序中靠后的一条生效；
//   - 首条映射之前的前缀、以及无来源映射之后的区间计入未归属桶。
package attribution

import (
	"fmt"
	"sort"
	"strings"

	"smexplorer/pkg/contract"
)

// Attribute 计算单个 bundle 的按来源字节数。
// sm 为 nil 时返回 ErrNoSourceMap；label 用于退化判定与错误信息。
func Attribute(code []byte, sm *contract.SourceMap, label string) (contract.BundleSizes, error) {
	if sm == nil {
		return contract.BundleSizes{}, fmt.Errorf("%s: %w", label, contract.ErrNoSourceMap)
	}
	if err := checkDegenerate(sm, label); err != nil {
		return contract.BundleSizes{}, err
	}
	ranges := Ranges(code, sm.Mappings)
	total := int64(len(code))
	if err := contract.ValidateRanges(ranges, total); err != nil {
		return contract.BundleSizes{}, fmt.Errorf("%s: %w", label, err)
	}
	out := contract.BundleSizes{
		Label:      label,
		Files:      map[string]int64{contract.UnmappedKey: 0},
		TotalBytes: total,
	}
	for _, r := range ranges {
		out.Files[r.Key()] += r.Len()
		if !r.HasSource {
			out.UnmappedBytes += r.Len()
		}
	}
	return out, nil
}

// Entries 将解码映射换算为按偏移升序、同偏移去重（后者生效）的 MappingEntry。
func Entries(code []byte, mappings []contract.Mapping) []contract.MappingEntry {
	if len(mappings) == 0 {
		return nil
	}
	lt := newLineTable(code)
	total := int64(len(code))
	entries := make([]contract.MappingEntry, 0, len(mappings))
	for _, m := range mappings {
		off, ok := lt.offset(m.GeneratedLine, m.GeneratedColumn)
		if !ok || off < 0 || off > total {
			continue
		}
		entries = append(entries, contract.MappingEntry{Offset: off, Source: m.Source, HasSource: m.HasSource})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })
	// 同偏移仅保留最后一条
	w := 0
	for i := range entries {
		if w > 0 && entries[w-1].Offset == entries[i].Offset {
			entries[w-1] = entries[i]
			continue
		}
		entries[w] = entries[i]
		w++
	}
	return entries[:w]
}

// Ranges 返回划分 [0,len(code)) 的区间序列；相邻同源区间会合并。
func Ranges(code []byte, mappings []contract.Mapping) []contract.SizeRange {
	total := int64(len(code))
	if total == 0 {
		return nil
	}
	entries := Entries(code, mappings)
	ranges := make([]contract.SizeRange, 0, len(entries)+1)
	push := func(start, end int64, source string, has bool) {
		if end <= start {
			return
		}
		if n := len(ranges); n > 0 {
			last := &ranges[n-1]
			if last.HasSource == has && last.Source == source && last.End == start {
				last.End = end
				return
			}
		}
		ranges = append(ranges, contract.SizeRange{Start: start, End: end, Source: source, HasSource: has})
	}
	if len(entries) == 0 {
		push(0, total, "", false)
		return ranges
	}
	push(0, entries[0].Offset, "", false)
	for i, e := range entries {
		end := total
		if i+1 < len(entries) {
			end = entries[i+1].Offset
		}
		src := e.Source
		if !e.HasSource {
			src = ""
		}
		push(e.Offset, end, src, e.HasSource)
	}
	return ranges
}

// checkDegenerate: 仅含一个来源、且该来源即 bundle 自身（或 map 自述的 file）时报错。
// 位于其他目录的同名来源（如 ../src/index.js 之于 dist/index.js）不算。
func checkDegenerate(sm *contract.SourceMap, label string) error {
	var only string
	n := 0
	seen := map[string]struct{}{}
	for _, m := range sm.Mappings {
		if !m.HasSource {
			continue
		}
		if _, ok := seen[m.Source]; ok {
			continue
		}
		seen[m.Source] = struct{}{}
		only = m.Source
		n++
		if n > 1 {
			return nil
		}
	}
	if n == 0 && len(sm.Sources) == 1 {
		only, n = sm.Sources[0], 1
	}
	if n != 1 {
		return nil
	}
	if only == "" {
		return nil
	}
	src := cleanName(only)
	for _, self := range []string{label, sm.File} {
		if self == "" {
			continue
		}
		// 无目录部分时按文件名比较；带目录时须与 bundle 路径整体一致
		if src == cleanName(self) || (!strings.Contains(src, "/") && src == contract.BaseName(self)) {
			return &contract.DegenerateSourceMapError{Bundle: label, Source: only}
		}
	}
	return nil
}

// cleanName 统一分隔符并去掉 "./" 前缀。
func cleanName(p string) string {
	return strings.TrimPrefix(string(contract.NormalizeFileID(p)), "./")
}
