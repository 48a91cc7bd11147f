// Package pathnorm 对报告中的来源路径做展示层改写：去除公共前缀，或按规则查找替换。
// <unmapped> 键不参与改写与前缀计算。
package pathnorm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"smexplorer/pkg/contract"
)

// Mode 改写模式。Replace 非空时忽略 StripCommonPrefix（两者互斥，CLI 层会提前拒绝）。
type Mode struct {
	StripCommonPrefix bool
	Replace           []contract.ReplaceRule
}

// Rule 预编译后的替换规则。
type Rule struct {
	re     *regexp.Regexp
	with   string
	global bool
}

// Apply 对单个路径执行替换；非 Global 时仅替换首个匹配。
func (r Rule) Apply(s string) string {
	if r.global {
		return r.re.ReplaceAllString(s, r.with)
	}
	loc := r.re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(r.with))
	b.WriteString(s[:loc[0]])
	b.Write(r.re.ExpandString(nil, r.with, s, loc))
	b.WriteString(s[loc[1]:])
	return b.String()
}

// CompileRules 按顺序编译规则；非法表达式返回 ErrInvalidUsage。
func CompileRules(rules []contract.ReplaceRule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		pat := r.Pattern
		with := r.With
		if r.Literal {
			pat = regexp.QuoteMeta(pat)
			with = strings.ReplaceAll(with, "$", "$$")
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("%w: replace[%d] %q: %v", contract.ErrInvalidUsage, i, r.Pattern, err)
		}
		out = append(out, Rule{re: re, with: with, global: r.Global})
	}
	return out, nil
}

// CommonPathPrefix 返回按 '/' 对齐的公共前缀（含结尾分隔符）。
// 少于 2 个路径时返回空串。
func CommonPathPrefix(paths []string) string {
	if len(paths) < 2 {
		return ""
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	a := strings.Split(sorted[0], "/")
	b := strings.Split(sorted[len(sorted)-1], "/")
	// 末段是文件名，不参与前缀
	i := 0
	for i < len(a)-1 && i < len(b)-1 && a[i] == b[i] {
		i++
	}
	if i == 0 {
		return ""
	}
	return strings.Join(a[:i], "/") + "/"
}

// MapKeys 改写 map 的键；改写后冲突的键其值相加。
func MapKeys(files map[string]int64, fn func(string) string) map[string]int64 {
	out := make(map[string]int64, len(files))
	for k, v := range files {
		out[fn(k)] += v
	}
	return out
}

// Normalize 返回改写后的报告副本；输入报告不被修改。
func Normalize(rep contract.Report, mode Mode) (contract.Report, error) {
	out := rep
	if len(mode.Replace) > 0 {
		rules, err := CompileRules(mode.Replace)
		if err != nil {
			return rep, err
		}
		out.Files = MapKeys(rep.Files, func(k string) string {
			if k == contract.UnmappedKey {
				return k
			}
			for _, r := range rules {
				k = r.Apply(k)
			}
			return k
		})
		return out, nil
	}
	if !mode.StripCommonPrefix {
		out.Files = MapKeys(rep.Files, func(k string) string { return k })
		return out, nil
	}
	keys := make([]string, 0, len(rep.Files))
	for k := range rep.Files {
		if k != contract.UnmappedKey {
			keys = append(keys, k)
		}
	}
	prefix := CommonPathPrefix(keys)
	out.Files = MapKeys(rep.Files, func(k string) string {
		if k == contract.UnmappedKey || prefix == "" {
			return k
		}
		return strings.TrimPrefix(k, prefix)
	})
	return out, nil
}
