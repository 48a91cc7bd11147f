package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"

	"smexplorer/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// Extensions: 参与发现的代码文件扩展名（含点，大小写不敏感）。
	// 为空时使用默认 [".js",".mjs",".cjs",".jsx"]。
	Extensions []string `json:"extensions"`
	// ExcludeDirNames: 以目录作为输入时递归跳过这些目录名（基名完全匹配）。
	// 例如 [".git","node_modules"]。
	ExcludeDirNames []string `json:"exclude_dir_names"`
}

// DefaultExtensions 默认代码文件扩展名。
var DefaultExtensions = []string{".js", ".mjs", ".cjs", ".jsx"}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize int
	ext     map[string]struct{}
	// 以小写形式保存，比较时按小写基名匹配。
	excludeDir map[string]struct{}
	stdin      io.Reader
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	exts := DefaultExtensions
	if opts != nil && len(opts.Extensions) > 0 {
		exts = opts.Extensions
	}
	ext := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		ext[e] = struct{}{}
	}
	ex := make(map[string]struct{})
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	return &FileSystem{bufSize: b, ext: ext, excludeDir: ex, stdin: os.Stdin}
}

// WithStdin 替换 "-" 输入的来源（测试用）。
func (r *FileSystem) WithStdin(in io.Reader) *FileSystem {
	r.stdin = in
	return r
}

// Discover 将输入模式展开为 {代码, map} 配对。
// 显式 mapPath 时不展开，原样返回一对；"-" 表示 STDIN。
func (r *FileSystem) Discover(ctx context.Context, pattern, mapPath string) ([]contract.BundleRef, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if pattern == "" {
		return nil, fmt.Errorf("%w: no bundle given", contract.ErrInvalidUsage)
	}
	if mapPath != "" || pattern == "-" {
		return []contract.BundleRef{{CodePath: pattern, MapPath: mapPath}}, nil
	}

	var candidates []string
	if !hasMeta(pattern) {
		info, err := os.Stat(pattern)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			if err := r.walkDir(ctx, pattern, &candidates); err != nil {
				return nil, err
			}
		} else {
			// 显式给出的单个文件不做扩展名过滤
			return []contract.BundleRef{r.pair(pattern)}, nil
		}
	} else {
		matches, err := doublestar.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: glob %q: %v", contract.ErrInvalidUsage, pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				// 悬空链接/目录/设备：忽略
				continue
			}
			candidates = append(candidates, m)
		}
	}

	refs := make([]contract.BundleRef, 0, len(candidates))
	for _, p := range candidates {
		if !r.accept(p) {
			continue
		}
		refs = append(refs, r.pair(p))
	}
	// 稳定顺序：字典序
	sort.Slice(refs, func(i, j int) bool { return refs[i].CodePath < refs[j].CodePath })
	return refs, nil
}

// Load 读入代码与 map 原文。
// map 查找顺序：显式/相邻 MapPath > 内联 data URL > 引用的相对 map 文件。
func (r *FileSystem) Load(ctx context.Context, ref contract.BundleRef) (contract.Bundle, error) {
	select {
	case <-ctx.Done():
		return contract.Bundle{}, ctx.Err()
	default:
	}
	b := contract.Bundle{Label: string(contract.NormalizeFileID(ref.CodePath)), CodePath: ref.CodePath, MapPath: ref.MapPath}
	var err error
	if ref.CodePath == "-" {
		b.Label = contract.BufferLabel
		b.Code, err = io.ReadAll(bufio.NewReaderSize(r.stdin, r.bufSize))
	} else {
		b.Code, err = r.readFile(ref.CodePath)
	}
	if err != nil {
		return contract.Bundle{}, err
	}

	if ref.MapPath != "" {
		b.Map, err = r.readFile(ref.MapPath)
		if err != nil {
			return contract.Bundle{}, err
		}
		return b, nil
	}

	url := ExtractMapURL(b.Code)
	if url == "" {
		return b, nil
	}
	if IsDataURL(url) {
		b.Map, err = DecodeDataURL(url)
		if err != nil {
			return contract.Bundle{}, fmt.Errorf("%s: inline map: %w", b.Label, err)
		}
		return b, nil
	}
	if mp, ok := resolveMapFile(ref.CodePath, url); ok {
		b.Map, err = r.readFile(mp)
		if err != nil {
			return contract.Bundle{}, err
		}
		b.MapPath = mp
	}
	return b, nil
}

// accept: 扩展名在白名单中且不是 .map 文件。
func (r *FileSystem) accept(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	if ext == ".map" {
		return false
	}
	if len(r.ext) == 0 {
		return true
	}
	_, ok := r.ext[ext]
	return ok
}

// pair 为代码文件匹配相邻的 <file>.map。
func (r *FileSystem) pair(p string) contract.BundleRef {
	ref := contract.BundleRef{CodePath: p}
	if info, err := os.Stat(p + ".map"); err == nil && info.Mode().IsRegular() {
		ref.MapPath = p + ".map"
	}
	return ref
}

func (r *FileSystem) readFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(bufio.NewReaderSize(f, r.bufSize))
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, out *[]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
				continue
			}
			if err := r.walkDir(ctx, p, out); err != nil {
				return err
			}
			continue
		}
		// 允许指向常规文件的符号链接；其余非常规文件跳过
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		*out = append(*out, p)
	}
	return nil
}

// resolveMapFile 将引用的 map 地址解析为相对 bundle 目录的本地路径。
// 远程地址（含 scheme）不处理。
func resolveMapFile(codePath, url string) (string, bool) {
	if codePath == "-" || strings.Contains(url, "://") || strings.HasPrefix(url, "//") {
		return "", false
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	if url == "" {
		return "", false
	}
	if filepath.IsAbs(url) {
		return url, true
	}
	return filepath.Join(filepath.Dir(codePath), filepath.FromSlash(url)), true
}

func hasMeta(p string) bool { return strings.ContainsAny(p, "*?[{") }
