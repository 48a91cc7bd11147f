package html

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"smexplorer/pkg/contract"
)

//go:embed report.html.tmpl
var defaultTemplate string

// Options HTML 渲染选项。
type Options struct {
	// Template: 自定义模板文件路径；为空时使用内置模板。
	Template string `json:"template"`
}

// Node: 按路径分段构造的尺寸树，供页面脚本绘制。
type Node struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Children []*Node `json:"children,omitempty"`
}

type page struct {
	Label    string
	Total    string
	Mapped   string
	Unmapped string
	Bundles  []string
	Tree     *Node
}

// Renderer 输出自包含的 HTML 报告页。
type Renderer struct {
	tmpl *template.Template
}

// New 解析模板；自定义模板不可读或语法错误时返回错误。
func New(opts Options) (*Renderer, error) {
	src := defaultTemplate
	name := "report"
	if opts.Template != "" {
		b, err := os.ReadFile(opts.Template)
		if err != nil {
			return nil, err
		}
		src, name = string(b), opts.Template
	}
	t, err := template.New(name).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: html template: %v", contract.ErrInvalidUsage, err)
	}
	return &Renderer{tmpl: t}, nil
}

var _ contract.Renderer = (*Renderer)(nil)

// Render 见 contract.Renderer。label 为 bundle 路径、Buffer 或 [combined]。
func (r *Renderer) Render(ctx context.Context, label string, rep contract.Report) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := page{
		Label:    label,
		Total:    humanize.Bytes(uint64(max(rep.TotalBytes, 0))),
		Mapped:   humanize.Bytes(uint64(max(rep.MappedBytes(), 0))),
		Unmapped: humanize.Bytes(uint64(max(rep.UnmappedBytes, 0))),
		Bundles:  rep.Bundles,
		Tree:     BuildTree(label, rep.Files),
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return nil, err
	}
	return &buf, nil
}

// BuildTree 将 "a/b/c.js" 形式的键折叠为目录树；节点大小为子树之和，子节点按大小降序。
func BuildTree(rootName string, files map[string]int64) *Node {
	root := &Node{Name: rootName}
	index := map[string]*Node{"": root}
	for key, size := range files {
		parent := root
		prefix := ""
		parts := strings.Split(key, "/")
		if key == contract.UnmappedKey {
			parts = []string{key}
		}
		for i, part := range parts {
			if part == "" && i < len(parts)-1 {
				continue
			}
			prefix += "/" + part
			n, ok := index[prefix]
			if !ok {
				n = &Node{Name: part}
				index[prefix] = n
				parent.Children = append(parent.Children, n)
			}
			n.Size += size
			parent = n
		}
		root.Size += size
	}
	sortTree(root)
	return root
}

func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		if n.Children[i].Size != n.Children[j].Size {
			return n.Children[i].Size > n.Children[j].Size
		}
		return n.Children[i].Name < n.Children[j].Name
	})
	for _, c := range n.Children {
		sortTree(c)
	}
}
