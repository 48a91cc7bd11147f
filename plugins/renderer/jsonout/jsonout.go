package jsonout

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"smexplorer/pkg/contract"
)

// Options JSON 渲染选项。
type Options struct {
	// Indent: 缩进空格数；默认 2。
	Indent int `json:"indent"`
	// Full: true 时输出 {files,unmappedBytes,totalBytes}；默认仅输出 files 对象。
	Full bool `json:"full"`
}

// Renderer 输出按字节数降序排列的 JSON 对象。
type Renderer struct {
	indent string
	full   bool
}

// New 创建 JSON 渲染器。
func New(opts Options) *Renderer {
	n := opts.Indent
	if n <= 0 {
		n = 2
	}
	return &Renderer{indent: strings.Repeat(" ", n), full: opts.Full}
}

var _ contract.Renderer = (*Renderer)(nil)

// Render 见 contract.Renderer。label 不出现在 JSON 中。
func (r *Renderer) Render(ctx context.Context, _ string, rep contract.Report) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if !r.full {
		if err := r.writeFiles(&buf, rep.Sorted(), ""); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
		return &buf, nil
	}
	buf.WriteString("{\n")
	buf.WriteString(r.indent + `"files": `)
	if err := r.writeFiles(&buf, rep.Sorted(), r.indent); err != nil {
		return nil, err
	}
	buf.WriteString(",\n" + r.indent + `"unmappedBytes": ` + strconv.FormatInt(rep.UnmappedBytes, 10))
	buf.WriteString(",\n" + r.indent + `"totalBytes": ` + strconv.FormatInt(rep.TotalBytes, 10))
	buf.WriteString("\n}\n")
	return &buf, nil
}

// writeFiles 按给定顺序写出 {"src": n, ...}；map 无序，故不走 json.MarshalIndent。
func (r *Renderer) writeFiles(buf *bytes.Buffer, rows []contract.FileSize, base string) error {
	if len(rows) == 0 {
		buf.WriteString("{}")
		return nil
	}
	buf.WriteString("{\n")
	for i, row := range rows {
		key, err := quote(row.Source)
		if err != nil {
			return err
		}
		buf.WriteString(base + r.indent)
		buf.Write(key)
		buf.WriteString(": ")
		buf.WriteString(strconv.FormatInt(row.Bytes, 10))
		if i < len(rows)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString(base + "}")
	return nil
}

// quote 以 JSON 字符串编码 s，不转义 <>&（保持 "<unmapped>" 原样）。
func quote(s string) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}
