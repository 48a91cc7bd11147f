package tsv

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"smexplorer/pkg/contract"
)

// Renderer 输出制表符分隔的 "Size<TAB>Source" 行，首行为表头。
type Renderer struct{}

// New 创建 TSV 渲染器。
func New() *Renderer { return &Renderer{} }

var _ contract.Renderer = (*Renderer)(nil)

// Render 见 contract.Renderer。
func (Renderer) Render(ctx context.Context, _ string, rep contract.Report) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("Source\tSize\n")
	for _, row := range rep.Sorted() {
		buf.WriteString(strconv.FormatInt(row.Bytes, 10))
		buf.WriteByte('\t')
		buf.WriteString(sanitize(row.Source))
		buf.WriteByte('\n')
	}
	return &buf, nil
}

// 来源名中的制表/换行会破坏列结构，替换为空格。
var sanitizer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func sanitize(s string) string { return sanitizer.Replace(s) }
