package table

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"smexplorer/pkg/contract"
)

// Options 终端表格选项。
type Options struct {
	// Limit: 仅显示前 N 行（0 为全部），其余合并为一行 "(N more)"。
	Limit int `json:"limit"`
	// Raw: true 时大小列输出原始字节数，否则为人类可读格式。
	Raw bool `json:"raw"`
}

// Renderer 以对齐表格输出报告，附带占比列与合计行。
type Renderer struct {
	limit int
	raw   bool
}

// New 创建表格渲染器。
func New(opts Options) *Renderer {
	return &Renderer{limit: opts.Limit, raw: opts.Raw}
}

var _ contract.Renderer = (*Renderer)(nil)

// Render 见 contract.Renderer。
func (r *Renderer) Render(ctx context.Context, label string, rep contract.Report) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", label)

	rows := rep.Sorted()
	var rest []contract.FileSize
	if r.limit > 0 && len(rows) > r.limit {
		rows, rest = rows[:r.limit], rows[r.limit:]
	}
	tw := tablewriter.NewWriter(&buf)
	tw.SetHeader([]string{"Size", "Share", "Source"})
	tw.SetBorder(false)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(true)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator("")
	tw.SetRowSeparator("")
	tw.SetHeaderLine(false)
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	for _, row := range rows {
		tw.Append([]string{r.size(row.Bytes), share(row.Bytes, rep.TotalBytes), row.Source})
	}
	if len(rest) > 0 {
		var n int64
		for _, row := range rest {
			n += row.Bytes
		}
		tw.Append([]string{r.size(n), share(n, rep.TotalBytes), fmt.Sprintf("(%d more)", len(rest))})
	}
	tw.Render()
	fmt.Fprintf(&buf, "total %s, mapped %s, unmapped %s\n",
		r.size(rep.TotalBytes), r.size(rep.MappedBytes()), r.size(rep.UnmappedBytes))
	return &buf, nil
}

func (r *Renderer) size(n int64) string {
	if r.raw {
		return humanize.Comma(n)
	}
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func share(n, total int64) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
