package attribution

import (
	"bytes"
	"unicode/utf8"
)

// lineTable: 生成文本的行起始字节偏移（前缀和）。
// starts[i] 为第 i+1 行首字节；行内容不含 '\n'。
type lineTable struct {
	text   []byte
	starts []int64
}

func newLineTable(text []byte) *lineTable {
	starts := make([]int64, 1, bytes.Count(text, []byte{'\n'})+1)
	for i, c := range text {
		if c == '\n' {
			starts = append(starts, int64(i+1))
		}
	}
	return &lineTable{text: text, starts: starts}
}

// lines 返回行数（空文本视为 1 行）。
func (t *lineTable) lines() int { return len(t.starts) }

// line 返回第 n 行（1 基）内容，不含换行符。
func (t *lineTable) line(n int) []byte {
	start := t.starts[n-1]
	end := int64(len(t.text))
	if n < len(t.starts) {
		end = t.starts[n] - 1
	}
	return t.text[start:end]
}

// offset 将 (line 1 基, column UTF-16 码元) 转为绝对字节偏移。
// ok=false 表示行号越界、列为负或列超出行尾（不外推到下一行）。
func (t *lineTable) offset(line, column int) (int64, bool) {
	if line < 1 || line > len(t.starts) || column < 0 {
		return 0, false
	}
	start := t.starts[line-1]
	if column == 0 {
		return start, true
	}
	off, ok := columnToByte(t.line(line), column)
	if !ok {
		return 0, false
	}
	return start + off, true
}

// columnToByte 将行内 UTF-16 列号换算为字节偏移；列等于行长时指向行尾。
// 列超出行长时 ok=false。
func columnToByte(line []byte, column int) (int64, bool) {
	units := 0
	i := 0
	for i < len(line) && units < column {
		c := line[i]
		if c < utf8.RuneSelf {
			i++
			units++
			continue
		}
		r, size := utf8.DecodeRune(line[i:])
		i += size
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	if units < column {
		return 0, false
	}
	return int64(i), true
}
