package sourcemap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	smlib "github.com/neelance/sourcemap"

	"smexplorer/pkg/contract"
)

// Options: source map v3 解码器选项。
type Options struct {
	// IgnoreSourceRoot: 为 true 时不将 sourceRoot 拼接到来源名前。
	IgnoreSourceRoot bool `json:"ignore_source_root"`
}

type decoder struct {
	ignoreRoot bool
}

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("sourcemap options: %w", err)
		}
	}
	return &decoder{ignoreRoot: opts.IgnoreSourceRoot}, nil
}

var _ contract.Decoder = (*decoder)(nil)

// envelope 仅用于识别版本与索引 map 分节；普通 map 交给 neelance/sourcemap 解码。
type envelope struct {
	Version  int       `json:"version"`
	File     string    `json:"file,omitempty"`
	Sections []section `json:"sections,omitempty"`
}

type section struct {
	Offset struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"offset"`
	URL string          `json:"url"`
	Map json.RawMessage `json:"map"`
}

// Decode 解析 source map 文档并展开全部映射。
func (d *decoder) Decode(ctx context.Context, raw []byte) (*contract.SourceMap, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	raw = stripXSSIPrefix(raw)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse source map json: %v: %w", err, contract.ErrMapInvalid)
	}
	if env.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d: %w", env.Version, contract.ErrMapInvalid)
	}
	sm := &contract.SourceMap{File: env.File}
	seen := map[string]struct{}{}
	if err := d.expand(raw, 0, 0, sm, seen); err != nil {
		return nil, err
	}
	return sm, nil
}

// expand 将（可能嵌套分节的）文档追加到 sm；seen 用于 Sources 去重且保序。
// lineBase/colBase 为分节偏移（0 基）；colBase 仅作用于分节首行。
func (d *decoder) expand(raw []byte, lineBase, colBase int, sm *contract.SourceMap, seen map[string]struct{}) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("parse source map json: %v: %w", err, contract.ErrMapInvalid)
	}
	if len(env.Sections) > 0 {
		prevLine, prevCol := -1, -1
		for i, sec := range env.Sections {
			if sec.URL != "" || len(sec.Map) == 0 || string(sec.Map) == "null" {
				return fmt.Errorf("section %d: external url sections not supported: %w", i, contract.ErrMapInvalid)
			}
			if sec.Offset.Line < prevLine || (sec.Offset.Line == prevLine && sec.Offset.Column < prevCol) {
				return fmt.Errorf("section %d: offsets not ordered: %w", i, contract.ErrMapInvalid)
			}
			prevLine, prevCol = sec.Offset.Line, sec.Offset.Column
			cb := sec.Offset.Column
			if sec.Offset.Line == 0 {
				cb += colBase
			}
			if err := d.expand(sec.Map, lineBase+sec.Offset.Line, cb, sm, seen); err != nil {
				return fmt.Errorf("section %d: %w", i, err)
			}
		}
		return nil
	}

	m, err := smlib.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse source map json: %v: %w", err, contract.ErrMapInvalid)
	}
	if err := checkMappings(m.Mappings); err != nil {
		return fmt.Errorf("mappings: %v: %w", err, contract.ErrMapInvalid)
	}
	// 库在串尾回退读取，末尾单字段段会被重读而丢失；补一个行分隔符
	if s := m.Mappings; s != "" && s[len(s)-1] != ';' && s[len(s)-1] != ',' {
		m.Mappings += ";"
	}
	decoded, err := decodedMappings(m)
	if err != nil {
		return err
	}

	names := make(map[string]string, len(m.Sources))
	for _, s := range m.Sources {
		full := s
		if !d.ignoreRoot {
			full = joinRoot(m.SourceRoot, s)
		}
		names[s] = full
		if _, ok := seen[full]; !ok {
			seen[full] = struct{}{}
			sm.Sources = append(sm.Sources, full)
		}
	}
	for _, dm := range decoded {
		if dm.GeneratedColumn < 0 {
			return fmt.Errorf("line %d: negative generated column: %w", dm.GeneratedLine, contract.ErrMapInvalid)
		}
		out := contract.Mapping{GeneratedLine: lineBase + dm.GeneratedLine, GeneratedColumn: dm.GeneratedColumn}
		if dm.GeneratedLine == 1 {
			out.GeneratedColumn += colBase
		}
		// 空来源名与单字段段同样视为无来源
		if dm.OriginalFile != "" {
			out.Source = names[dm.OriginalFile]
			out.HasSource = true
			out.OriginalLine = dm.OriginalLine
			out.OriginalColumn = dm.OriginalColumn
		}
		sm.Mappings = append(sm.Mappings, out)
	}
	return nil
}

// decodedMappings 调用库解码；来源/名称索引越界时库会 panic，这里转为 ErrMapInvalid。
func decodedMappings(m *smlib.Map) (out []*smlib.Mapping, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("mappings: %v: %w", r, contract.ErrMapInvalid)
		}
	}()
	return m.DecodedMappings(), nil
}

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// checkMappings 做词法校验：仅允许 Base64 字符与分隔符，VLQ 必须终止，
// 每段字段数为 1、4 或 5。库对这些输入不报错（非法字符会使其死循环）。
func checkMappings(s string) error {
	line, fields := 1, 0
	open := false
	end := func() error {
		if open {
			return fmt.Errorf("line %d: unterminated vlq value", line)
		}
		if fields != 0 && fields != 1 && fields != 4 && fields != 5 {
			return fmt.Errorf("line %d: segment with %d fields", line, fields)
		}
		fields = 0
		return nil
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ',', ';':
			if err := end(); err != nil {
				return err
			}
			if c == ';' {
				line++
			}
			continue
		}
		d := strings.IndexByte(base64Alphabet, c)
		if d < 0 {
			return fmt.Errorf("line %d: invalid base64 digit %q", line, c)
		}
		// 续位为 0 时一个字段结束
		open = d&32 != 0
		if !open {
			fields++
		}
	}
	return end()
}

// joinRoot 将 sourceRoot 拼接到相对来源名前；绝对路径与带协议的 URL 原样保留。
func joinRoot(root, source string) string {
	if root == "" || strings.HasPrefix(source, "/") || strings.Contains(source, "://") {
		return source
	}
	return strings.TrimRight(root, "/") + "/" + source
}

// stripXSSIPrefix 去除部分工具输出的 ")]}'" 防护前缀。
func stripXSSIPrefix(b []byte) []byte {
	s := strings.TrimPrefix(string(b), "\ufeff")
	if strings.HasPrefix(s, ")]}'") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			return []byte(s[i+1:])
		}
	}
	return []byte(s)
}

// Marshal 将 SourceMap 编码为 v3 文档（单节、无 names），编码由 neelance/sourcemap 完成。
// Mappings 须按生成行列升序；Sources 按映射中首次出现的顺序重建。
func Marshal(sm *contract.SourceMap) ([]byte, error) {
	if sm == nil {
		return nil, fmt.Errorf("nil source map: %w", contract.ErrMapInvalid)
	}
	out := &smlib.Map{Version: 3, File: sm.File}
	line, col := 1, 0
	for _, m := range sm.Mappings {
		if m.GeneratedLine < line || (m.GeneratedLine == line && m.GeneratedColumn < col) {
			return nil, fmt.Errorf("mappings not sorted at %d:%d: %w", m.GeneratedLine, m.GeneratedColumn, contract.ErrMapInvalid)
		}
		line, col = m.GeneratedLine, m.GeneratedColumn
		lm := &smlib.Mapping{GeneratedLine: m.GeneratedLine, GeneratedColumn: m.GeneratedColumn}
		if m.HasSource {
			lm.OriginalFile = m.Source
			lm.OriginalLine = max(m.OriginalLine, 1)
			lm.OriginalColumn = m.OriginalColumn
		}
		out.AddMapping(lm)
	}
	var buf bytes.Buffer
	if err := out.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
