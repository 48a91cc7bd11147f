package registry

import (
	"bytes"
	"encoding/json"

	"smexplorer/pkg/contract"
	dsm "smexplorer/plugins/decoder/sourcemap"
	rfs "smexplorer/plugins/reader/filesystem"
	rhtml "smexplorer/plugins/renderer/html"
	rjson "smexplorer/plugins/renderer/jsonout"
	rtable "smexplorer/plugins/renderer/table"
	rtsv "smexplorer/plugins/renderer/tsv"
	wfs "smexplorer/plugins/writer/filesystem"
	wstream "smexplorer/plugins/writer/stream"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewRenderer 工厂签名：接收原样 JSON Options。
type NewRenderer func(raw json.RawMessage) (contract.Renderer, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader（glob 展开 + map 定位）
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// sourcemap: source map v3（含 index map sections）
	"sourcemap": func(raw json.RawMessage) (contract.Decoder, error) { return dsm.New(raw) },
}

// Renderer 工厂注册表；键即输出格式名。
var Renderer = map[string]NewRenderer{
	"json": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts rjson.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rjson.New(opts), nil
	},
	"tsv": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rtsv.New(), nil
	},
	"html": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts rhtml.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rhtml.New(opts)
	},
	"table": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts rtable.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rtable.New(opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// stdout: 写到标准输出
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wstream.New(nil), nil
	},
}

// Formats 返回已注册的输出格式名（固定顺序）。
func Formats() []string { return []string{"table", "json", "tsv", "html"} }
