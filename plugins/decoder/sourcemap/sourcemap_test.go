package sourcemap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smexplorer/pkg/contract"
)

func decode(t *testing.T, doc string) (*contract.SourceMap, error) {
	t.Helper()
	d, err := New(nil)
	require.NoError(t, err)
	return d.Decode(context.Background(), []byte(doc))
}

// TestDecodeMappings 覆盖 4 字段段、串尾的单字段（无来源）段与跨行累计。
func TestDecodeMappings(t *testing.T) {
	sm, err := decode(t, `{"version":3,"file":"out.js","sources":["a.js","b.js"],"names":[],"mappings":"AAAA,ECAA;AAAA,K"}`)
	require.NoError(t, err)
	assert.Equal(t, "out.js", sm.File)
	assert.Equal(t, []string{"a.js", "b.js"}, sm.Sources)
	assert.Equal(t, []contract.Mapping{
		{GeneratedLine: 1, GeneratedColumn: 0, Source: "a.js", HasSource: true, OriginalLine: 1},
		{GeneratedLine: 1, GeneratedColumn: 2, Source: "b.js", HasSource: true, OriginalLine: 1},
		{GeneratedLine: 2, GeneratedColumn: 0, Source: "b.js", HasSource: true, OriginalLine: 1},
		{GeneratedLine: 2, GeneratedColumn: 5},
	}, sm.Mappings)
}

func TestDecodeSourceRoot(t *testing.T) {
	sm, err := decode(t, `{"version":3,"sourceRoot":"src/","sources":["x.js","/abs.js","webpack:///y.js"],"mappings":"AAAA"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/x.js", "/abs.js", "webpack:///y.js"}, sm.Sources)
	assert.Equal(t, "src/x.js", sm.Mappings[0].Source)

	d, err := New([]byte(`{"ignore_source_root":true}`))
	require.NoError(t, err)
	sm, err = d.Decode(context.Background(), []byte(`{"version":3,"sourceRoot":"src/","sources":["x.js"],"mappings":"AAAA"}`))
	require.NoError(t, err)
	assert.Equal(t, "x.js", sm.Mappings[0].Source)
}

func TestDecodeIndexMap(t *testing.T) {
	doc := `{"version":3,"sections":[
		{"offset":{"line":0,"column":0},"map":{"version":3,"sources":["a.js"],"mappings":"AAAA"}},
		{"offset":{"line":0,"column":10},"map":{"version":3,"sources":["b.js"],"mappings":"AAAA;CAAA"}}
	]}`
	sm, err := decode(t, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "b.js"}, sm.Sources)
	require.Len(t, sm.Mappings, 3)
	assert.Equal(t, 1, sm.Mappings[1].GeneratedLine)
	assert.Equal(t, 10, sm.Mappings[1].GeneratedColumn)
	assert.Equal(t, 2, sm.Mappings[2].GeneratedLine)
	assert.Equal(t, 1, sm.Mappings[2].GeneratedColumn)
}

func TestDecodeXSSIPrefix(t *testing.T) {
	sm, err := decode(t, ")]}'\n{\"version\":3,\"sources\":[\"a.js\"],\"mappings\":\"AAAA\"}")
	require.NoError(t, err)
	assert.Len(t, sm.Mappings, 1)
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `nope`},
		{"version", `{"version":2,"sources":[],"mappings":""}`},
		{"bad digit", `{"version":3,"sources":["a.js"],"mappings":"A!AA"}`},
		{"two fields", `{"version":3,"sources":["a.js"],"mappings":"AA"}`},
		{"six fields", `{"version":3,"sources":["a.js"],"mappings":"AAAAAA"}`},
		{"source out of range", `{"version":3,"sources":["a.js"],"mappings":"AEAA"}`},
		{"unterminated", `{"version":3,"sources":["a.js"],"mappings":"g"}`},
		{"url section", `{"version":3,"sections":[{"offset":{"line":0,"column":0},"url":"x.map"}]}`},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.doc)
			assert.ErrorIs(t, err, contract.ErrMapInvalid)
		})
	}
}

func TestDecodeCanceled(t *testing.T) {
	d, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Decode(ctx, []byte(`{"version":3}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New([]byte(`{"ignore_source_root":"yes"}`))
	assert.Error(t, err)
}

// 五字段段（带 name）与库在索引越界时的 panic 均需正确处理
func TestDecodeNamesAndBadIndex(t *testing.T) {
	sm, err := decode(t, `{"version":3,"sources":["a.js"],"names":["f"],"mappings":"AAAAA,EAAA"}`)
	require.NoError(t, err)
	require.Len(t, sm.Mappings, 2)
	assert.Equal(t, 2, sm.Mappings[1].GeneratedColumn)
	assert.True(t, sm.Mappings[1].HasSource)

	_, err = decode(t, `{"version":3,"sources":["a.js"],"names":[],"mappings":"AAAAC"}`)
	assert.ErrorIs(t, err, contract.ErrMapInvalid)
	_, err = decode(t, `{"version":3,"sources":["a.js"],"mappings":"ADAA"}`)
	assert.ErrorIs(t, err, contract.ErrMapInvalid)
}

func TestCheckMappings(t *testing.T) {
	for _, ok := range []string{"", ";;", "AAAA,C;;gBAAA", "A,AAAAA"} {
		assert.NoError(t, checkMappings(ok), ok)
	}
	for _, bad := range []string{"A!", "AA", "AAA", "AAAAAA", "g", "AAAA;AB=A"} {
		assert.Error(t, checkMappings(bad), bad)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := &contract.SourceMap{
		File:    "bundle.js",
		Sources: []string{"a.js", "b.js"},
		Mappings: []contract.Mapping{
			{GeneratedLine: 1, GeneratedColumn: 0, Source: "a.js", HasSource: true, OriginalLine: 1},
			{GeneratedLine: 1, GeneratedColumn: 40, Source: "b.js", HasSource: true, OriginalLine: 7, OriginalColumn: 3},
			{GeneratedLine: 3, GeneratedColumn: 2},
			{GeneratedLine: 3, GeneratedColumn: 9, Source: "a.js", HasSource: true, OriginalLine: 2},
		},
	}
	raw, err := Marshal(in)
	require.NoError(t, err)
	out, err := decode(t, string(raw))
	require.NoError(t, err)
	assert.Equal(t, in.File, out.File)
	assert.Equal(t, in.Sources, out.Sources)
	assert.Equal(t, in.Mappings, out.Mappings)

	_, err = Marshal(&contract.SourceMap{Mappings: []contract.Mapping{{GeneratedLine: 2}, {GeneratedLine: 1}}})
	assert.ErrorIs(t, err, contract.ErrMapInvalid)
}
