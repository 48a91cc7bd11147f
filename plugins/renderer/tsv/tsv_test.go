package tsv

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smexplorer/pkg/contract"
)

func TestRender(t *testing.T) {
	rep := contract.Report{Files: map[string]int64{
		contract.UnmappedKey: 0,
		"dist/bar.js":        2854,
		"dist/foo.js":        137,
		"node_modules/browserify/node_modules/browser-pack/_prelude.js": 463,
		"weird\tname.js": 137,
	}}
	out, err := New().Render(context.Background(), "x", rep)
	require.NoError(t, err)
	b, _ := io.ReadAll(out)
	assert.Equal(t, "Source\tSize\n"+
		"2854\tdist/bar.js\n"+
		"463\tnode_modules/browserify/node_modules/browser-pack/_prelude.js\n"+
		"137\tdist/foo.js\n"+
		"137\tweird name.js\n"+
		"0\t<unmapped>\n", string(b))
}

func TestRenderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Render(ctx, "x", contract.Report{})
	assert.ErrorIs(t, err, context.Canceled)
}
