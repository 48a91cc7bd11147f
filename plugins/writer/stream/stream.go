package stream

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"smexplorer/pkg/contract"
)

// Stream 将报告写到一个 io.Writer（默认 stdout）。
// id 仅用于日志标识，不参与路径映射。
type Stream struct {
	mu  sync.Mutex
	out io.Writer
}

// New 创建写 stdout 的 Writer；out 非空时改写到 out。
func New(out io.Writer) *Stream {
	if out == nil {
		out = os.Stdout
	}
	return &Stream{out: out}
}

var _ contract.Writer = (*Stream)(nil)

// Write 串行化写入，保证多份报告不交错。
func (s *Stream) Write(ctx context.Context, _ contract.ArtifactID, r io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bw := bufio.NewWriter(s.out)
	if _, err := io.Copy(bw, r); err != nil {
		return err
	}
	return bw.Flush()
}
