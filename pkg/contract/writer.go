package contract

import (
	"context"
	"io"
)

// ArtifactID: 报告工件标识（语义上与 FileID 相同，强调“输出工件”）。
type ArtifactID = FileID

// Renderer: 将汇总报告序列化为某种输出格式。
// 约束：纯计算；输出顺序确定（按字节数降序，同值按键升序）。
type Renderer interface {
	Render(ctx context.Context, label string, r Report) (io.Reader, error)
}

// Writer: 将渲染结果以流式方式持久化到目标介质（stdout/文件系统）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
