package filesystem

import (
	"encoding/base64"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// 匹配 sourceMappingURL 注释：//# //@ /*# */ 三种写法。
var mapURLRe = regexp.MustCompile(`(?m)(?://[#@]|/\*[#@])[ \t]*sourceMappingURL=([^\s'"*]+)[ \t]*(?:\*/)?[ \t]*\r?$`)

var errBadDataURL = errors.New("malformed data url")

// ExtractMapURL 返回文本中最后一条 sourceMappingURL 注释的地址；未找到时返回空串。
func ExtractMapURL(code []byte) string {
	all := mapURLRe.FindAllSubmatch(code, -1)
	if len(all) == 0 {
		return ""
	}
	return strings.TrimSpace(string(all[len(all)-1][1]))
}

// IsDataURL 判断地址是否为 data: URL。
func IsDataURL(u string) bool { return strings.HasPrefix(strings.ToLower(u), "data:") }

// DecodeDataURL 解出 data URL 负载：;base64 标记时按 base64，否则按百分号编码。
func DecodeDataURL(u string) ([]byte, error) {
	if !IsDataURL(u) {
		return nil, errBadDataURL
	}
	meta, payload, ok := strings.Cut(u[len("data:"):], ",")
	if !ok {
		return nil, errBadDataURL
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// 部分工具省略填充
			b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
