package tracing

import "strings"

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200
	// MaxQueryLength 检索文本最大长度
	MaxQueryLength = 120
)

// sensitiveKeys 属性名包含这些关键字时值需要掩码
var sensitiveKeys = []string{"email", "phone", "password", "name", "姓名", "secret", "token", "api_key"}

// SafeAttributeValue 确保属性值安全：敏感字段掩码，过长的值截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for _, keyword := range sensitiveKeys {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 对个人敏感信息进行掩码处理
func MaskPII(value string) string {
	runes := []rune(value)
	length := len(runes)
	switch {
	case length == 0:
		return ""
	case length == 1:
		return "*"
	case length == 2:
		return string(runes[0:1]) + "*"
	case length <= 4:
		return string(runes[0:1]) + strings.Repeat("*", length-2) + string(runes[length-1:])
	default:
		// "13812345678" -> "13*******78"
		return string(runes[0:2]) + strings.Repeat("*", length-4) + string(runes[length-2:])
	}
}

// TruncateString 截断字符串，保留首尾并用...连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeQuery 处理检索文本，避免把整份简历写进span
func SafeQuery(query string) string {
	return TruncateString(query, MaxQueryLength)
}
