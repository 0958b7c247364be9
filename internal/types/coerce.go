package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CoerceSkillList 把数据库或JSON中形态不一的技能字段转为技能列表。
// 支持 nil、[]string、[]any、JSON数组字符串和 []byte；无法解析时返回空列表。
func CoerceSkillList(v any) SkillSet {
	out := SkillSet{}
	switch val := v.(type) {
	case nil:
		return out
	case SkillSet:
		return appendLabels(out, val)
	case []string:
		return appendLabels(out, val)
	case []any:
		for _, item := range val {
			if item == nil {
				continue
			}
			var s string
			switch x := item.(type) {
			case string:
				s = x
			case map[string]any:
				// 部分简历解析结果把技能存为 {"name": "..."}
				if name, ok := x["name"].(string); ok {
					s = name
				}
			default:
				s = fmt.Sprint(x)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case json.RawMessage:
		return coerceJSON([]byte(val))
	case []byte:
		return coerceJSON(val)
	case string:
		return coerceJSON([]byte(val))
	default:
		return out
	}
}

func coerceJSON(raw []byte) SkillSet {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return SkillSet{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return SkillSet{}
	}
	// 字符串里又包了一层JSON
	if inner, ok := decoded.(string); ok {
		return coerceJSON([]byte(inner))
	}
	return CoerceSkillList(decoded)
}

func appendLabels(out SkillSet, labels []string) SkillSet {
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// TechnicalSkills 取出技能字段中的技术技能：对象形态取 technical 键，列表形态直接返回
func TechnicalSkills(v any) SkillSet {
	if m, ok := v.(map[string]any); ok {
		return CoerceSkillList(m["technical"])
	}
	return CoerceSkillList(v)
}
