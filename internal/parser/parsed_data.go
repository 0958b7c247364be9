package parser

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"

	"talent-match/internal/types"
)

// parsedResumeDoc parsed_data 列中简历解析结果的字段
type parsedResumeDoc struct {
	Skills            any     `mapstructure:"skills"`
	YearsOfExperience float64 `mapstructure:"years_of_experience"`
	ResumeText        string  `mapstructure:"resume_text"`
}

// DecodeParsedData 解码简历解析结果。
// 兼容被二次编码成字符串的JSON，以及数字写成字符串的年限；无法解析时返回空结果。
func DecodeParsedData(raw []byte) types.ParsedResume {
	result := types.ParsedResume{
		TechnicalSkills: types.SkillSet{},
		SoftSkills:      types.SkillSet{},
		Languages:       types.SkillSet{},
	}

	obj, ok := decodeObject(raw)
	if !ok {
		return result
	}

	var doc parsedResumeDoc
	if err := mapstructure.WeakDecode(obj, &doc); err != nil {
		// 年限等字段类型不对时只保留技能
		doc = parsedResumeDoc{Skills: obj["skills"]}
	}

	result.TechnicalSkills = types.TechnicalSkills(doc.Skills)
	if m, ok := doc.Skills.(map[string]any); ok {
		result.SoftSkills = types.CoerceSkillList(m["soft"])
		result.Languages = types.CoerceSkillList(m["languages"])
	}
	// 没有任何技能的解析结果按未解析处理，只走语义匹配
	result.HasSkills = len(result.TechnicalSkills)+len(result.SoftSkills)+len(result.Languages) > 0
	if doc.YearsOfExperience > 0 {
		result.YearsOfExperience = doc.YearsOfExperience
	}
	result.ResumeText = strings.TrimSpace(doc.ResumeText)
	return result
}

func decodeObject(raw []byte) (map[string]any, bool) {
	s := strings.TrimSpace(string(raw))
	for depth := 0; depth < 3 && s != "" && s != "null"; depth++ {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, false
		}
		switch val := v.(type) {
		case map[string]any:
			return val, true
		case string:
			s = strings.TrimSpace(val)
		default:
			return nil, false
		}
	}
	return nil, false
}
