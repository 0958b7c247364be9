package vectorindex

import (
	"strings"

	"talent-match/internal/constants"
	"talent-match/internal/types"
)

// RenderRoleText 把职位渲染成固定格式的文本块，同一职位总得到相同文本
func RenderRoleText(role types.RoleRequirement) string {
	department := strings.TrimSpace(role.Department)
	if department == "" {
		department = constants.DepartmentNotSpecified
	}

	var b strings.Builder
	b.WriteString("Role: ")
	b.WriteString(role.Title)
	b.WriteString("\nDepartment: ")
	b.WriteString(department)
	b.WriteString("\nDescription: ")
	b.WriteString(role.Description)
	b.WriteString("\nRequired Skills: ")
	b.WriteString(strings.Join(role.Required, ", "))
	b.WriteString("\nPreferred Skills: ")
	b.WriteString(strings.Join(role.Preferred, ", "))
	b.WriteString("\n")
	return b.String()
}
