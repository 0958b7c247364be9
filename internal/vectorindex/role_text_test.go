package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"talent-match/internal/types"
)

func TestRenderRoleText(t *testing.T) {
	role := types.RoleRequirement{
		ID:          "r1",
		Title:       "Backend Engineer",
		Department:  "Platform",
		Description: "Build APIs",
		Required:    types.SkillSet{"Go", "PostgreSQL"},
		Preferred:   types.SkillSet{"Kubernetes"},
	}
	want := "Role: Backend Engineer\n" +
		"Department: Platform\n" +
		"Description: Build APIs\n" +
		"Required Skills: Go, PostgreSQL\n" +
		"Preferred Skills: Kubernetes\n"
	assert.Equal(t, want, RenderRoleText(role))
}

func TestRenderRoleText_Defaults(t *testing.T) {
	got := RenderRoleText(types.RoleRequirement{Title: "Chef"})
	want := "Role: Chef\n" +
		"Department: Not specified\n" +
		"Description: \n" +
		"Required Skills: \n" +
		"Preferred Skills: \n"
	assert.Equal(t, want, got)
}
