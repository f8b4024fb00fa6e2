package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawcc/trumpsword/internal/domain"
)

func TestBuiltinTemplates(t *testing.T) {
	defs, err := BuiltinTemplates()
	require.NoError(t, err)
	require.Len(t, defs, 4)

	types := make([]domain.EventType, len(defs))
	for i, d := range defs {
		types[i] = d.Type
		assert.NotEmpty(t, d.Nodes, "template %s has no nodes", d.Type)
		assert.JSONEq(t, `{}`, string(d.TransitionRules))
	}
	assert.Equal(t, domain.EventTypes, types)

	assert.Equal(t, "Legislative Process", defs[0].Name)
	assert.Equal(t, []string{"Introduction", "Committee", "Floor Vote", "President", "Law"}, defs[0].Nodes)
	assert.Equal(t, "Drafting", defs[1].Nodes[0])
	assert.Equal(t, "Nomination", defs[2].Nodes[0])
	assert.Equal(t, "Monitor", defs[3].Nodes[0])
}

func TestCompileTemplates_TransitionRulesPreserved(t *testing.T) {
	src := `
templates: executive: {
	name: "EO"
	nodes: ["A", "B"]
	transition_rules: {A: ["B"]}
}
`
	defs, err := CompileTemplates("test.cue", src)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.JSONEq(t, `{"A":["B"]}`, string(defs[0].TransitionRules))
}

func TestCompileTemplates_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `templates: {`},
		{"missing templates", `other: 1`},
		{"unknown type", `templates: weather: {name: "W", nodes: ["a"]}`},
		{"non-concrete", `templates: executive: {name: string, nodes: ["a"]}`},
		{"wrong node type", `templates: executive: {name: "E", nodes: 3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileTemplates("test.cue", tt.src)
			assert.Error(t, err)
		})
	}
}

func TestTemplateError_Format(t *testing.T) {
	err := &TemplateError{Field: "templates", Message: "templates is required"}
	assert.Equal(t, "templates: templates is required", err.Error())
}
