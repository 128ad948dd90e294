package template

import (
	"testing"

	"github.com/dukex/docflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always come back as float64
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_ObjectConstruction(t *testing.T) {
	data := map[string]any{
		"user":   map[string]any{"name": "Alice"},
		"orders": []any{1, 2},
	}

	result, err := Render(`{
		"user_name": "{{ .user.name }}",
		"total_orders": {{ len .orders }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
}

func TestRender_ErrorHandling(t *testing.T) {
	data := map[string]any{"test": "value"}

	_, err := Render("{ invalid..expression }", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")

	_, err = Render("{{ nonexistent.field }}", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `function "nonexistent" not defined`)
}

func TestRenderBag(t *testing.T) {
	bag := models.NewContextBag("exec-1", "doc-9")
	bag.Set("vendor", "ACME")
	bag.SetNodeOutput("approve", map[string]any{"decided_by": "alice"})

	result, err := RenderBag("Document {document_id} from {{ .vars.vendor }} approved by {approve.decided_by}", bag)
	require.NoError(t, err)
	assert.Equal(t, "Document doc-9 from ACME approved by alice", result)

	result, err = RenderBag(`{{ if eq .vars.vendor "ACME" }}true{{ else }}false{{ end }}`, bag)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = RenderBag("{{ .execution.id }}", bag)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", result)
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, NeedsTemplating("{{ .vars.a }}"))
	assert.False(t, NeedsTemplating("plain {document_id}"))
}
