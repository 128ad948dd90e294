package models

import (
	"fmt"
	"maps"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_\-]+)(?:\.([A-Za-z0-9_\-]+))?\}`)

// ContextBag carries the data of one workflow run between nodes. It is owned by
// a single execution and cloned when the graph forks.
type ContextBag struct {
	ExecutionID string                    `json:"execution_id,omitempty"`
	DocumentID  string                    `json:"document_id,omitempty"`
	Variables   map[string]any            `json:"variables"`
	NodeOutputs map[string]map[string]any `json:"node_outputs,omitempty"`
}

// NewContextBag creates an empty bag. An empty executionID marks a dry run.
func NewContextBag(executionID, documentID string) *ContextBag {
	return &ContextBag{
		ExecutionID: executionID,
		DocumentID:  documentID,
		Variables:   make(map[string]any),
		NodeOutputs: make(map[string]map[string]any),
	}
}

// IsDryRun reports whether the bag is not bound to a persisted run.
func (b *ContextBag) IsDryRun() bool {
	return b.ExecutionID == ""
}

func (b *ContextBag) Get(key string) (any, bool) {
	v, ok := b.Variables[key]

	return v, ok
}

func (b *ContextBag) Set(key string, value any) {
	if b.Variables == nil {
		b.Variables = make(map[string]any)
	}

	b.Variables[key] = value
}

// Merge copies data into the variables, overwriting existing keys.
func (b *ContextBag) Merge(data map[string]any) {
	for k, v := range data {
		b.Set(k, v)
	}
}

// SetNodeOutput records the data a node reported on success.
func (b *ContextBag) SetNodeOutput(nodeID string, data map[string]any) {
	if b.NodeOutputs == nil {
		b.NodeOutputs = make(map[string]map[string]any)
	}

	b.NodeOutputs[nodeID] = maps.Clone(data)
}

func (b *ContextBag) NodeOutput(nodeID, key string) (any, bool) {
	out, ok := b.NodeOutputs[nodeID]
	if !ok {
		return nil, false
	}

	v, ok := out[key]

	return v, ok
}

// Clone returns a deep copy of the bag for a forked branch.
func (b *ContextBag) Clone() *ContextBag {
	clone := NewContextBag(b.ExecutionID, b.DocumentID)

	for k, v := range b.Variables {
		clone.Variables[k] = deepCopy(v)
	}

	for nodeID, out := range b.NodeOutputs {
		copied := make(map[string]any, len(out))
		for k, v := range out {
			copied[k] = deepCopy(v)
		}

		clone.NodeOutputs[nodeID] = copied
	}

	return clone
}

// Interpolate replaces {name} with a variable and {node.key} with a node output.
// Unknown placeholders are left untouched.
func (b *ContextBag) Interpolate(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)

		if parts[2] != "" {
			if v, ok := b.NodeOutput(parts[1], parts[2]); ok {
				return fmt.Sprint(v)
			}

			if nested, ok := b.Variables[parts[1]].(map[string]any); ok {
				if v, ok := nested[parts[2]]; ok {
					return fmt.Sprint(v)
				}
			}

			return match
		}

		switch parts[1] {
		case "execution_id":
			return b.ExecutionID
		case "document_id":
			return b.DocumentID
		}

		if v, ok := b.Variables[parts[1]]; ok {
			return fmt.Sprint(v)
		}

		return match
	})
}

// TemplateData exposes the bag to text/template based nodes.
func (b *ContextBag) TemplateData() map[string]any {
	return map[string]any{
		"variables":    b.Variables,
		"vars":         b.Variables,
		"node_outputs": b.NodeOutputs,
		"execution": map[string]any{
			"id":          b.ExecutionID,
			"document_id": b.DocumentID,
		},
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = deepCopy(inner)
		}

		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = deepCopy(inner)
		}

		return s
	default:
		return v
	}
}
