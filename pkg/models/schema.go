package models

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// FieldType is the declared type of a node configuration field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
	// FieldNumeric accepts numbers and numeric strings, coerced by the node.
	FieldNumeric FieldType = "numeric"
	// FieldStringOrArray accepts a string or a list of strings.
	FieldStringOrArray FieldType = "string_or_array"
	// FieldIdentifier accepts a string or an integer ID.
	FieldIdentifier FieldType = "identifier"
	// FieldIdentifierList accepts one identifier or a list of them.
	FieldIdentifierList FieldType = "identifier_list"
)

// ConfigField describes one configuration field of a node type.
type ConfigField struct {
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
}

// ConfigSchema maps configuration field names to their descriptors.
type ConfigSchema map[string]ConfigField

// JSONSchema represents a JSON Schema for configuration validation
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property
type Property struct {
	Type        any       `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Items       *Property `json:"items,omitempty"`
	MinLength   *int      `json:"minLength,omitempty"`
}

const numericPattern = `^\s*-?[0-9]+(\.[0-9]+)?\s*$`

// JSONSchema converts the descriptor map into a JSON Schema document.
func (s ConfigSchema) JSONSchema() *JSONSchema {
	schema := &JSONSchema{
		Type:       "object",
		Properties: make(map[string]*Property, len(s)),
	}

	for name, field := range s {
		schema.Properties[name] = field.property()

		if field.Required {
			schema.Required = append(schema.Required, name)
		}
	}

	sort.Strings(schema.Required)

	return schema
}

func (f ConfigField) property() *Property {
	prop := &Property{Description: f.Description}

	switch f.Type {
	case FieldNumeric:
		prop.Type = []string{"integer", "number", "string"}
		prop.Pattern = numericPattern
	case FieldStringOrArray:
		prop.Type = []string{"string", "array"}
		prop.Items = &Property{Type: "string"}
	case FieldIdentifier:
		prop.Type = []string{"string", "integer"}
	case FieldIdentifierList:
		prop.Type = []string{"string", "integer", "array"}
		prop.Items = &Property{Type: []string{"string", "integer"}}
	case "":
		prop.Type = nil
	default:
		prop.Type = string(f.Type)
	}

	if f.Required && (f.Type == FieldString || f.Type == FieldStringOrArray) {
		one := 1
		prop.MinLength = &one
	}

	return prop
}

// RegisteredComponent represents a node type registered in the system with metadata
type RegisteredComponent struct {
	Type        string       `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Outputs     []string     `json:"outputs"`
	Schema      ConfigSchema `json:"schema"`
}

// IntValue coerces a numeric configuration value to an int, truncating
// fractions. Numeric strings are accepted; anything else is 0, false.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(math.Trunc(float64(n))), true
	case float64:
		return int(math.Trunc(n)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}

		return int(math.Trunc(f)), true
	default:
		return 0, false
	}
}

// StringList reads a string or a list of strings, dropping empty entries.
func StringList(v any) []string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}

		return []string{s}
	case []string:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if item != "" {
				out = append(out, item)
			}
		}

		return out
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}

		return out
	default:
		return nil
	}
}

// IDValue reads a string or integral ID. Floats with a fraction are rejected.
func IDValue(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)

		return id, id != ""
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		if id != math.Trunc(id) {
			return "", false
		}

		return strconv.FormatInt(int64(id), 10), true
	default:
		return "", false
	}
}

// IDList reads one ID or a list of IDs, dropping entries IDValue rejects.
func IDList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if list, isList := v.([]string); isList {
			return StringList(list)
		}

		items = []any{v}
	}

	var ids []string

	for _, item := range items {
		if id, ok := IDValue(item); ok {
			ids = append(ids, id)
		}
	}

	return ids
}
