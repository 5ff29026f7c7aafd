package tools

import (
	"fmt"
	"math"
	"sort"
)

// Property describes one argument of a tool.
type Property struct {
	Type        string   // "string", "number", "integer", "boolean", "object", "array"
	Description string
	Enum        []string // allowed values for string properties
}

// Schema is the argument shape of a tool. Validation covers required fields
// and primitive types; anything richer is left to the handler.
type Schema struct {
	Properties map[string]Property
	Required   []string
}

// JSONSchema renders the schema in the object form backends expect.
func (s Schema) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]interface{}{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// Validate checks args against the schema. Unknown properties are allowed.
func (s Schema) Validate(args map[string]interface{}) error {
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, ok := s.Properties[name]
		if !ok {
			continue
		}
		if err := p.check(args[name]); err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
	}
	return nil
}

func (p Property) check(v interface{}) error {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("%q is not one of %v", s, p.Enum)
		}
	case "number":
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
	case "integer":
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("expected integer, got %v", v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case "object":
		if _, ok := v.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
	case "array":
		if _, ok := v.([]interface{}); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	}
	return nil
}
