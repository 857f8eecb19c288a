package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Resolve looks up the invocation's tool and checks its input against the
// tool schema. Failures are returned as *MalformedError so the loop can
// send them back to the model.
func Resolve(reg *Registry, inv Invocation) (Tool, error) {
	if reg == nil {
		return Tool{}, errors.New("tool registry unavailable")
	}
	tool, ok := reg.Lookup(inv.Command)
	if !ok {
		return Tool{}, &MalformedError{
			Raw: inv.Command,
			Err: fmt.Errorf("unknown command %q, expected one of %s", inv.Command, strings.Join(reg.order, ", ")),
		}
	}
	if err := validateAgainstSchema(tool.Schema, inv.Input); err != nil {
		return Tool{}, &MalformedError{Raw: inv.Command, Err: fmt.Errorf("%s: %w", tool.Schema.Name, err)}
	}
	return tool, nil
}

func validateAgainstSchema(schema Schema, args map[string]any) error {
	for _, field := range schema.Parameters {
		val, exists := args[field.Name]
		if field.Required && (!exists || val == nil) {
			return fmt.Errorf("input.%s is required", field.Name)
		}
		if !exists {
			continue
		}
		switch field.Type {
		case "string":
			switch val.(type) {
			case string, int, float64, bool:
				// YAML scalars the model did not quote are still usable text.
			default:
				return fmt.Errorf("input.%s must be text", field.Name)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("input.%s must be boolean", field.Name)
			}
		case "integer":
			switch val.(type) {
			case int, int64, float64:
			default:
				return fmt.Errorf("input.%s must be integer", field.Name)
			}
		}
		if len(field.Enum) > 0 {
			s, _ := val.(string)
			valid := false
			for _, allowed := range field.Enum {
				if s == allowed {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("input.%s must be one of %v", field.Name, field.Enum)
			}
		}
	}
	return nil
}
