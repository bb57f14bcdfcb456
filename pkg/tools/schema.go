package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MustSchemaFor builds a ToolOutputSchema for T via reflection. It panics
// on a type the reflector can't walk, which only happens for a malformed
// Go struct a tool author wrote, not at runtime against user input.
func MustSchemaFor[T any]() ToolOutputSchema {
	schema, err := ToOutputSchemaSchema(reflect.TypeFor[T]())
	if err != nil {
		panic(err)
	}
	return schema
}

// SchemaToMap normalizes any JSON-Schema-shaped value (FunctionParameters,
// ToolOutputSchema, or a raw map[string]any) into map[string]any by
// round-tripping it through JSON, so callers that mutate a tool's schema
// (e.g. DescriptionToolSet injecting a parameter) don't need a type switch
// over every schema representation in the package.
func SchemaToMap(schema any) (map[string]any, error) {
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}
	return m, nil
}

func ToOutputSchemaSchema(valueType reflect.Type) (ToolOutputSchema, error) {
	if valueType == nil {
		return ToolOutputSchema{}, fmt.Errorf("cannot build a schema for a nil type")
	}

	seen := map[reflect.Type]bool{}
	schemaMap := toOutputSchemaSchema(valueType, seen)

	schema := ToolOutputSchema{}
	if vType := schemaMap["type"]; vType != nil {
		schema.Type = vType
	}
	if vRef := schemaMap["$ref"]; vRef != nil {
		schema.Ref = vRef.(string)
	}
	if vProperties := schemaMap["properties"]; vProperties != nil {
		schema.Properties = vProperties.(map[string]any)
	}
	if vItems := schemaMap["items"]; vItems != nil {
		schema.Items = vItems.(map[string]any)
	}

	return schema, nil
}

func toOutputSchemaSchema(valueType reflect.Type, seen map[reflect.Type]bool) map[string]any {
	// TODO(dga): support more complicated references.
	if seen[valueType] {
		return map[string]any{
			"$ref": "#",
		}
	}

	elemType := valueType.Kind()
	switch elemType {
	case reflect.String:
		return map[string]any{
			"type": "string",
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{
			"type": "integer",
		}
	case reflect.Float64, reflect.Float32:
		return map[string]any{
			"type": "number",
		}
	case reflect.Bool:
		return map[string]any{
			"type": "boolean",
		}
	case reflect.Slice:
		return map[string]any{
			"type":  "array",
			"items": toOutputSchemaSchema(valueType.Elem(), seen),
		}
	case reflect.Pointer:
		elemSchema := toOutputSchemaSchema(valueType.Elem(), seen)
		if elemType, ok := elemSchema["type"].(string); ok {
			elemSchema["type"] = []string{"null", elemType}
		}
		return elemSchema
	default:
		seen[valueType] = true

		properties := map[string]any{}
		for i := range valueType.NumField() {
			field := valueType.Field(i)

			name := field.Name
			if jsonTag, ok := field.Tag.Lookup("json"); ok {
				name = jsonTag
			}

			fieldSchema := toOutputSchemaSchema(field.Type, seen)
			if fieldDesc, ok := field.Tag.Lookup("description"); ok {
				fieldSchema["description"] = fieldDesc
			}

			properties[name] = fieldSchema
		}

		return map[string]any{
			"type":       "object",
			"properties": properties,
		}
	}
}
