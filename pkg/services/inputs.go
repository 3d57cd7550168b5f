package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/xeipuuv/gojsonschema"
)

var inputTypes = map[string]string{
	"string":  "string",
	"integer": "integer",
	"float":   "number",
	"boolean": "boolean",
	"list":    "array",
	"dict":    "object",
}

// blueprintInputs lists the inputs declared by a blueprint, sorted by name.
func blueprintInputs(bp *orchestrator.Blueprint) []models.BlueprintInput {
	inputs := make([]models.BlueprintInput, 0, len(bp.Plan.Inputs))

	for name, def := range bp.Plan.Inputs {
		input := models.BlueprintInput{
			Name:        name,
			Type:        def.Type,
			Description: def.Description,
			Required:    def.Required(),
		}
		if !input.Required {
			var value any
			if err := json.Unmarshal(def.Default, &value); err == nil {
				input.Default = value
			}
		}
		inputs = append(inputs, input)
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })

	return inputs
}

// inputSchema builds the JSON schema deployment inputs must satisfy.
func inputSchema(bp *orchestrator.Blueprint) map[string]any {
	properties := map[string]any{}
	required := []string{}

	for name, def := range bp.Plan.Inputs {
		property := map[string]any{}
		if t, ok := inputTypes[def.Type]; ok {
			property["type"] = t
		}
		properties[name] = property

		if def.Required() {
			required = append(required, name)
		}
	}

	sort.Strings(required)

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// validateInputs checks inputs against the blueprint declarations.
func validateInputs(bp *orchestrator.Blueprint, inputs map[string]any) error {
	if inputs == nil {
		inputs = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(inputSchema(bp)), gojsonschema.NewGoLoader(inputs))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInputs, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}

		return NewValidationError("ValidateInputs", "invalid_inputs", strings.Join(problems, "; "), ErrInvalidInputs)
	}

	return nil
}
