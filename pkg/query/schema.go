package query

import "encoding/json"

// Schema describes the shape of the query AST as a JSON Schema document,
// the Go-side equivalent of the original project's `schemars::schema_for!`
// output for its query node enum. It exists so the CLI's `schema`
// subcommand has something concrete to print; it is not consulted by the
// parser or evaluator.
//
//nolint:gochecknoglobals
var Schema = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title":   "QueryNode",
	"oneOf": []map[string]any{
		{
			"description": "The latest packet, optionally within a sub-query.",
			"properties": map[string]any{
				"Latest": map[string]any{"$ref": "#/definitions/QueryNode", "nullable": true},
			},
			"required": []string{"Latest"},
			"type":     "object",
		},
		{
			"description": "Exactly one packet, or an evaluation error.",
			"properties": map[string]any{
				"Single": map[string]any{"$ref": "#/definitions/QueryNode"},
			},
			"required": []string{"Single"},
			"type":     "object",
		},
		{
			"description": "A binary comparison between two values.",
			"properties": map[string]any{
				"Test": map[string]any{
					"type": "array",
					"items": []map[string]any{
						{"$ref": "#/definitions/TestOperator"},
						{"$ref": "#/definitions/QueryValue"},
						{"$ref": "#/definitions/QueryValue"},
					},
				},
			},
			"required": []string{"Test"},
			"type":     "object",
		},
		{
			"description": "The logical negation of a sub-query.",
			"properties": map[string]any{
				"Negation": map[string]any{"$ref": "#/definitions/QueryNode"},
			},
			"required": []string{"Negation"},
			"type":     "object",
		},
		{
			"description": "A parenthesised sub-query.",
			"properties": map[string]any{
				"Brackets": map[string]any{"$ref": "#/definitions/QueryNode"},
			},
			"required": []string{"Brackets"},
			"type":     "object",
		},
		{
			"description": "A boolean AND/OR of two sub-queries.",
			"properties": map[string]any{
				"BooleanOperator": map[string]any{
					"type": "array",
					"items": []map[string]any{
						{"$ref": "#/definitions/BooleanOperator"},
						{"$ref": "#/definitions/QueryNode"},
						{"$ref": "#/definitions/QueryNode"},
					},
				},
			},
			"required": []string{"BooleanOperator"},
			"type":     "object",
		},
	},
	"definitions": map[string]any{
		"QueryNode": map[string]any{"$ref": "#"},
		"TestOperator": map[string]any{
			"type": "string",
			"enum": []string{"Equal", "NotEqual", "LessThan", "LessThanOrEqual", "GreaterThan", "GreaterThanOrEqual"},
		},
		"BooleanOperator": map[string]any{
			"type": "string",
			"enum": []string{"And", "Or"},
		},
		"QueryValue": map[string]any{
			"description": "Either a Lookup drawn from a packet, or an inline Literal.",
			"oneOf": []map[string]any{
				{"$ref": "#/definitions/Lookup"},
				{"$ref": "#/definitions/Literal"},
			},
		},
		"Lookup": map[string]any{
			"type": "string",
			"enum": []string{"id", "name", "parameter:NAME", "this:NAME", "environment:NAME"},
		},
		"Literal": map[string]any{
			"oneOf": []map[string]any{
				{"type": "boolean"},
				{"type": "number"},
				{"type": "string"},
			},
		},
	},
}

// MarshalSchema renders Schema as indented JSON, matching the
// `serde_json::to_string_pretty` output the CLI originally produced.
func MarshalSchema() ([]byte, error) {
	return json.MarshalIndent(Schema, "", "  ")
}
