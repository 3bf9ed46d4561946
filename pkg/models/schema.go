package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Per-type JSON Schemas for block payloads as they arrive at the API
// boundary. The consumer must parse according to type before interpreting
// fields; these schemas reject field/type combinations up front.

const actionPayloadSchema = `{
	"type": "object",
	"properties": {
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id":        {"type": "string"},
					"text":      {"type": "string"},
					"completed": {"type": "boolean"}
				},
				"required": ["text"]
			}
		}
	},
	"required": ["tasks"]
}`

const conditionPayloadSchema = `{
	"type": "object",
	"properties": {
		"condition": {"type": "string"},
		"options": {
			"type": "array",
			"minItems": 2,
			"items": {
				"type": "object",
				"properties": {
					"id":       {"type": "string"},
					"resultat": {"type": "string"},
					"decision": {"type": "string"}
				}
			}
		}
	},
	"required": ["condition", "options"]
}`

const waitPayloadSchema = `{
	"type": "object",
	"properties": {
		"duration": {"type": "integer", "minimum": 0}
	},
	"required": ["duration"]
}`

var payloadSchemas = map[BlockType]*gojsonschema.Schema{}

func init() {
	for blockType, raw := range map[BlockType]string{
		BlockTypeAction:    actionPayloadSchema,
		BlockTypeCondition: conditionPayloadSchema,
		BlockTypeWait:      waitPayloadSchema,
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("invalid payload schema for %s: %v", blockType, err))
		}

		payloadSchemas[blockType] = schema
	}
}

// ValidatePayloadJSON validates a raw payload document against the schema
// for the given block type.
func ValidatePayloadJSON(blockType BlockType, payload []byte) error {
	schema, ok := payloadSchemas[blockType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBlockType, blockType)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to validate payload: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("invalid %s payload: %s", blockType, strings.Join(details, "; "))
	}

	return nil
}
