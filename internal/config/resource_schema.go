package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Resource type names accepted in configuration.
const (
	TypePushTopic        = "PushTopic"
	TypeStreamingChannel = "StreamingChannel"
)

// Field bounds follow the Streaming API object reference for PushTopic and
// StreamingChannel. additionalProperties is disabled so an unrecognized
// field is rejected by name.
const pushTopicSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"Id":                         {"type": "string", "minLength": 1},
		"Name":                       {"type": "string", "minLength": 1, "maxLength": 25},
		"ApiVersion":                 {"type": "number", "minimum": 20.0, "maximum": 42.0},
		"IsActive":                   {"type": "boolean"},
		"Description":                {"type": "string", "maxLength": 400},
		"NotifyForFields":            {"enum": ["All", "Referenced", "Select", "Where"]},
		"NotifyForOperations":        {"enum": ["All", "Create", "Extended", "Update"]},
		"NotifyForOperationCreate":   {"type": "boolean"},
		"NotifyForOperationUpdate":   {"type": "boolean"},
		"NotifyForOperationDelete":   {"type": "boolean"},
		"NotifyForOperationUndelete": {"type": "boolean"},
		"Query":                      {"type": "string", "minLength": 1, "maxLength": 1300}
	}
}`

const streamingChannelSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"Id":          {"type": "string", "minLength": 1},
		"Name":        {"type": "string", "minLength": 1, "maxLength": 80},
		"Description": {"type": "string", "maxLength": 255}
	}
}`

var resourceSchemas = map[string]*gojsonschema.Schema{}

func init() {
	for typeName, raw := range map[string]string{
		TypePushTopic:        pushTopicSchema,
		TypeStreamingChannel: streamingChannelSchema,
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("config: invalid %s schema: %v", typeName, err))
		}
		resourceSchemas[typeName] = schema
	}
}

// validateResource checks one resource entry: the type must be known, the
// spec must satisfy the type's schema, and the referencing/declarative rules
// plus the ApiVersion-conditional notification fields must hold.
func validateResource(res ResourceConfig) []string {
	schema, ok := resourceSchemas[res.Type]
	if !ok {
		return []string{fmt.Sprintf("type must be %q or %q, got %q", TypePushTopic, TypeStreamingChannel, res.Type)}
	}
	if len(res.Spec) == 0 {
		return []string{"spec must either uniquely identify a resource or fully define one"}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(res.Spec))
	if err != nil {
		return []string{err.Error()}
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	if len(problems) > 0 {
		return problems
	}

	switch res.Type {
	case TypePushTopic:
		problems = append(problems, validatePushTopicShape(res.Spec)...)
	case TypeStreamingChannel:
		problems = append(problems, validateStreamingChannelShape(res.Spec)...)
	}
	return problems
}

func hasField(spec map[string]any, name string) bool {
	_, ok := spec[name]
	return ok
}

// validatePushTopicShape enforces the rules the JSON schema cannot express:
// a single-field spec must be an identifier, a multi-field spec must carry
// the full definition, and the notification fields are gated on ApiVersion.
func validatePushTopicShape(spec map[string]any) []string {
	var problems []string

	if len(spec) == 1 {
		if !hasField(spec, "Id") && !hasField(spec, "Name") {
			problems = append(problems,
				"a single-field spec must be a unique identifier such as Id or Name")
		}
		return problems
	}
	for _, required := range []string{"Name", "ApiVersion", "Query"} {
		if !hasField(spec, required) {
			problems = append(problems,
				fmt.Sprintf("a full resource definition requires Name, ApiVersion and Query; missing %s", required))
		}
	}

	version, ok := numericField(spec, "ApiVersion")
	if !ok {
		return problems
	}
	if version >= 29.0 && hasField(spec, "NotifyForOperations") {
		problems = append(problems,
			"NotifyForOperations can only be specified for ApiVersion 28.0 and earlier")
	}
	if version <= 28.0 {
		for _, name := range []string{
			"NotifyForOperationCreate", "NotifyForOperationUpdate",
			"NotifyForOperationDelete", "NotifyForOperationUndelete",
		} {
			if hasField(spec, name) {
				problems = append(problems,
					fmt.Sprintf("%s can only be specified for ApiVersion 29.0 and later", name))
			}
		}
	}
	return problems
}

func validateStreamingChannelShape(spec map[string]any) []string {
	if len(spec) == 1 && !hasField(spec, "Id") && !hasField(spec, "Name") {
		return []string{"a single-field spec must be a unique identifier such as Id or Name"}
	}
	if len(spec) > 1 && !hasField(spec, "Name") {
		return []string{"a full resource definition requires Name"}
	}
	return nil
}

// numericField returns spec[name] as a float64, accepting the int and
// float shapes the YAML decoder produces.
func numericField(spec map[string]any, name string) (float64, bool) {
	switch v := spec[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
