package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema defines the structure for input/output schemas
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Pattern     *string             `json:"pattern,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	MaxLength   *int                `json:"maxLength,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validate checks document against schema with gojsonschema. document may
// be any JSON-marshalable Go value (typically a decoded map).
func Validate(document interface{}, schema JSONSchema) (*ValidationResult, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return ValidateJSONSchema(document, raw)
}

// ValidateJSONSchema is Validate for a schema already in JSON form.
func ValidateJSONSchema(document interface{}, schemaJSON []byte) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
			if missing, ok := desc.Details()["property"].(string); ok {
				field = missing
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IntPtr is a helper for optional schema bounds.
func IntPtr(i int) *int {
	return &i
}

// StringPtr is a helper for optional schema patterns.
func StringPtr(s string) *string {
	return &s
}
