package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

const (
	AnimeRecordSchema      = "anime-record"
	RecommendRequestSchema = "recommend-request"
)

var schemaFiles = map[string]string{
	AnimeRecordSchema:      "anime-record.json",
	RecommendRequestSchema: "recommend-request.json",
}

// SchemaValidator handles JSON schema validation for catalog records and API requests
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a validator with the embedded schemas already loaded
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	if err := sv.LoadSchemaFromFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadSchemaFromFS loads schemas from a filesystem
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, schemaDir string) error {
	for name, filename := range schemaFiles {
		schemaPath := path.Join(schemaDir, filename)

		schemaBytes, err := fs.ReadFile(fsys, schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}

		sv.schemas[name] = schema
	}

	return nil
}

// ValidateAnimeRecord validates one raw catalog record
func (sv *SchemaValidator) ValidateAnimeRecord(raw []byte) *ValidationResult {
	return sv.validate(AnimeRecordSchema, raw)
}

// ValidateJSONString validates a JSON string against a schema
func (sv *SchemaValidator) ValidateJSONString(schemaName, jsonString string) *ValidationResult {
	return sv.validate(schemaName, jsonString)
}

// SchemaExists checks if a schema with the given name is loaded
func (sv *SchemaValidator) SchemaExists(name string) bool {
	_, exists := sv.schemas[name]
	return exists
}

func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "validation",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	if !result.Valid() {
		for _, err := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
				Code:    "VALIDATION_ERROR",
				Value:   err.Value(),
				Context: err.Context().String(),
			})
		}
	}

	return validationResult
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Context string      `json:"context,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// Err folds the failures into a single error, or nil when valid
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	if len(vr.Errors) == 1 {
		return vr.Errors[0]
	}
	return fmt.Errorf("%d validation errors, first: %w", len(vr.Errors), vr.Errors[0])
}

// ToAPIError converts validation errors to API error format
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	details := map[string]interface{}{
		"validationErrors": vr.Errors,
	}
	if len(fieldErrors) > 0 {
		details["fieldErrors"] = fieldErrors
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": details,
		},
	}
}
