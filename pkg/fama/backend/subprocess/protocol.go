package subprocess

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaVersion is the version of the batch protocol spoken over stdin and
// stdout. Responses carrying any other version are rejected.
const SchemaVersion = "1.0"

// BatchInput is written as JSON to the stdin of a batch command.
type BatchInput struct {
	SchemaVersion string      `json:"$schemaVersion"`
	Files         []BatchFile `json:"files"`
}

// BatchFile is one file of a batch request.
type BatchFile struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// BatchOutput is read as JSON from the stdout of a batch command.
// Results[i] answers Files[i].
type BatchOutput struct {
	SchemaVersion string        `json:"$schemaVersion"`
	Results       []BatchResult `json:"results"`
}

// BatchResult carries either the formatted source or the formatter's
// diagnostic for one file.
type BatchResult struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// batchOutputSchema constrains the shape of a batch response. The version
// value itself is compared separately so a mismatch can name both versions.
const batchOutputSchema = `{
  "type": "object",
  "required": ["$schemaVersion", "results"],
  "properties": {
    "$schemaVersion": {"type": "string"},
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "output": {"type": "string"},
          "error": {"type": "string"}
        },
        "oneOf": [
          {"required": ["output"], "not": {"required": ["error"]}},
          {"required": ["error"], "not": {"required": ["output"]}}
        ]
      }
    }
  }
}`

var loadBatchSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(batchOutputSchema))
})

// validateBatchOutput checks raw stdout against batchOutputSchema.
func validateBatchOutput(data []byte) error {
	schema, err := loadBatchSchema()
	if err != nil {
		return fmt.Errorf("invalid batch schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to decode batch output: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("batch output violates protocol: %s", strings.Join(problems, "; "))
}
