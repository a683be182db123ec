package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaReflector is configured once so every SchemaFor call produces
// inline, ref-free schemas — the shape OpenAI/OpenRouter-compatible
// structured-output APIs expect. Grounded on
// Tangerg-lynx/pkg/json/schema.go's DefaultSchemaConfig and
// basegraphhq-basegraph/relay/common/llm/llm.go's direct use of
// invopop/jsonschema for tool/response schemas.
var schemaReflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// SchemaFor generates a JSON Schema document (as a map) for the Go type of
// v, suitable for use as Job.ResponseSchema. v is typically a pointer to a
// zero-value struct, e.g. SchemaFor(&payload) for a response struct such as
// internal/lead's planPayload.
func SchemaFor(v any) (map[string]any, error) {
	schema := schemaReflector.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("llm: schema round-trip: %w", err)
	}
	return m, nil
}

// CallStructured submits a Job built from prompt and the schema of out to
// client, and on success decodes the report's Data into out. It returns
// the raw Report alongside any error so callers can inspect Completed()
// and fall back deterministically, per spec.md §4 and §7.
func CallStructured(ctx context.Context, client Client, worker Worker, prompt string, out any) (Report, error) {
	schema, err := SchemaFor(out)
	if err != nil {
		return Report{}, err
	}
	job := Job{InputPrompt: prompt, ResponseSchema: schema}
	report, runErr := client.ARun(ctx, worker, job)
	if runErr != nil {
		return report, runErr
	}
	if !report.Completed() {
		return report, fmt.Errorf("llm: status %q", report.Status)
	}
	if err := report.DecodeData(out); err != nil {
		return report, fmt.Errorf("llm: decode structured output: %w", err)
	}
	return report, nil
}
