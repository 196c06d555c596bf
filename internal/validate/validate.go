// Package validate checks an incoming specification document in two layers:
// a structural pass enumerating every offending path, then a JSON-schema pass
// with optional best-effort AI normalization of repairable input.
package validate

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Kira7dn/video-create/internal/agent"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/spec"
)

//go:embed schema.json
var schemaDoc string

// FieldError describes a single validation failure at a document path.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Error is the aggregate validation failure for a document.
type Error struct {
	Errors []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return "invalid specification: " + strings.Join(msgs, "; ")
}

// Validator performs layered validation of raw spec documents.
type Validator struct {
	schema *gojsonschema.Schema
	agent  *agent.Agent
}

// New compiles the embedded schema. The agent may be nil.
func New(ag *agent.Agent) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaDoc))
	if err != nil {
		return nil, fmt.Errorf("compiling spec schema: %w", err)
	}
	return &Validator{schema: schema, agent: ag}, nil
}

// Validate runs the structural and schema passes over raw and returns the
// decoded specification. The structural pass is the gate; schema findings are
// handed to the AI normalizer when available, and when no repair comes back
// the input passes through unchanged with the findings logged.
func (v *Validator) Validate(ctx context.Context, raw []byte) (*spec.VideoSpec, error) {
	if errs := checkStructure(raw); len(errs) > 0 {
		return nil, &Error{Errors: errs}
	}

	errs, err := v.checkSchema(raw)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		if repaired := v.tryNormalize(ctx, raw, errs); repaired != nil {
			raw = repaired
		} else {
			logger.Warn("schema findings not repaired, passing input through",
				"findings", len(errs))
		}
	}

	var vs spec.VideoSpec
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("decoding specification: %w", err)
	}
	if err := vs.ValidateIDs(); err != nil {
		return nil, &Error{Errors: []FieldError{{Field: "segments", Description: err.Error()}}}
	}
	return &vs, nil
}

// checkStructure verifies the document shape without a schema: a JSON object
// with title, description, and a non-empty segments list whose entries are
// objects carrying an id.
func checkStructure(raw []byte) []FieldError {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []FieldError{{Field: "(root)", Description: "document is not a JSON object"}}
	}

	var errs []FieldError
	for _, key := range []string{"title", "description", "segments"} {
		if _, ok := doc[key]; !ok {
			errs = append(errs, FieldError{Field: key, Description: "missing required field"})
		}
	}
	segRaw, ok := doc["segments"]
	if !ok {
		return errs
	}

	var segments []json.RawMessage
	if err := json.Unmarshal(segRaw, &segments); err != nil {
		errs = append(errs, FieldError{Field: "segments", Description: "must be a list"})
		return errs
	}
	if len(segments) == 0 {
		errs = append(errs, FieldError{Field: "segments", Description: "must not be empty"})
		return errs
	}
	for i, sr := range segments {
		path := fmt.Sprintf("segments[%d]", i)
		var seg map[string]json.RawMessage
		if err := json.Unmarshal(sr, &seg); err != nil {
			errs = append(errs, FieldError{Field: path, Description: "must be an object"})
			continue
		}
		idRaw, ok := seg["id"]
		if !ok {
			errs = append(errs, FieldError{Field: path, Description: "missing required 'id'"})
			continue
		}
		var id string
		if err := json.Unmarshal(idRaw, &id); err != nil || id == "" {
			errs = append(errs, FieldError{Field: path + ".id", Description: "must be a non-empty string"})
		}
	}
	return errs
}

func (v *Validator) checkSchema(raw []byte) ([]FieldError, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	errs := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, FieldError{Field: re.Field(), Description: re.Description()})
	}
	return errs, nil
}

// tryNormalize asks the agent to repair raw given the schema findings and
// re-validates the result. Any failure returns nil and the original findings
// stand; normalization never invents a passing document.
func (v *Validator) tryNormalize(ctx context.Context, raw []byte, errs []FieldError) []byte {
	if !v.agent.Enabled() {
		return nil
	}
	issues := make([]string, len(errs))
	for i, fe := range errs {
		issues[i] = fe.String()
	}
	repaired, err := v.agent.NormalizeSpec(ctx, raw, issues)
	if err != nil {
		logger.AgentFallback("normalize_spec", err)
		return nil
	}
	if structErrs := checkStructure(repaired); len(structErrs) > 0 {
		logger.Warn("normalized specification still structurally invalid", "errors", len(structErrs))
		return nil
	}
	schemaErrs, err := v.checkSchema(repaired)
	if err != nil || len(schemaErrs) > 0 {
		logger.Warn("normalized specification still fails schema", "errors", len(schemaErrs))
		return nil
	}
	logger.Info("specification normalized by agent", "original_issues", len(errs))
	return repaired
}
