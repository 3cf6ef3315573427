package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultSchema is a permissive schema for tensile test reports. It only
// rejects records that are empty or whose well-known fields have impossible
// types; unknown keys are always allowed.
const DefaultSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"definitions": {
		"scalar": {"type": ["string", "number"]},
		"measurement": {"type": ["string", "number", "object", "array"]}
	},
	"properties": {
		"产品型号": {"$ref": "#/definitions/scalar"},
		"产品名称": {"$ref": "#/definitions/scalar"},
		"报告编号": {"$ref": "#/definitions/scalar"},
		"product_model": {"$ref": "#/definitions/scalar"},
		"report_number": {"$ref": "#/definitions/scalar"},
		"最大力": {"$ref": "#/definitions/measurement"},
		"屈服强度": {"$ref": "#/definitions/measurement"},
		"抗拉强度": {"$ref": "#/definitions/measurement"},
		"断后伸长率": {"$ref": "#/definitions/measurement"},
		"maximum_force": {"$ref": "#/definitions/measurement"},
		"yield_strength": {"$ref": "#/definitions/measurement"},
		"tensile_strength": {"$ref": "#/definitions/measurement"},
		"elongation_after_fracture": {"$ref": "#/definitions/measurement"}
	}
}`

// Schema validates extracted records.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(data []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("report.schema.json", bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to load report schema: %w", err)
	}
	compiled, err := compiler.Compile("report.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile report schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// LoadSchema compiles the schema at path, or DefaultSchema when path is empty.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return CompileSchema([]byte(DefaultSchema))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report schema: %w", err)
	}
	return CompileSchema(data)
}

// Validate returns human-readable schema issues for record, sorted. Issues
// are advisory; a record with issues is still a valid extraction.
func Validate(schema *Schema, record Record) []string {
	if schema == nil || record == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees plain JSON types.
	raw, err := json.Marshal(record)
	if err != nil {
		return []string{fmt.Sprintf("record is not serializable: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{fmt.Sprintf("record is not serializable: %v", err)}
	}

	err = schema.compiled.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var issues []string
	collectLeaves(ve, &issues)
	sort.Strings(issues)
	return issues
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		// Locations are percent-encoded JSON pointers.
		loc := ve.InstanceLocation
		if decoded, err := url.PathUnescape(loc); err == nil {
			loc = decoded
		}
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}
