package assumption

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v2"
)

// ErrDecode is returned when a record cannot be parsed at all. It is distinct
// from the kernel's validation errors: the bytes never became a record.
var ErrDecode = errors.New("DECODE_FAILED")

// Format selects how Decode reads its input.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatJSON  Format = "json"
	FormatHJSON Format = "hjson"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a flag value to a Format. The empty string means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatHJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want auto, json, hjson or yaml)", s)
}

// FormatFromPath guesses a format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".hjson":
		return FormatHJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatAuto
}

// Decode parses one assumption record.
func Decode(data []byte, format Format) (Record, error) {
	var r Record
	if err := Unmarshal(data, format, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// DecodeScenarioSet parses a scenario set record.
func DecodeScenarioSet(data []byte, format Format) (ScenarioSet, error) {
	var s ScenarioSet
	if err := Unmarshal(data, format, &s); err != nil {
		return ScenarioSet{}, err
	}
	return s, nil
}

// Unmarshal decodes data into v with the same format handling as Decode.
// Request envelopes that embed a Record use it directly.
func Unmarshal(data []byte, format Format, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty input", ErrDecode)
	}
	switch format {
	case FormatJSON:
		return smartParse(data, v)
	case FormatHJSON:
		return parseHJSON(data, v)
	case FormatYAML:
		return parseYAML(data, v)
	case FormatAuto, "":
		if looksLikeJSON(data) {
			return smartParse(data, v)
		}
		return parseYAML(data, v)
	}
	return fmt.Errorf("%w: unknown format %q", ErrDecode, format)
}

// looksLikeJSON sniffs for an object, or a fenced block as language models
// tend to emit.
func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return bytes.HasPrefix(trimmed, []byte("{")) || bytes.HasPrefix(trimmed, []byte("```"))
}

// smartParse tries progressively more lenient readings of a JSON record:
//  1. strict JSON
//  2. JSON repaired by json-repair (quotes, trailing commas, code fences)
//  3. Hjson
func smartParse(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.RepairJSON(string(data)); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	if err := parseHJSON(data, v); err == nil {
		return nil
	}
	return fmt.Errorf("%w: all JSON parsing strategies failed", ErrDecode)
}

// parseHJSON reads Hjson into a generic tree and re-encodes it as JSON, so
// the record's json tags are the only schema.
func parseHJSON(data []byte, v interface{}) error {
	var tree interface{}
	if err := hjson.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("%w: hjson: %v", ErrDecode, err)
	}
	jsonBytes, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("%w: hjson re-encode: %v", ErrDecode, err)
	}
	if err := json.Unmarshal(jsonBytes, v); err != nil {
		return fmt.Errorf("%w: hjson: %v", ErrDecode, err)
	}
	return nil
}

func parseYAML(data []byte, v interface{}) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: yaml: %v", ErrDecode, err)
	}
	return nil
}
