package tarshard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidField is wrapped by errors for misconfigured fields.
var ErrInvalidField = errors.New("invalid field")

// Field keys naming record metadata rather than an entry
const (
	keyField = "__key__"
	urlField = "__url__"
)

// DecodeFunc decodes the raw contents of a record entry.
type DecodeFunc func(data []byte) (interface{}, error)

// ProcessFunc transforms a decoded value.
type ProcessFunc func(value interface{}) (interface{}, error)

// Field selects one element of a Sample. Key names the entry extension
// to read; alternatives may be separated by ';' ("jpg;png"), in which case
// the first extension present in the record is used. A nil Decode or
// Process leaves the value unchanged.
type Field struct {
	Key     string
	Decode  DecodeFunc
	Process ProcessFunc
}

// Fields zips parallel lists of keys, decoders and processors into Fields.
// decoders and processors may be nil, but otherwise must have one entry
// per key.
func Fields(keys []string, decoders []DecodeFunc, processors []ProcessFunc) ([]Field, error) {
	if decoders != nil && len(decoders) != len(keys) {
		return nil, fmt.Errorf("%w: %d keys but %d decoders", ErrInvalidField, len(keys), len(decoders))
	}
	if processors != nil && len(processors) != len(keys) {
		return nil, fmt.Errorf("%w: %d keys but %d processors", ErrInvalidField, len(keys), len(processors))
	}
	fields := make([]Field, len(keys))
	for i, key := range keys {
		fields[i].Key = key
		if decoders != nil {
			fields[i].Decode = decoders[i]
		}
		if processors != nil {
			fields[i].Process = processors[i]
		}
	}
	return fields, nil
}

// field is a validated Field.
type field struct {
	key        string
	extensions []string
	decode     DecodeFunc
	process    ProcessFunc
}

func compileFields(fields []Field) ([]field, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields requested", ErrInvalidField)
	}
	seen := make(map[string]bool)
	compiled := make([]field, len(fields))
	for i, f := range fields {
		var exts []string
		for _, ext := range strings.Split(f.Key, ";") {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext == "" {
				return nil, fmt.Errorf("%w: field %d has an empty key %q", ErrInvalidField, i, f.Key)
			}
			exts = append(exts, ext)
		}
		if seen[f.Key] {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidField, f.Key)
		}
		seen[f.Key] = true

		compiled[i] = field{
			key:        f.Key,
			extensions: exts,
			decode:     f.Decode,
			process:    f.Process,
		}
		if compiled[i].decode == nil {
			compiled[i].decode = DecodeBytes
		}
		if compiled[i].process == nil {
			compiled[i].process = IdentityProcess
		}
	}
	return compiled, nil
}

// lookup returns the raw entry for the field. The keys "__key__" and
// "__url__" select the record's key and shard URL.
func (f field) lookup(rec Record) ([]byte, bool) {
	for _, ext := range f.extensions {
		switch ext {
		case keyField:
			return []byte(rec.Key), true
		case urlField:
			return []byte(rec.URL), true
		}
		if data, ok := rec.Fields[ext]; ok {
			return data, true
		}
	}
	return nil, false
}

// DecodeBytes returns the entry contents unchanged.
func DecodeBytes(data []byte) (interface{}, error) {
	return data, nil
}

// DecodeText decodes the entry as a string.
func DecodeText(data []byte) (interface{}, error) {
	return string(data), nil
}

// DecodeInt decodes the entry as a base 10 integer.
func DecodeInt(data []byte) (interface{}, error) {
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeFloats returns a DecodeFunc that parses a sep-delimited list of
// numbers, such as an embedding written by Writer, into a []float32.
func DecodeFloats(sep string) DecodeFunc {
	return func(data []byte) (interface{}, error) {
		text := strings.TrimSpace(string(data))
		if text == "" {
			return []float32{}, nil
		}
		parts := strings.Split(text, sep)
		values := make([]float32, len(parts))
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
			if err != nil {
				return nil, fmt.Errorf("component %d: %w", i, err)
			}
			values[i] = float32(v)
		}
		return values, nil
	}
}

// IdentityProcess returns value unchanged.
func IdentityProcess(value interface{}) (interface{}, error) {
	return value, nil
}
