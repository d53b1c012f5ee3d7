package tarshard

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bcongdon/tarshard/internal/pkg/shardio"
)

// EOF is returned by Read when an epoch has no more data. Any other error
// terminates the epoch.
var EOF = shardio.EOF

// Record is a group of archive entries sharing a key, before decoding.
type Record = shardio.Record

// Sample is a decoded row. Its i-th element holds the i-th requested field.
type Sample []interface{}

// RecordReader is a stateful stream of records. Read should not be called
// concurrently.
type RecordReader interface {
	Read(ctx context.Context) (Record, error)
}

// SampleReader is a stateful stream of samples. Read should not be called
// concurrently.
type SampleReader interface {
	Read(ctx context.Context) (Sample, error)
}

// SampleFunc transforms one sample.
type SampleFunc func(Sample) (Sample, error)

// tupleReader projects records to samples holding only the requested
// fields, decoding each.
type tupleReader struct {
	in     RecordReader
	fields []field
}

func (t *tupleReader) Read(ctx context.Context) (Sample, error) {
	rec, err := t.in.Read(ctx)
	if err != nil {
		return nil, err
	}
	sample := make(Sample, len(t.fields))
	for i, f := range t.fields {
		data, ok := f.lookup(rec)
		if !ok {
			return nil, fmt.Errorf("%s: record %s has no field %q", rec.URL, rec.Key, f.key)
		}
		if sample[i], err = f.decode(data); err != nil {
			return nil, fmt.Errorf("%s: record %s: decoding %q: %w", rec.URL, rec.Key, f.key, err)
		}
	}
	return sample, nil
}

// mapReader applies fn to every sample of in.
type mapReader struct {
	in SampleReader
	fn SampleFunc
}

func (m *mapReader) Read(ctx context.Context) (Sample, error) {
	sample, err := m.in.Read(ctx)
	if err != nil {
		return nil, err
	}
	return m.fn(sample)
}

// mapSamples returns a reader applying fn to in.
func mapSamples(in SampleReader, fn SampleFunc) SampleReader {
	return &mapReader{in: in, fn: fn}
}

// processFields returns a SampleFunc applying each field's process
// function to the corresponding element.
func processFields(fields []field) SampleFunc {
	return func(sample Sample) (Sample, error) {
		for i, f := range fields {
			value, err := f.process(sample[i])
			if err != nil {
				return nil, fmt.Errorf("processing %q: %w", f.key, err)
			}
			sample[i] = value
		}
		return sample, nil
	}
}

// firstAsText converts the first element of a sample from UTF-8 bytes
// to a string. A first element that is already a string is kept.
func firstAsText(sample Sample) (Sample, error) {
	if len(sample) == 0 {
		return sample, nil
	}
	switch v := sample[0].(type) {
	case string:
	case []byte:
		if !utf8.Valid(v) {
			return nil, fmt.Errorf("first field is not valid UTF-8")
		}
		sample[0] = string(v)
	default:
		return nil, fmt.Errorf("first field has type %T, want bytes or string", v)
	}
	return sample, nil
}
