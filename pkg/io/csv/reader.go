// Package csv provides CSV file reading for tabular records.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
)

// Reader reads records from CSV files. Values are kept as strings and cast
// later against the model field schema.
type Reader struct {
	file    io.Closer
	reader  *csv.Reader
	headers []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeaders names the columns of a CSV without a header row.
func WithHeaders(headers []string) Option {
	return func(r *Reader) {
		r.headers = headers
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader creates a new CSV reader for filename.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := newReader(file, file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// FromReader creates a CSV reader over an already open stream.
func FromReader(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, nil, opts...)
}

func newReader(src io.Reader, closer io.Closer, opts ...Option) (*Reader, error) {
	r := &Reader{
		file:   closer,
		reader: csv.NewReader(src),
	}
	r.reader.FieldsPerRecord = -1

	for _, opt := range opts {
		opt(r)
	}

	// Read header if not provided
	if r.headers == nil {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, err
		}
		r.headers = headers
	}
	if len(r.headers) == 0 {
		return nil, errors.New("csv: no column names")
	}

	return r, nil
}

// Headers returns the column names.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns every row as a record.
func (r *Reader) Read() ([]detectors.Record, error) {
	var data []detectors.Record

	for {
		row, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data = append(data, r.record(row))
	}

	return data, nil
}

// Stream returns a channel of records for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan detectors.Record, error) {
	out := make(chan detectors.Record, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				row, err := r.reader.Read()
				if err == io.EOF {
					return
				}
				if err != nil {
					continue
				}

				select {
				case out <- r.record(row):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// record maps a row onto the column names. Extra cells are ignored and
// short rows leave the remaining fields out.
func (r *Reader) record(row []string) detectors.Record {
	rec := make(detectors.Record, len(r.headers))
	for i, name := range r.headers {
		if i >= len(row) {
			break
		}
		rec[name] = row[i]
	}
	return rec
}
