// Package json decodes the JSON object streams found in the event and song
// datasets and maps each object onto the ordered columns of a staging table.
//
// Accepted input shapes:
//
//   - newline-delimited or simply concatenated objects:
//     {"id":1,"name":"a"}
//     {"id":2,"name":"b"}
//   - with AllowArrays, a top-level array of objects.
//
// Any other top-level value is a decode error: a malformed object aborts the
// load of the table it belongs to.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Options tunes the Decoder.
type Options struct {
	// AllowArrays expands top-level arrays of objects.
	AllowArrays bool
}

// Decoder reads JSON objects one at a time.
type Decoder struct {
	dec     *json.Decoder
	opt     Options
	pending []any
	n       int
}

// NewDecoder constructs a Decoder. Numbers are kept as json.Number so
// conversion can decide between integer and decimal targets.
func NewDecoder(r io.Reader, opt Options) *Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return &Decoder{dec: d, opt: opt}
}

// Count returns the number of objects returned so far.
func (d *Decoder) Count() int { return d.n }

// Next returns the next object, or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (map[string]any, error) {
	for {
		if len(d.pending) > 0 {
			elem := d.pending[0]
			d.pending = d.pending[1:]
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("json: object %d: array element is %T, not an object", d.n+1, elem)
			}
			d.n++
			return obj, nil
		}

		var raw any
		if err := d.dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("json: object %d: decode: %w", d.n+1, err)
		}

		switch v := raw.(type) {
		case map[string]any:
			d.n++
			return v, nil
		case []any:
			if !d.opt.AllowArrays {
				return nil, fmt.Errorf("json: object %d: top-level array encountered but arrays are not allowed", d.n+1)
			}
			d.pending = v
		default:
			return nil, fmt.Errorf("json: object %d: unsupported top-level JSON type %T", d.n+1, v)
		}
	}
}

// DecodeAll reads every object from r. It is meant for small inputs such as
// fixtures and JSONPaths documents.
func DecodeAll(r io.Reader, opt Options) ([]map[string]any, error) {
	dec := NewDecoder(r, opt)
	var out []map[string]any
	for {
		obj, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
}
