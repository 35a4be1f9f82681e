package json

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// StreamRows decodes every object in r, maps it with rm and sends the rows
// to out. It returns the number of rows sent.
//
// The first decode or conversion failure stops the stream; the caller is
// expected to abandon the whole load. out is not closed.
func StreamRows(
	ctx context.Context,
	r io.Reader,
	rm *RowMapper,
	opt Options,
	out chan<- []any,
) (int, error) {
	dec := NewDecoder(r, opt)
	sent := 0
	for {
		obj, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
		row, err := rm.Map(obj)
		if err != nil {
			return sent, fmt.Errorf("json: object %d: %w", dec.Count(), err)
		}
		select {
		case out <- row:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
}
