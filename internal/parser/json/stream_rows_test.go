package json

import (
	"context"
	"strings"
	"testing"

	"dwh/internal/ddl"
)

func TestStreamRows_SendsMappedRows(t *testing.T) {
	t.Parallel()

	rm, err := NewRowMapper([]ddl.ColumnDef{{Name: "song_id", Type: ddl.Text}, {Name: "year", Type: ddl.Int}}, AutoMapping, "")
	if err != nil {
		t.Fatalf("NewRowMapper: %v", err)
	}

	out := make(chan []any, 4)
	n, err := StreamRows(context.Background(), strings.NewReader(`{"song_id":"S1","year":0}{"song_id":"S2","year":2004}`), rm, Options{}, out)
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	close(out)
	if n != 2 {
		t.Fatalf("sent %d rows, want 2", n)
	}
	var ids []string
	for row := range out {
		ids = append(ids, row[0].(string))
	}
	if strings.Join(ids, ",") != "S1,S2" {
		t.Fatalf("ids = %v", ids)
	}
}

// TestStreamRows_StopsOnMalformed ensures rows decoded before a malformed
// object are reported and the error names the offending object.
func TestStreamRows_StopsOnMalformed(t *testing.T) {
	t.Parallel()

	rm, err := NewRowMapper([]ddl.ColumnDef{{Name: "year", Type: ddl.Int}}, AutoMapping, "")
	if err != nil {
		t.Fatalf("NewRowMapper: %v", err)
	}
	out := make(chan []any, 4)
	n, err := StreamRows(context.Background(), strings.NewReader(`{"year":1}{"year":"soon"}{"year":3}`), rm, Options{}, out)
	if err == nil || !strings.Contains(err.Error(), "object 2") {
		t.Fatalf("StreamRows error = %v, want object 2 failure", err)
	}
	if n != 1 {
		t.Fatalf("sent %d rows, want 1", n)
	}
}

func TestStreamRows_ContextCanceled(t *testing.T) {
	t.Parallel()

	rm, err := NewRowMapper([]ddl.ColumnDef{{Name: "year", Type: ddl.Int}}, AutoMapping, "")
	if err != nil {
		t.Fatalf("NewRowMapper: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan []any) // unbuffered: the send can only fail on ctx
	if _, err := StreamRows(ctx, strings.NewReader(`{"year":1}`), rm, Options{}, out); err == nil {
		t.Fatal("expected context error")
	}
}
