package json

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) []map[string]any {
	t.Helper()
	recs, err := ReadRecords(context.Background(), strings.NewReader(input), 0)
	require.NoError(t, err)
	return recs
}

// TestStreamRecords_RootArray verifies one record per array element.
func TestStreamRecords_RootArray(t *testing.T) {
	t.Parallel()

	recs := collect(t, `[{"id":1},{"id":2},null,{"id":3}]`)
	require.Len(t, recs, 3, "null elements are skipped")
	require.Equal(t, json.Number("2"), recs[1]["id"])
}

// TestStreamRecords_Envelope verifies the array field of an envelope object
// is streamed and the remaining envelope fields are skipped.
func TestStreamRecords_Envelope(t *testing.T) {
	t.Parallel()

	recs := collect(t, `{"orders":[{"id":"a"},{"id":"b"}],"total":2,"page":{"next":null}}`)
	require.Len(t, recs, 2)
	require.Equal(t, "a", recs[0]["id"])
}

// TestStreamRecords_SingleObject verifies a plain object emits one record.
func TestStreamRecords_SingleObject(t *testing.T) {
	t.Parallel()

	recs := collect(t, `{"id":"x","qty":2,"vendor":{"name":"acme"}}`)
	require.Len(t, recs, 1)
	require.Equal(t, map[string]any{"name": "acme"}, recs[0]["vendor"])
}

// TestStreamRecords_NDJSON verifies trailing top-level objects stream as
// records.
func TestStreamRecords_NDJSON(t *testing.T) {
	t.Parallel()

	recs := collect(t, "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n")
	require.Len(t, recs, 3)
}

// TestStreamRecords_UseNumber verifies numbers arrive as json.Number so the
// classifier can tell integer literals from floats.
func TestStreamRecords_UseNumber(t *testing.T) {
	t.Parallel()

	recs := collect(t, `[{"qty":2,"ratio":1.5}]`)
	require.Equal(t, json.Number("2"), recs[0]["qty"])
	require.Equal(t, json.Number("1.5"), recs[0]["ratio"])
}

// TestStreamRecords_NonObjectElement verifies scalar array elements are
// rejected with an error rather than silently dropped.
func TestStreamRecords_NonObjectElement(t *testing.T) {
	t.Parallel()

	_, err := ReadRecords(context.Background(), strings.NewReader(`[1,2,3]`), 0)
	require.Error(t, err)
}

// TestReadRecords_Bounded verifies the record cap stops ingestion early
// without surfacing the internal early-stop cancellation as an error.
func TestReadRecords_Bounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"root array", `[{"id":1},{"id":2},{"id":3}]`},
		{"envelope", `{"orders":[{"id":1},{"id":2},{"id":3}],"total":3}`},
		{"ndjson", "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recs, err := ReadRecords(context.Background(), strings.NewReader(tt.input), 2)
			require.NoError(t, err)
			require.Len(t, recs, 2)
		})
	}
}

// TestStreamRecords_Empty verifies empty input produces no records and no
// error.
func TestStreamRecords_Empty(t *testing.T) {
	t.Parallel()

	recs, err := ReadRecords(context.Background(), strings.NewReader(""), 0)
	require.NoError(t, err)
	require.Empty(t, recs)
}

// TestStreamRecords_ParseErrCallback verifies the error seam reports the
// failing record number.
func TestStreamRecords_ParseErrCallback(t *testing.T) {
	t.Parallel()

	out := make(chan map[string]any, 8)
	var gotN int
	err := StreamRecords(context.Background(), strings.NewReader(`{"id":1}{"broken`), out, func(n int, err error) {
		gotN = n
	})
	require.Error(t, err)
	require.Equal(t, 2, gotN)
}
