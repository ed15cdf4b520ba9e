// Package json streams nested records out of JSON payloads.
//
// Streaming behavior:
//   - If the root is a JSON array, each object element is emitted one-by-one.
//   - If the root is an object containing an array-of-objects field, that
//     array is streamed one-by-one (envelope pattern) and the remaining
//     envelope fields are skipped.
//   - If the root is a plain object, it is emitted as one record.
//   - Trailing top-level objects (NDJSON style) are emitted afterwards.
//
// Numbers are decoded with UseNumber so downstream classification can tell
// integer literals from floating point ones.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// StreamRecords parses JSON from r and sends each record into out. The
// channel is not closed; that is the caller's job. onParseErr, when non-nil,
// is invoked with the 1-based record number before a decode error is
// returned.
func StreamRecords(
	ctx context.Context,
	r io.Reader,
	out chan<- map[string]any,
	onParseErr func(n int, err error),
) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	n := 0
	emit := func(obj map[string]any) error {
		n++
		select {
		case out <- obj:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	fail := func(err error, context string) error {
		if onParseErr != nil {
			onParseErr(n+1, err)
		}
		return fmt.Errorf("json: %s: %w", context, err)
	}

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fail(err, "read first token")
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	switch d {
	case '[':
		if err := streamArrayOfObjects(ctx, dec, emit); err != nil {
			return fail(err, "stream root array")
		}
		if end, err := dec.Token(); err != nil {
			return fail(err, "read array end")
		} else if end != json.Delim(']') {
			return fmt.Errorf("json: expected array end ']', got %v", end)
		}
		return streamTrailing(dec, emit, onParseErr, &n)

	case '{':
		streamed, single, err := streamEnvelopeOrSingle(ctx, dec, emit)
		if err != nil {
			return fail(err, "stream root object")
		}
		if end, err := dec.Token(); err != nil {
			return fail(err, "read object end")
		} else if end != json.Delim('}') {
			return fmt.Errorf("json: expected object end '}', got %v", end)
		}
		if !streamed && single != nil {
			if err := emit(single); err != nil {
				return err
			}
		}
		return streamTrailing(dec, emit, onParseErr, &n)

	default:
		return fmt.Errorf("json: unsupported root delimiter %q", d)
	}
}

// ReadRecords collects up to max records from r. A max <= 0 means unbounded.
func ReadRecords(ctx context.Context, r io.Reader, max int) ([]map[string]any, error) {
	out := make(chan map[string]any)
	errc := make(chan error, 1)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		errc <- StreamRecords(streamCtx, r, out, nil)
		close(out)
	}()

	var recs []map[string]any
	for rec := range out {
		recs = append(recs, rec)
		if max > 0 && len(recs) >= max {
			cancel()
			break
		}
	}
	// Drain so the streaming goroutine can finish.
	for range out {
	}
	// The stream error arrives wrapped, so unwrap before deciding whether
	// this is our own early-stop cancellation.
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return recs, err
	}
	return recs, nil
}

func streamTrailing(dec *json.Decoder, emit func(map[string]any) error, onParseErr func(int, error), n *int) error {
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if err == io.EOF {
				return nil
			}
			if onParseErr != nil {
				onParseErr(*n+1, err)
			}
			return fmt.Errorf("json: decode trailing object: %w", err)
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
}

// streamArrayOfObjects streams elements of the current array (after '[' has
// been consumed). nil elements are skipped; non-object elements are an error.
func streamArrayOfObjects(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) error {
	for dec.More() {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode array element: %w", err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("array element not an object (got %T)", raw)
		}
		if err := emit(obj); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// streamEnvelopeOrSingle walks a root object (after '{' has been consumed).
// The first field holding an array is streamed as records; when no array
// field exists the whole object is returned as one record.
func streamEnvelopeOrSingle(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) (streamed bool, single map[string]any, _ error) {
	single = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return false, nil, fmt.Errorf("object key not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("read object value token: %w", err)
		}

		if delim, ok := valTok.(json.Delim); ok && delim == '[' {
			if err := streamArrayOfObjects(ctx, dec, emit); err != nil {
				return false, nil, err
			}
			endTok, err := dec.Token()
			if err != nil {
				return false, nil, fmt.Errorf("read envelope array end: %w", err)
			}
			if endTok != json.Delim(']') {
				return false, nil, fmt.Errorf("expected ']' after envelope array, got %v", endTok)
			}

			// Skip remaining envelope fields without materializing them.
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return true, nil, fmt.Errorf("skip envelope key: %w", err)
				}
				if err := skipNextValue(dec); err != nil {
					return true, nil, err
				}
			}
			return true, nil, nil
		}

		val, err := materializeValue(dec, valTok)
		if err != nil {
			return false, nil, err
		}
		single[key] = val
	}

	return false, single, nil
}

func skipNextValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("skip value token: %w", err)
	}
	return skipValue(dec, tok)
}

func skipValue(dec *json.Decoder, tok any) error {
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("skip object key: %w", err)
			}
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("skip object end: %w", err)
		} else if end != json.Delim('}') {
			return fmt.Errorf("expected '}', got %v", end)
		}
		return nil
	case '[':
		for dec.More() {
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("skip array end: %w", err)
		} else if end != json.Delim(']') {
			return fmt.Errorf("expected ']', got %v", end)
		}
		return nil
	default:
		return fmt.Errorf("unexpected delimiter %q", d)
	}
}

// materializeValue builds a Go value for the current JSON value, given its
// first token. Only the single-root-record case reaches here, so values stay
// small.
func materializeValue(dec *json.Decoder, tok any) (any, error) {
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '{':
			m := make(map[string]any)
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("read nested object key: %w", err)
				}
				k, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("nested object key not string (got %T)", kt)
				}
				vt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("read nested object value token: %w", err)
				}
				v, err := materializeValue(dec, vt)
				if err != nil {
					return nil, err
				}
				m[k] = v
			}
			if end, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("read nested object end: %w", err)
			} else if end != json.Delim('}') {
				return nil, fmt.Errorf("expected '}', got %v", end)
			}
			return m, nil

		case '[':
			var arr []any
			for dec.More() {
				vt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("read nested array value token: %w", err)
				}
				v, err := materializeValue(dec, vt)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if end, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("read nested array end: %w", err)
			} else if end != json.Delim(']') {
				return nil, fmt.Errorf("expected ']', got %v", end)
			}
			return arr, nil

		default:
			return nil, fmt.Errorf("unexpected delimiter %q", d)
		}
	}
	return tok, nil
}
