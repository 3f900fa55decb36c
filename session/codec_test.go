package session_test

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

func TestRecordCodecPreservesValues(t *testing.T) {
	rec := session.Record{
		Data: map[string]any{
			"str":   "x",
			"int":   int64(-5),
			"big":   uint64(math.MaxUint64),
			"float": 1.5,
			"bool":  true,
			"nil":   nil,
			"bytes": []byte{0, 1},
			"list":  []any{int64(1), "two"},
			"map":   map[string]any{"deep": map[string]any{"x": int64(1)}},
		},
		Timestamp: 1_700_000_123,
	}

	raw, err := session.EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := session.DecodeRecord("id1", raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "id1" || got.Timestamp != rec.Timestamp {
		t.Fatalf("unexpected header: %+v", got)
	}
	if !reflect.DeepEqual(got.Data, rec.Data) {
		t.Fatalf("data mismatch:\n got %#v\nwant %#v", got.Data, rec.Data)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	raw, err := session.EncodeRecord(session.Record{Data: map[string]any{"a": "b"}, Timestamp: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw[0] = 99
	if _, err := session.DecodeRecord("x", raw); !errors.Is(err, session.ErrUnsupportedRecordVersion) {
		t.Fatalf("expected ErrUnsupportedRecordVersion, got %v", err)
	}

	data, err := session.EncodeData(map[string]any{"a": "b"})
	if err != nil {
		t.Fatalf("encode data: %v", err)
	}
	data[0] = 0
	if _, err := session.DecodeData(data); !errors.Is(err, session.ErrUnsupportedRecordVersion) {
		t.Fatalf("expected ErrUnsupportedRecordVersion, got %v", err)
	}
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	if _, err := session.DecodeRecord("x", []byte{1, 0, 0}); !errors.Is(err, session.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
	if _, err := session.DecodeRecord("x", nil); !errors.Is(err, session.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord for empty payload, got %v", err)
	}
}

func TestNormalizeCanonicalizesTypes(t *testing.T) {
	type point struct {
		X int
	}
	got := session.NormalizeMap(map[string]any{
		"i":  int32(3),
		"u":  uint16(4),
		"f":  float32(0.5),
		"m":  map[any]any{1: "one"},
		"s":  []string{"a"},
		"st": point{X: 1},
	})

	want := map[string]any{
		"i":  int64(3),
		"u":  int64(4),
		"f":  float64(0.5),
		"m":  map[string]any{"1": "one"},
		"s":  []any{"a"},
		"st": map[string]any{"X": int64(1)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalize mismatch:\n got %#v\nwant %#v", got, want)
	}
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"x": int64(1)}}
	src := map[string]any{"a": map[string]any{"y": int64(2)}, "b": "c"}

	out := session.Merge(dst, src)
	out["a"].(map[string]any)["z"] = int64(3)

	if _, leaked := dst["a"].(map[string]any)["z"]; leaked {
		t.Fatal("merge result must not alias dst")
	}
	if _, leaked := src["a"].(map[string]any)["z"]; leaked {
		t.Fatal("merge result must not alias src")
	}
	if len(out["a"].(map[string]any)) != 3 || out["b"] != "c" {
		t.Fatalf("unexpected merge result %#v", out)
	}
}
