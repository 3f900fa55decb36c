package session

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	recordFormatVersionCurrent = 1
	recordHeaderSize           = 1 + 8
	dataFormatVersionCurrent   = 1
)

// EncodeRecord serializes a record for the cache tier as
// [version][int64 big-endian timestamp][msgpack data]. The id is not part of the payload;
// it is the storage key.
func EncodeRecord(rec Record) ([]byte, error) {
	payload, err := msgpack.Marshal(nonNilMap(rec.Data))
	if err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(recordHeaderSize + len(payload))
	buf.WriteByte(recordFormatVersionCurrent)
	if err := binary.Write(&buf, binary.BigEndian, rec.Timestamp); err != nil {
		return nil, err
	}
	buf.Write(payload)

	return buf.Bytes(), nil
}

// DecodeRecord parses a payload produced by [EncodeRecord] and attaches id to it.
func DecodeRecord(id string, raw []byte) (Record, error) {
	if len(raw) == 0 {
		return Record{}, fmt.Errorf("%w: empty payload", ErrCorruptRecord)
	}
	if raw[0] != recordFormatVersionCurrent {
		return Record{}, fmt.Errorf("%w: %d", ErrUnsupportedRecordVersion, raw[0])
	}
	if len(raw) < recordHeaderSize {
		return Record{}, fmt.Errorf("%w: truncated header", ErrCorruptRecord)
	}

	ts := int64(binary.BigEndian.Uint64(raw[1:recordHeaderSize]))
	data, err := decodeMap(raw[recordHeaderSize:])
	if err != nil {
		return Record{}, err
	}

	return Record{ID: id, Data: data, Timestamp: ts}, nil
}

// EncodeData serializes session data alone, as stored in the durable "data" column.
func EncodeData(data map[string]any) ([]byte, error) {
	payload, err := msgpack.Marshal(nonNilMap(data))
	if err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, dataFormatVersionCurrent)
	return append(out, payload...), nil
}

// DecodeData parses a payload produced by [EncodeData].
func DecodeData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptRecord)
	}
	if raw[0] != dataFormatVersionCurrent {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRecordVersion, raw[0])
	}
	return decodeMap(raw[1:])
}

func decodeMap(payload []byte) (map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.UseLooseInterfaceDecoding(true)

	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if v == nil {
		return map[string]any{}, nil
	}

	m, ok := Normalize(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T, not a map", ErrCorruptRecord, v)
	}
	return m, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
