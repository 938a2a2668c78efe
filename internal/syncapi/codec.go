package syncapi

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformed is returned when a message lacks a required key or carries
// a value of the wrong kind.
var ErrMalformed = errors.New("malformed sync message")

// Record is an entity as the server stores it. Timestamps are unix seconds.
type Record struct {
	ID        string
	Version   int64
	UpdatedAt int64
	DeletedAt *int64
	Fields    map[string]any
}

// Mutation is the body of Create, Update and Delete requests.
type Mutation struct {
	Type   string
	ID     string
	Fields map[string]any
}

// ListQuery selects records of Type with version greater than Since.
type ListQuery struct {
	Type  string
	Since int64
}

func recordMap(r Record) map[string]any {
	m := map[string]any{
		"id":         r.ID,
		"version":    r.Version,
		"updated_at": r.UpdatedAt,
		"fields":     fieldsOrEmpty(r.Fields),
	}
	if r.DeletedAt != nil {
		m["deleted_at"] = *r.DeletedAt
	} else {
		m["deleted_at"] = nil
	}
	return m
}

func fieldsOrEmpty(f map[string]any) map[string]any {
	if f == nil {
		return map[string]any{}
	}
	return f
}

func EncodeRecord(r Record) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(recordMap(r))
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	return s, nil
}

func DecodeRecord(s *structpb.Struct) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("%w: empty record", ErrMalformed)
	}
	return recordFromMap(s.AsMap())
}

func recordFromMap(m map[string]any) (Record, error) {
	var (
		r   Record
		err error
	)
	if r.ID, err = stringKey(m, "id", true); err != nil {
		return r, err
	}
	if r.Version, err = intKey(m, "version"); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = intKey(m, "updated_at"); err != nil {
		return r, err
	}
	if v, ok := m["deleted_at"]; ok && v != nil {
		d, err := toInt(v, "deleted_at")
		if err != nil {
			return r, err
		}
		r.DeletedAt = &d
	}
	if r.Fields, err = fieldsKey(m); err != nil {
		return r, err
	}
	return r, nil
}

func EncodeRecordList(records []Record) (*structpb.Struct, error) {
	items := make([]any, 0, len(records))
	for _, r := range records {
		items = append(items, recordMap(r))
	}
	s, err := structpb.NewStruct(map[string]any{"records": items})
	if err != nil {
		return nil, fmt.Errorf("encode record list: %w", err)
	}
	return s, nil
}

func DecodeRecordList(s *structpb.Struct) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	raw, ok := s.AsMap()["records"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: records is %T", ErrMalformed, raw)
	}
	out := make([]Record, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: records[%d] is %T", ErrMalformed, i, it)
		}
		r, err := recordFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func EncodeMutation(m Mutation) (*structpb.Struct, error) {
	body := map[string]any{"type": m.Type, "id": m.ID}
	if m.Fields != nil {
		body["fields"] = m.Fields
	}
	s, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", m.Type, m.ID, err)
	}
	return s, nil
}

func DecodeMutation(s *structpb.Struct) (Mutation, error) {
	var (
		m   Mutation
		err error
	)
	if s == nil {
		return m, fmt.Errorf("%w: empty request", ErrMalformed)
	}
	body := s.AsMap()
	if m.Type, err = stringKey(body, "type", true); err != nil {
		return m, err
	}
	if m.ID, err = stringKey(body, "id", true); err != nil {
		return m, err
	}
	if m.Fields, err = fieldsKey(body); err != nil {
		return m, err
	}
	return m, nil
}

func EncodeListQuery(q ListQuery) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"type": q.Type, "since": q.Since})
}

func DecodeListQuery(s *structpb.Struct) (ListQuery, error) {
	var (
		q   ListQuery
		err error
	)
	if s == nil {
		return q, fmt.Errorf("%w: empty request", ErrMalformed)
	}
	body := s.AsMap()
	if q.Type, err = stringKey(body, "type", true); err != nil {
		return q, err
	}
	if q.Since, err = intKey(body, "since"); err != nil {
		return q, err
	}
	if q.Since < 0 {
		return q, fmt.Errorf("%w: since must not be negative", ErrMalformed)
	}
	return q, nil
}

func stringKey(m map[string]any, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrMalformed, key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrMalformed, key, v)
	}
	if required && s == "" {
		return "", fmt.Errorf("%w: empty %s", ErrMalformed, key)
	}
	return s, nil
}

// intKey reads an optional integer; absent keys read as zero.
func intKey(m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	return toInt(v, key)
}

func toInt(v any, key string) (int64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T", ErrMalformed, key, v)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformed, key)
	}
	return int64(f), nil
}

func fieldsKey(m map[string]any) (map[string]any, error) {
	v, ok := m["fields"]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	f, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: fields is %T", ErrMalformed, v)
	}
	return f, nil
}
