// Package jsonshape walks operation schemas to convert between Documents
// and JSON bodies. Both JSON RPC and REST JSON build on it: the former
// serializes whole input shapes, the latter only the members left unbound
// by HTTP traits.
package jsonshape

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acksell/vogels/sdk/protocol"
)

// Marshal renders the document for shapeName as a JSON body.
func Marshal(op *protocol.OperationSchema, shapeName string, doc protocol.Document) ([]byte, error) {
	v, err := MarshalValue(op, shapeName, "", doc)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// MarshalValue converts one document value into its JSON-ready form. The
// member format, when non-empty, overrides the shape's timestamp format.
// Structure members bound to HTTP locations are excluded; they belong to
// the REST binder, not the body.
func MarshalValue(op *protocol.OperationSchema, shapeName, memberFormat string, doc protocol.Document) (any, error) {
	if doc == nil {
		return nil, nil
	}
	shape := op.Shape(shapeName)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", shapeName)
	}
	if shape.Document {
		return doc, nil
	}

	switch shape.Type {
	case "structure":
		fields, ok := protocol.Fields(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected structure fields, got %T", shapeName, doc)
		}
		out := make(map[string]any, len(fields))
		for i := range shape.Members {
			m := &shape.Members[i]
			if m.Location != "" {
				continue
			}
			v, present := fields[m.Name]
			if !present || v == nil {
				continue
			}
			if m.JSONValue {
				s, ok := protocol.AsString(v)
				if !ok {
					return nil, fmt.Errorf("member %s.%s: jsonvalue requires a string, got %T", shapeName, m.Name, v)
				}
				out[m.WireName()] = json.RawMessage(s)
				continue
			}
			encoded, err := MarshalValue(op, m.Shape, m.TimestampFormat, v)
			if err != nil {
				return nil, fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
			}
			out[m.WireName()] = encoded
		}
		return out, nil
	case "list":
		items, ok := doc.([]protocol.Document)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected list, got %T", shapeName, doc)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := MarshalValue(op, shape.MemberShape, "", item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "map":
		fields, ok := protocol.Fields(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected map entries, got %T", shapeName, doc)
		}
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			v, err := MarshalValue(op, shape.ValueShape, "", item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case "blob":
		b, ok := protocol.AsBytes(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected blob, got %T", shapeName, doc)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	case "timestamp":
		t, ok := protocol.AsTime(doc)
		if !ok {
			parsed, err := protocol.ParseTimestamp(doc, memberFormat, protocol.TimestampUnix)
			if err != nil {
				return nil, fmt.Errorf("shape %s: %w", shapeName, err)
			}
			t = parsed
		}
		format := memberFormat
		if format == "" {
			format = shape.TimestampFormat
		}
		switch format {
		case protocol.TimestampISO8601, protocol.TimestampRFC822:
			return protocol.FormatTimestamp(t, format, protocol.TimestampUnix), nil
		default:
			return json.Number(protocol.FormatTimestamp(t, protocol.TimestampUnix, protocol.TimestampUnix)), nil
		}
	case "integer", "long", "short", "byte":
		n, ok := protocol.AsInt64(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected integer, got %T", shapeName, doc)
		}
		return n, nil
	case "float", "double":
		f, ok := protocol.AsFloat64(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected number, got %T", shapeName, doc)
		}
		return f, nil
	case "boolean":
		b, ok := protocol.AsBool(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected boolean, got %T", shapeName, doc)
		}
		return b, nil
	default:
		s, ok := protocol.AsString(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected string, got %T", shapeName, doc)
		}
		return s, nil
	}
}

// Unmarshal parses a JSON body into the document for shapeName. An empty
// body decodes as an empty structure.
func Unmarshal(op *protocol.OperationSchema, shapeName string, body []byte) (protocol.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]protocol.Document{}, nil
	}
	raw, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	return UnmarshalValue(op, shapeName, "", raw)
}

// UnmarshalValue converts one decoded JSON value into its document form.
func UnmarshalValue(op *protocol.OperationSchema, shapeName, memberFormat string, raw any) (protocol.Document, error) {
	if raw == nil {
		return nil, nil
	}
	shape := op.Shape(shapeName)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", shapeName)
	}
	if shape.Document {
		return looseDocument(raw), nil
	}

	switch shape.Type {
	case "structure":
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected object, got %T", shapeName, raw)
		}
		out := make(map[string]protocol.Document)
		for i := range shape.Members {
			m := &shape.Members[i]
			if m.Location != "" {
				continue
			}
			v, present := fields[m.WireName()]
			if !present || v == nil {
				continue
			}
			if m.JSONValue {
				embedded, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
				}
				out[m.Name] = string(embedded)
				continue
			}
			decoded, err := UnmarshalValue(op, m.Shape, m.TimestampFormat, v)
			if err != nil {
				return nil, fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
			}
			out[m.Name] = decoded
		}
		return out, nil
	case "list":
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected array, got %T", shapeName, raw)
		}
		out := make([]protocol.Document, len(items))
		for i, item := range items {
			v, err := UnmarshalValue(op, shape.MemberShape, "", item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "map":
		entries, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected object, got %T", shapeName, raw)
		}
		out := make(map[string]protocol.Document, len(entries))
		for k, item := range entries {
			v, err := UnmarshalValue(op, shape.ValueShape, "", item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case "blob":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected base64 string, got %T", shapeName, raw)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", shapeName, err)
		}
		return b, nil
	case "timestamp":
		format := memberFormat
		if format == "" {
			format = shape.TimestampFormat
		}
		return parseTimestamp(raw, format, shapeName)
	case "integer", "long", "short", "byte":
		n, err := asInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", shapeName, err)
		}
		return n, nil
	case "float", "double":
		f, err := asFloat64(raw)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", shapeName, err)
		}
		return f, nil
	case "boolean":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected boolean, got %T", shapeName, raw)
		}
		return b, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected string, got %T", shapeName, raw)
		}
		return s, nil
	}
}

// DecodeAny parses a JSON body with no schema, for error payloads whose
// shape is not yet known.
func DecodeAny(body []byte) (protocol.Document, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	raw, err := decodeJSON(body)
	if err != nil {
		return nil, false
	}
	return looseDocument(raw), true
}

// ErrorCode probes a decoded error body for its discriminator. JSON
// services put it in __type (namespaced) or code.
func ErrorCode(body map[string]protocol.Document) string {
	if t, ok := protocol.AsString(body["__type"]); ok {
		return protocol.SanitizeErrorCode(t)
	}
	if c, ok := protocol.AsString(body["code"]); ok {
		return protocol.SanitizeErrorCode(c)
	}
	return ""
}

// ErrorMessage probes a decoded error body for its human-readable message.
func ErrorMessage(body map[string]protocol.Document) string {
	for _, key := range []string{"message", "Message", "errorMessage"} {
		if m, ok := protocol.AsString(body[key]); ok {
			return m
		}
	}
	return ""
}

// decodeJSON keeps numbers as json.Number so long values survive beyond
// float64 precision.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing json body: %w", err)
	}
	return raw, nil
}

func parseTimestamp(raw any, format, shapeName string) (time.Time, error) {
	if n, ok := raw.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("shape %s: %w", shapeName, err)
		}
		raw = f
	}
	t, err := protocol.ParseTimestamp(raw, format, protocol.TimestampUnix)
	if err != nil {
		return time.Time{}, fmt.Errorf("shape %s: %w", shapeName, err)
	}
	return t, nil
}

func asInt64(raw any) (int64, error) {
	if n, ok := raw.(json.Number); ok {
		i, err := n.Int64()
		if err == nil {
			return i, nil
		}
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, err
		}
		raw = f
	}
	if i, ok := protocol.AsInt64(raw); ok {
		return i, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func asFloat64(raw any) (float64, error) {
	if n, ok := raw.(json.Number); ok {
		return n.Float64()
	}
	if f, ok := protocol.AsFloat64(raw); ok {
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", raw)
}

// looseDocument converts a decoded JSON value into Document kinds without
// schema guidance: json.Number becomes int64 when integral, float64
// otherwise.
func looseDocument(raw any) protocol.Document {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		out := make(map[string]protocol.Document, len(v))
		for k, item := range v {
			out[k] = looseDocument(item)
		}
		return out
	case []any:
		out := make([]protocol.Document, len(v))
		for i, item := range v {
			out[i] = looseDocument(item)
		}
		return out
	default:
		return v
	}
}
