// Package rpccbor implements the Smithy RPC v2 CBOR protocol. Operations
// POST to /service/{service}/operation/{operation} with a smithy-protocol
// header and CBOR request and response bodies; timestamps travel as tag 1
// epoch seconds and blobs as native byte strings.
//
// Generated clients select it with a blank import:
//
//	import _ "github.com/acksell/vogels/sdk/protocol/rpccbor"
package rpccbor

import (
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/transport"
)

const (
	protocolHeader = "smithy-protocol"
	protocolName   = "rpc-v2-cbor"
	contentType    = "application/cbor"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	enc, err := cbor.EncOptions{
		Time:    cbor.TimeUnixDynamic,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = enc

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dec

	protocol.Register(protocol.RPCv2CBOR, Codec{})
}

// Codec speaks RPC v2 CBOR.
type Codec struct{}

var _ protocol.Codec = Codec{}

func (Codec) MarshalRequest(op *protocol.OperationSchema, input protocol.Document) (*transport.Request, error) {
	service := op.Service.TargetPrefix
	if service == "" {
		service = op.Service.ServiceID
	}
	req := transport.NewRequest(http.MethodPost, "/service/"+service+"/operation/"+op.Name)
	req.Header.Set(protocolHeader, protocolName)
	req.Header.Set("Accept", contentType)

	// Operations without input send no body and no Content-Type.
	if op.InputShape == "" {
		return req, nil
	}

	body, err := Marshal(op, op.InputShape, input)
	if err != nil {
		return nil, &protocol.MarshalError{Operation: op.Name, Reason: "encoding cbor body", Err: err}
	}
	req.SetBody(body)
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// Marshal encodes one shape's document as a CBOR payload. Event stream
// payloads on rpc-v2-cbor services encode their events with this.
func Marshal(op *protocol.OperationSchema, shapeName string, doc protocol.Document) ([]byte, error) {
	tree, err := encodeValue(op, shapeName, doc)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return encMode.Marshal(tree)
}

// Unmarshal decodes one shape's CBOR payload, the receiving counterpart
// of Marshal.
func Unmarshal(op *protocol.OperationSchema, shapeName string, payload []byte) (protocol.Document, error) {
	if len(payload) == 0 {
		return map[string]protocol.Document{}, nil
	}
	var raw any
	if err := decMode.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return decodeValue(op, shapeName, raw)
}

func (Codec) UnmarshalResponse(op *protocol.OperationSchema, resp *transport.Response) (protocol.Document, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if op.OutputShape == "" {
			return map[string]protocol.Document{}, nil
		}
		doc, err := Unmarshal(op, op.OutputShape, resp.Body)
		if err != nil {
			return nil, &protocol.UnmarshalError{Operation: op.Name, Err: err}
		}
		return doc, nil
	}
	return nil, unmarshalError(op, resp)
}

func encodeValue(op *protocol.OperationSchema, shapeName string, doc protocol.Document) (any, error) {
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
			v, present := fields[m.Name]
			if !present || v == nil {
				continue
			}
			encoded, err := encodeValue(op, m.Shape, v)
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
			v, err := encodeValue(op, shape.MemberShape, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "map":
		entries, ok := protocol.Fields(doc)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected map entries, got %T", shapeName, doc)
		}
		out := make(map[string]any, len(entries))
		for k, item := range entries {
			v, err := encodeValue(op, shape.ValueShape, item)
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
		return b, nil
	case "timestamp":
		t, ok := protocol.AsTime(doc)
		if !ok {
			parsed, err := protocol.ParseTimestamp(doc, "", protocol.TimestampUnix)
			if err != nil {
				return nil, fmt.Errorf("shape %s: %w", shapeName, err)
			}
			t = parsed
		}
		return t, nil
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

func decodeValue(op *protocol.OperationSchema, shapeName string, raw any) (protocol.Document, error) {
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
			return nil, fmt.Errorf("shape %s: expected map, got %T", shapeName, raw)
		}
		out := make(map[string]protocol.Document)
		for i := range shape.Members {
			m := &shape.Members[i]
			v, present := fields[m.WireName()]
			if !present || v == nil {
				continue
			}
			decoded, err := decodeValue(op, m.Shape, v)
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
			v, err := decodeValue(op, shape.MemberShape, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "map":
		entries, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected map, got %T", shapeName, raw)
		}
		out := make(map[string]protocol.Document, len(entries))
		for k, item := range entries {
			v, err := decodeValue(op, shape.ValueShape, item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case "blob":
		b, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected byte string, got %T", shapeName, raw)
		}
		return b, nil
	case "timestamp":
		return decodeTimestamp(raw, shapeName)
	case "integer", "long", "short", "byte":
		n, ok := protocol.AsInt64(raw)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected integer, got %T", shapeName, raw)
		}
		return n, nil
	case "float", "double":
		f, ok := protocol.AsFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("shape %s: expected number, got %T", shapeName, raw)
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

// decodeTimestamp accepts the forms a CBOR decode can produce for tag 1:
// an already-converted time.Time, a cbor.Tag wrapper, or a bare number.
func decodeTimestamp(raw any, shapeName string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case cbor.Tag:
		if v.Number != 1 {
			return time.Time{}, fmt.Errorf("shape %s: unexpected cbor tag %d", shapeName, v.Number)
		}
		return decodeTimestamp(v.Content, shapeName)
	case uint64:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	if f, ok := protocol.AsFloat64(raw); ok {
		t, err := protocol.ParseTimestamp(f, protocol.TimestampUnix, protocol.TimestampUnix)
		if err != nil {
			return time.Time{}, fmt.Errorf("shape %s: %w", shapeName, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("shape %s: cannot interpret %T as a timestamp", shapeName, raw)
}

func looseDocument(raw any) protocol.Document {
	switch v := raw.(type) {
	case uint64:
		return int64(v)
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

func unmarshalError(op *protocol.OperationSchema, resp *transport.Response) *protocol.ServiceError {
	serr := &protocol.ServiceError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID(),
		Fault:      protocol.FaultForStatus(resp.StatusCode),
	}

	var raw any
	if err := decMode.Unmarshal(resp.Body, &raw); err != nil {
		return serr
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return serr
	}

	if t, ok := body["__type"].(string); ok {
		serr.Code = protocol.SanitizeErrorCode(t)
	}
	for _, key := range []string{"message", "Message"} {
		if m, ok := body[key].(string); ok {
			serr.Message = m
			break
		}
	}
	serr.Fields = looseDocument(raw)

	if es := op.ErrorByCode(serr.Code); es != nil {
		serr.Shape = es.Shape
		if es.SenderFault {
			serr.Fault = protocol.FaultClient
		}
		if typed, err := decodeValue(op, es.Shape, raw); err == nil {
			serr.Fields = typed
		}
	}
	return serr
}
