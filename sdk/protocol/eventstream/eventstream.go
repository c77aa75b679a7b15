// Package eventstream decodes and encodes operations whose payload is a
// stream of vnd.amazon.eventstream messages. Each message names a member
// of the operation's stream union in its :event-type header; exceptions
// and transport errors arrive as messages too and surface as ordinary Go
// errors. Message framing comes from the smithy eventstream codec.
package eventstream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	awsevent "github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream/eventstreamapi"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/protocol/jsonshape"
)

// InitialResponseEventType marks the message carrying the operation's
// unmarshalled output ahead of the first stream event.
const InitialResponseEventType = "initial-response"

// DecodeFunc converts one event payload into its document, in the body
// encoding of the service's protocol.
type DecodeFunc func(shapeName string, payload []byte) (protocol.Document, error)

// EncodeFunc is the sending counterpart of DecodeFunc.
type EncodeFunc func(shapeName string, doc protocol.Document) ([]byte, error)

// JSONDecoder returns the DecodeFunc for services whose events carry JSON
// payloads.
func JSONDecoder(op *protocol.OperationSchema) DecodeFunc {
	return func(shapeName string, payload []byte) (protocol.Document, error) {
		return jsonshape.Unmarshal(op, shapeName, payload)
	}
}

// JSONEncoder returns the EncodeFunc for services whose events carry JSON
// payloads.
func JSONEncoder(op *protocol.OperationSchema) EncodeFunc {
	return func(shapeName string, doc protocol.Document) ([]byte, error) {
		return jsonshape.Marshal(op, shapeName, doc)
	}
}

// Event is one element received from a stream: its union member name (or
// InitialResponseEventType) and the decoded value.
type Event struct {
	Type  string
	Value protocol.Document
}

// StreamMember locates the member of shapeName whose target is the event
// stream union, returning the member and the union's schema.
func StreamMember(op *protocol.OperationSchema, shapeName string) (*protocol.MemberSchema, *protocol.ShapeSchema) {
	shape := op.Shape(shapeName)
	if shape == nil {
		return nil, nil
	}
	for i := range shape.Members {
		m := &shape.Members[i]
		if target := op.Shape(m.Shape); target != nil && target.EventStream {
			return m, target
		}
	}
	return nil, nil
}

type result struct {
	event Event
	err   error
}

// Reader decodes a response event stream. Events come back in arrival
// order; the reader owns the response stream and closes it with Close.
type Reader struct {
	op     *protocol.OperationSchema
	union  *protocol.ShapeSchema
	decode DecodeFunc

	stream  io.ReadCloser
	results chan result
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewReader starts decoding messages from stream. The operation must have
// an event stream output.
func NewReader(op *protocol.OperationSchema, stream io.ReadCloser, decode DecodeFunc) (*Reader, error) {
	_, union := StreamMember(op, op.OutputShape)
	if union == nil {
		return nil, fmt.Errorf("operation %s has no event stream output", op.Name)
	}
	r := &Reader{
		op:      op,
		union:   union,
		decode:  decode,
		stream:  stream,
		results: make(chan result),
		done:    make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Reader) run() {
	defer close(r.results)
	decoder := awsevent.NewDecoder()
	for {
		msg, err := decoder.Decode(r.stream, nil)
		if err != nil {
			if err == io.EOF {
				return
			}
			r.deliver(result{err: fmt.Errorf("decoding event message: %w", err)})
			return
		}
		event, err := r.convert(msg)
		if !r.deliver(result{event: event, err: err}) {
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *Reader) deliver(res result) bool {
	select {
	case r.results <- res:
		return true
	case <-r.done:
		return false
	}
}

// Next returns the next event in stream order. io.EOF signals a cleanly
// ended stream; a modeled exception comes back as a *protocol.ServiceError.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case res, ok := <-r.results:
		if !ok {
			return Event{}, io.EOF
		}
		return res.event, res.err
	}
}

// Close stops the reader and releases the response stream. In-flight
// Next calls unblock.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.closeErr = r.stream.Close()
	})
	return r.closeErr
}

func (r *Reader) convert(msg awsevent.Message) (Event, error) {
	switch headerString(msg, eventstreamapi.MessageTypeHeader) {
	case eventstreamapi.EventMessageType:
		return r.convertEvent(msg)
	case eventstreamapi.ExceptionMessageType:
		return Event{}, r.convertException(msg)
	case eventstreamapi.ErrorMessageType:
		return Event{}, &protocol.ServiceError{
			Code:    headerString(msg, eventstreamapi.ErrorCodeHeader),
			Message: headerString(msg, eventstreamapi.ErrorMessageHeader),
			Fault:   protocol.FaultServer,
		}
	default:
		return Event{}, fmt.Errorf("event message without a message type")
	}
}

func (r *Reader) convertEvent(msg awsevent.Message) (Event, error) {
	eventType := headerString(msg, eventstreamapi.EventTypeHeader)
	if eventType == InitialResponseEventType {
		doc, err := r.decode(r.op.OutputShape, msg.Payload)
		if err != nil {
			return Event{}, fmt.Errorf("decoding initial response: %w", err)
		}
		return Event{Type: InitialResponseEventType, Value: doc}, nil
	}

	member := r.union.MemberNamed(eventType)
	if member == nil {
		return Event{}, fmt.Errorf("unknown event type %q", eventType)
	}
	doc, err := r.decodeEventShape(member.Shape, msg)
	if err != nil {
		return Event{}, fmt.Errorf("decoding %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Value: doc}, nil
}

// decodeEventShape assembles one event structure from its message: header
// bound members come from the message headers, the explicit payload member
// from the raw payload, and everything else from the decoded body.
func (r *Reader) decodeEventShape(shapeName string, msg awsevent.Message) (protocol.Document, error) {
	shape := r.op.Shape(shapeName)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", shapeName)
	}

	doc := map[string]protocol.Document{}
	var payloadMember *protocol.MemberSchema
	for i := range shape.Members {
		m := &shape.Members[i]
		if m.EventHeader {
			if v := headerValue(msg, m.WireName()); v != nil {
				doc[m.Name] = v
			}
			continue
		}
		if m.EventPayload {
			payloadMember = m
		}
	}

	if payloadMember != nil {
		target := r.op.Shape(payloadMember.Shape)
		switch {
		case target != nil && target.Type == "blob":
			doc[payloadMember.Name] = msg.Payload
		case target != nil && target.Type == "string":
			doc[payloadMember.Name] = string(msg.Payload)
		default:
			v, err := r.decode(payloadMember.Shape, msg.Payload)
			if err != nil {
				return nil, err
			}
			doc[payloadMember.Name] = v
		}
		return doc, nil
	}

	body, err := r.decode(shapeName, msg.Payload)
	if err != nil {
		return nil, err
	}
	if fields, ok := protocol.Fields(body); ok {
		for k, v := range fields {
			doc[k] = v
		}
	}
	return doc, nil
}

func (r *Reader) convertException(msg awsevent.Message) error {
	code := headerString(msg, eventstreamapi.ExceptionTypeHeader)
	serr := &protocol.ServiceError{
		Code:  code,
		Fault: protocol.FaultUnknown,
	}
	if es := r.op.ErrorByCode(code); es != nil {
		serr.Shape = es.Shape
		serr.StatusCode = es.HTTPStatusCode
		if es.SenderFault {
			serr.Fault = protocol.FaultClient
		}
	}

	shapeName := serr.Shape
	if shapeName == "" {
		if member := r.union.MemberNamed(code); member != nil {
			shapeName = member.Shape
			serr.Shape = member.Shape
		}
	}
	if shapeName != "" {
		if fields, err := r.decode(shapeName, msg.Payload); err == nil {
			serr.Fields = fields
			if body, ok := protocol.Fields(fields); ok {
				serr.Message = jsonshape.ErrorMessage(body)
			}
		}
	}
	return serr
}

// Writer encodes an input event stream onto w.
type Writer struct {
	op     *protocol.OperationSchema
	union  *protocol.ShapeSchema
	encode EncodeFunc

	mu      sync.Mutex
	w       io.Writer
	encoder *awsevent.Encoder
}

// NewWriter prepares an encoder for the operation's input stream union.
func NewWriter(op *protocol.OperationSchema, w io.Writer, encode EncodeFunc) (*Writer, error) {
	_, union := StreamMember(op, op.InputShape)
	if union == nil {
		return nil, fmt.Errorf("operation %s has no event stream input", op.Name)
	}
	return &Writer{
		op:      op,
		union:   union,
		encode:  encode,
		w:       w,
		encoder: awsevent.NewEncoder(),
	}, nil
}

// Send frames one event. eventType must name a member of the stream
// union.
func (w *Writer) Send(ctx context.Context, eventType string, value protocol.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	member := w.union.MemberNamed(eventType)
	if member == nil {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	msg := awsevent.Message{}
	msg.Headers.Set(eventstreamapi.MessageTypeHeader, awsevent.StringValue(eventstreamapi.EventMessageType))
	msg.Headers.Set(eventstreamapi.EventTypeHeader, awsevent.StringValue(eventType))

	payload, err := w.buildPayload(member.Shape, value, &msg)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	msg.Payload = payload

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(w.w, msg)
}

func (w *Writer) buildPayload(shapeName string, value protocol.Document, msg *awsevent.Message) ([]byte, error) {
	shape := w.op.Shape(shapeName)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", shapeName)
	}
	fields, _ := protocol.Fields(value)

	var payloadMember *protocol.MemberSchema
	for i := range shape.Members {
		m := &shape.Members[i]
		if m.EventHeader {
			if v, present := fields[m.Name]; present && v != nil {
				hv, err := toHeaderValue(v)
				if err != nil {
					return nil, fmt.Errorf("event header %s: %w", m.Name, err)
				}
				msg.Headers.Set(m.WireName(), hv)
			}
			continue
		}
		if m.EventPayload {
			payloadMember = m
		}
	}

	if payloadMember != nil {
		v, present := fields[payloadMember.Name]
		if !present || v == nil {
			return nil, nil
		}
		target := w.op.Shape(payloadMember.Shape)
		switch {
		case target != nil && target.Type == "blob":
			b, ok := protocol.AsBytes(v)
			if !ok {
				return nil, fmt.Errorf("payload member %s must be a blob", payloadMember.Name)
			}
			return b, nil
		case target != nil && target.Type == "string":
			s, ok := protocol.AsString(v)
			if !ok {
				return nil, fmt.Errorf("payload member %s must be a string", payloadMember.Name)
			}
			return []byte(s), nil
		default:
			return w.encode(payloadMember.Shape, v)
		}
	}
	return w.encode(shapeName, value)
}

func headerString(msg awsevent.Message, name string) string {
	v := msg.Headers.Get(name)
	if v == nil {
		return ""
	}
	if s, ok := v.(awsevent.StringValue); ok {
		return string(s)
	}
	return v.String()
}

func headerValue(msg awsevent.Message, name string) protocol.Document {
	switch v := msg.Headers.Get(name).(type) {
	case nil:
		return nil
	case awsevent.StringValue:
		return string(v)
	case awsevent.BoolValue:
		return bool(v)
	case awsevent.Int8Value:
		return int64(v)
	case awsevent.Int16Value:
		return int64(v)
	case awsevent.Int32Value:
		return int64(v)
	case awsevent.Int64Value:
		return int64(v)
	case awsevent.BytesValue:
		return []byte(v)
	case awsevent.TimestampValue:
		return time.Time(v)
	default:
		return v.String()
	}
}

func toHeaderValue(v protocol.Document) (awsevent.Value, error) {
	switch value := v.(type) {
	case string:
		return awsevent.StringValue(value), nil
	case bool:
		return awsevent.BoolValue(value), nil
	case []byte:
		return awsevent.BytesValue(value), nil
	case time.Time:
		return awsevent.TimestampValue(value), nil
	}
	if n, ok := protocol.AsInt64(v); ok {
		return awsevent.Int64Value(n), nil
	}
	return nil, fmt.Errorf("cannot carry %T in an event header", v)
}
