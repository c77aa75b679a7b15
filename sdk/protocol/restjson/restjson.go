// Package restjson implements the REST JSON protocol: operation members
// bind to the URI, query string and headers per their http traits, and
// whatever remains travels as a JSON body. An explicit payload member
// replaces the JSON body with its own serialization.
//
// Generated clients select it with a blank import:
//
//	import _ "github.com/acksell/vogels/sdk/protocol/restjson"
package restjson

import (
	"fmt"
	"net/http"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/protocol/httpbind"
	"github.com/acksell/vogels/sdk/protocol/jsonshape"
	"github.com/acksell/vogels/sdk/transport"
)

const errorTypeHeader = "X-Amzn-Errortype"

func init() {
	protocol.Register(protocol.RestJSON, Codec{})
}

// Codec speaks REST JSON.
type Codec struct{}

var _ protocol.Codec = Codec{}

func (Codec) MarshalRequest(op *protocol.OperationSchema, input protocol.Document) (*transport.Request, error) {
	method := op.Method
	if method == "" {
		method = http.MethodPost
	}
	req := transport.NewRequest(method, "/")

	if err := httpbind.BindRequest(req, op, input); err != nil {
		return nil, &protocol.MarshalError{Operation: op.Name, Reason: "binding http members", Err: err}
	}

	shape := op.Input()
	fields, _ := protocol.Fields(input)

	if payload := httpbind.Payload(shape); payload != nil {
		v, present := fields[payload.Name]
		if !present || v == nil {
			return req, nil
		}
		if err := marshalPayload(req, op, payload, v); err != nil {
			return nil, &protocol.MarshalError{Operation: op.Name, Reason: "encoding payload", Err: err}
		}
		return req, nil
	}

	if httpbind.HasBodyMembers(shape) {
		body, err := jsonshape.Marshal(op, op.InputShape, input)
		if err != nil {
			return nil, &protocol.MarshalError{Operation: op.Name, Reason: "encoding json body", Err: err}
		}
		req.SetBody(body)
		defaultContentType(req, "application/json")
	}
	return req, nil
}

func marshalPayload(req *transport.Request, op *protocol.OperationSchema, payload *protocol.MemberSchema, v protocol.Document) error {
	target := op.Shape(payload.Shape)
	if target == nil {
		return fmt.Errorf("undefined payload shape %q", payload.Shape)
	}
	switch target.Type {
	case "blob":
		b, ok := protocol.AsBytes(v)
		if !ok {
			return fmt.Errorf("payload member %s must be a blob, got %T", payload.Name, v)
		}
		req.SetBody(b)
		defaultContentType(req, "application/octet-stream")
	case "string":
		s, ok := protocol.AsString(v)
		if !ok {
			return fmt.Errorf("payload member %s must be a string, got %T", payload.Name, v)
		}
		req.SetBody([]byte(s))
		defaultContentType(req, "text/plain")
	default:
		body, err := jsonshape.Marshal(op, payload.Shape, v)
		if err != nil {
			return err
		}
		req.SetBody(body)
		defaultContentType(req, "application/json")
	}
	return nil
}

// defaultContentType sets the body media type unless an input member
// already bound the Content-Type header.
func defaultContentType(req *transport.Request, mediaType string) {
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", mediaType)
	}
}

func (Codec) UnmarshalResponse(op *protocol.OperationSchema, resp *transport.Response) (protocol.Document, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		doc := map[string]protocol.Document{}
		if op.OutputShape == "" {
			return doc, nil
		}
		if err := httpbind.BindResponse(doc, op, op.OutputShape, resp); err != nil {
			return nil, &protocol.UnmarshalError{Operation: op.Name, Err: err}
		}
		if err := unmarshalBody(doc, op, resp); err != nil {
			return nil, &protocol.UnmarshalError{Operation: op.Name, Err: err}
		}
		return doc, nil
	}
	return nil, unmarshalError(op, resp)
}

func unmarshalBody(doc map[string]protocol.Document, op *protocol.OperationSchema, resp *transport.Response) error {
	shape := op.Output()
	payload := httpbind.Payload(shape)
	if payload == nil {
		body, err := jsonshape.Unmarshal(op, op.OutputShape, resp.Body)
		if err != nil {
			return err
		}
		if fields, ok := protocol.Fields(body); ok {
			for k, v := range fields {
				doc[k] = v
			}
		}
		return nil
	}

	// A streaming payload stays on the response; the pipeline hands the
	// live stream to the caller's transformer.
	if sm := op.StreamingMember(); sm != nil && sm.Name == payload.Name {
		return nil
	}

	target := op.Shape(payload.Shape)
	if target == nil {
		return nil
	}
	switch target.Type {
	case "blob":
		doc[payload.Name] = resp.Body
	case "string":
		doc[payload.Name] = string(resp.Body)
	default:
		if len(resp.Body) == 0 {
			return nil
		}
		v, err := jsonshape.Unmarshal(op, payload.Shape, resp.Body)
		if err != nil {
			return err
		}
		doc[payload.Name] = v
	}
	return nil
}

// unmarshalError decodes a REST JSON error response. The X-Amzn-Errortype
// header names the exception when present; the body discriminator is the
// fallback. Modeled exceptions may also bind response headers.
func unmarshalError(op *protocol.OperationSchema, resp *transport.Response) *protocol.ServiceError {
	serr := &protocol.ServiceError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID(),
		Fault:      protocol.FaultForStatus(resp.StatusCode),
	}

	raw, _ := jsonshape.DecodeAny(resp.Body)
	body, _ := protocol.Fields(raw)
	serr.Fields = raw
	serr.Message = jsonshape.ErrorMessage(body)

	if h := resp.Header.Get(errorTypeHeader); h != "" {
		serr.Code = protocol.SanitizeErrorCode(h)
	}
	if serr.Code == "" {
		serr.Code = jsonshape.ErrorCode(body)
	}

	if es := op.ErrorByCode(serr.Code); es != nil {
		serr.Shape = es.Shape
		if es.SenderFault {
			serr.Fault = protocol.FaultClient
		}
		typed := map[string]protocol.Document{}
		if err := httpbind.BindResponse(typed, op, es.Shape, resp); err == nil {
			if bodyDoc, err := jsonshape.Unmarshal(op, es.Shape, resp.Body); err == nil {
				if fields, ok := protocol.Fields(bodyDoc); ok {
					for k, v := range fields {
						typed[k] = v
					}
				}
				serr.Fields = typed
			}
		}
	}
	return serr
}
