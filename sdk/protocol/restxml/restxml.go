// Package restxml implements the REST XML protocol: HTTP member bindings
// shared with REST JSON, an XML document body, and the XML error
// envelopes, including the bare <Error> root some storage services return.
//
// Generated clients select it with a blank import:
//
//	import _ "github.com/acksell/vogels/sdk/protocol/restxml"
package restxml

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/protocol/httpbind"
	"github.com/acksell/vogels/sdk/protocol/xmlshape"
	"github.com/acksell/vogels/sdk/transport"
)

func init() {
	protocol.Register(protocol.RestXML, Codec{})
}

// Codec speaks REST XML.
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
		root := shape.LocationName
		if root == "" {
			root = shape.Name
		}
		namespace := shape.XMLNamespace
		if namespace == "" {
			namespace = op.Service.XMLNamespace
		}
		body, err := xmlshape.Encode(op, op.InputShape, input, root, namespace)
		if err != nil {
			return nil, &protocol.MarshalError{Operation: op.Name, Reason: "encoding xml body", Err: err}
		}
		req.SetBody(body)
		defaultContentType(req, "application/xml")
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
		root := payload.LocationName
		if root == "" {
			if target.LocationName != "" {
				root = target.LocationName
			} else {
				root = target.Name
			}
		}
		namespace := target.XMLNamespace
		if namespace == "" {
			namespace = op.Service.XMLNamespace
		}
		body, err := xmlshape.Encode(op, payload.Shape, v, root, namespace)
		if err != nil {
			return err
		}
		req.SetBody(body)
		defaultContentType(req, "application/xml")
	}
	return nil
}

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
		if len(resp.Body) == 0 {
			return nil
		}
		root, err := xmlshape.Parse(resp.Body)
		if err != nil {
			return err
		}
		body, err := xmlshape.Decode(op, op.OutputShape, root)
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
		root, err := xmlshape.Parse(resp.Body)
		if err != nil {
			return err
		}
		v, err := xmlshape.Decode(op, payload.Shape, root)
		if err != nil {
			return err
		}
		doc[payload.Name] = v
	}
	return nil
}

// unmarshalError decodes an XML error response, accepting both the
// <ErrorResponse> envelope and a bare <Error> root.
func unmarshalError(op *protocol.OperationSchema, resp *transport.Response) *protocol.ServiceError {
	serr := &protocol.ServiceError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID(),
		Fault:      protocol.FaultForStatus(resp.StatusCode),
	}

	root, err := xmlshape.Parse(resp.Body)
	if err != nil {
		return serr
	}
	errNode, requestID := xmlshape.ErrorEnvelope(root)
	if requestID != "" {
		serr.RequestID = requestID
	}
	if errNode == nil {
		return serr
	}

	if code := errNode.Child("Code"); code != nil {
		serr.Code = strings.TrimSpace(code.Text)
	}
	if msg := errNode.Child("Message"); msg != nil {
		serr.Message = strings.TrimSpace(msg.Text)
	}
	if typ := errNode.Child("Type"); typ != nil && strings.EqualFold(strings.TrimSpace(typ.Text), "Sender") {
		serr.Fault = protocol.FaultClient
	}

	if es := op.ErrorByCode(serr.Code); es != nil {
		serr.Shape = es.Shape
		if es.SenderFault {
			serr.Fault = protocol.FaultClient
		}
		if typed, err := xmlshape.Decode(op, es.Shape, errNode); err == nil {
			serr.Fields = typed
		}
	}
	return serr
}
