// Package awsjson implements the AWS JSON RPC protocol, versions 1.0 and
// 1.1. Every operation is a POST to "/" carrying an X-Amz-Target header of
// the form "TargetPrefix.OperationName" and a JSON body; the version only
// changes the Content-Type suffix.
//
// Generated clients select it with a blank import:
//
//	import _ "github.com/acksell/vogels/sdk/protocol/awsjson"
package awsjson

import (
	"net/http"
	"strings"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/protocol/jsonshape"
	"github.com/acksell/vogels/sdk/transport"
)

const (
	targetHeader    = "X-Amz-Target"
	queryModeHeader = "x-amzn-query-mode"
	contentTypeBase = "application/x-amz-json-"
)

func init() {
	protocol.Register(protocol.JSON, Codec{})
}

// Codec speaks the X-Amz-Target JSON RPC dialect.
type Codec struct{}

var _ protocol.Codec = Codec{}

func (Codec) MarshalRequest(op *protocol.OperationSchema, input protocol.Document) (*transport.Request, error) {
	req := transport.NewRequest(http.MethodPost, "/")

	version := op.Service.JSONVersion
	if version == "" {
		version = "1.1"
	}
	req.Header.Set("Content-Type", contentTypeBase+version)
	req.Header.Set(targetHeader, op.Service.TargetPrefix+"."+op.Name)
	if op.Service.QueryCompatible {
		// Tells the service to mirror its original query-protocol error
		// codes back in x-amzn-query-error.
		req.Header.Set(queryModeHeader, "true")
	}

	body := []byte("{}")
	if op.InputShape != "" {
		encoded, err := jsonshape.Marshal(op, op.InputShape, input)
		if err != nil {
			return nil, &protocol.MarshalError{Operation: op.Name, Reason: "encoding json body", Err: err}
		}
		body = encoded
	}
	req.SetBody(body)
	return req, nil
}

func (Codec) UnmarshalResponse(op *protocol.OperationSchema, resp *transport.Response) (protocol.Document, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if op.OutputShape == "" {
			return map[string]protocol.Document{}, nil
		}
		doc, err := jsonshape.Unmarshal(op, op.OutputShape, resp.Body)
		if err != nil {
			return nil, &protocol.UnmarshalError{Operation: op.Name, Err: err}
		}
		return doc, nil
	}
	return nil, unmarshalError(op, resp)
}

// unmarshalError decodes a JSON error response. On query-compatible
// services the x-amzn-query-error header carries the authoritative code
// and fault attribution; the body __type discriminator is the fallback.
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

	if op.Service.QueryCompatible {
		code, errType := protocol.ParseQueryErrorHeader(resp.Header.Get(protocol.QueryErrorHeader))
		if code != "" {
			serr.Code = code
			if strings.EqualFold(errType, "Sender") {
				serr.Fault = protocol.FaultClient
			}
		}
	}
	if serr.Code == "" {
		serr.Code = jsonshape.ErrorCode(body)
	}

	if es := op.ErrorByCode(serr.Code); es != nil {
		serr.Shape = es.Shape
		if es.SenderFault {
			serr.Fault = protocol.FaultClient
		}
		if typed, err := jsonshape.Unmarshal(op, es.Shape, resp.Body); err == nil {
			serr.Fields = typed
		}
	}
	return serr
}
