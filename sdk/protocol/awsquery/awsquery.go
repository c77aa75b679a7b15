// Package awsquery implements the AWS query protocol and its EC2 variant.
// Requests are POSTed form encodings carrying Action and Version plus the
// dotted member paths of the input shape; responses are XML, with the
// operation result optionally nested under a wrapper element.
//
// The EC2 variant changes only request key naming: queryName wins, member
// names are upper-cased, and lists never use the ".member" infix.
//
// Generated clients select one with a blank import:
//
//	import _ "github.com/acksell/vogels/sdk/protocol/awsquery"
package awsquery

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/protocol/xmlshape"
	"github.com/acksell/vogels/sdk/transport"
)

func init() {
	protocol.Register(protocol.Query, Codec{})
	protocol.Register(protocol.EC2Query, Codec{EC2: true})
}

// Codec speaks the form-encoded query protocol. EC2 selects the EC2 key
// naming rules.
type Codec struct {
	EC2 bool
}

var _ protocol.Codec = Codec{}

func (c Codec) MarshalRequest(op *protocol.OperationSchema, input protocol.Document) (*transport.Request, error) {
	req := transport.NewRequest(http.MethodPost, "/")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	vals := url.Values{}
	vals.Set("Action", op.Name)
	vals.Set("Version", op.Service.APIVersion)

	if op.InputShape != "" && input != nil {
		if err := c.encode(op, vals, op.InputShape, "", "", input); err != nil {
			return nil, &protocol.MarshalError{Operation: op.Name, Reason: "encoding form body", Err: err}
		}
	}
	req.SetBody([]byte(vals.Encode()))
	return req, nil
}

func (c Codec) encode(op *protocol.OperationSchema, vals url.Values, shapeName, prefix, memberFormat string, doc protocol.Document) error {
	shape := op.Shape(shapeName)
	if shape == nil {
		return fmt.Errorf("undefined shape %q", shapeName)
	}

	switch shape.Type {
	case "structure":
		fields, ok := protocol.Fields(doc)
		if !ok {
			return fmt.Errorf("shape %s: expected structure fields, got %T", shapeName, doc)
		}
		for i := range shape.Members {
			m := &shape.Members[i]
			v, present := fields[m.Name]
			if !present || v == nil {
				continue
			}
			key := c.memberKey(m, op.Shape(m.Shape))
			if err := c.encode(op, vals, m.Shape, join(prefix, key), m.TimestampFormat, v); err != nil {
				return fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
			}
		}
		return nil
	case "list":
		items, ok := doc.([]protocol.Document)
		if !ok {
			return fmt.Errorf("shape %s: expected list, got %T", shapeName, doc)
		}
		// An empty list still serializes, as an empty value for its key.
		if len(items) == 0 {
			vals.Set(prefix, "")
			return nil
		}
		base := prefix
		if !c.EC2 && !shape.Flattened {
			elem := shape.MemberLocationName
			if elem == "" {
				elem = "member"
			}
			base = join(prefix, elem)
		}
		for i, item := range items {
			if err := c.encode(op, vals, shape.MemberShape, join(base, strconv.Itoa(i+1)), "", item); err != nil {
				return err
			}
		}
		return nil
	case "map":
		entries, ok := protocol.Fields(doc)
		if !ok {
			return fmt.Errorf("shape %s: expected map entries, got %T", shapeName, doc)
		}
		base := prefix
		if !c.EC2 && !shape.Flattened {
			base = join(prefix, "entry")
		}
		keyName := shape.KeyLocationName
		if keyName == "" {
			keyName = "key"
		}
		valueName := shape.ValueLocationName
		if valueName == "" {
			valueName = "value"
		}

		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for i, k := range keys {
			entry := join(base, strconv.Itoa(i+1))
			vals.Set(join(entry, keyName), k)
			if err := c.encode(op, vals, shape.ValueShape, join(entry, valueName), "", entries[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		s, err := xmlshape.Scalar(op, shapeName, memberFormat, doc)
		if err != nil {
			return err
		}
		vals.Set(prefix, s)
		return nil
	}
}

// memberKey is the form key segment for a structure member. The EC2
// variant prefers queryName and upper-cases the first rune of whatever
// name it falls back to.
func (c Codec) memberKey(m *protocol.MemberSchema, target *protocol.ShapeSchema) string {
	if c.EC2 {
		if m.QueryName != "" {
			return m.QueryName
		}
		return upperFirst(m.WireName())
	}
	if target != nil && target.Type == "list" && (m.Flattened || target.Flattened) && target.MemberLocationName != "" {
		return target.MemberLocationName
	}
	return m.WireName()
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func (c Codec) UnmarshalResponse(op *protocol.OperationSchema, resp *transport.Response) (protocol.Document, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if op.OutputShape == "" {
			return map[string]protocol.Document{}, nil
		}
		root, err := xmlshape.Parse(resp.Body)
		if err != nil {
			return nil, &protocol.UnmarshalError{Operation: op.Name, Err: err}
		}
		result := root
		if !c.EC2 && op.ResultWrapper != "" {
			if wrapped := root.Child(op.ResultWrapper); wrapped != nil {
				result = wrapped
			}
		}
		doc, err := xmlshape.Decode(op, op.OutputShape, result)
		if err != nil {
			return nil, &protocol.UnmarshalError{Operation: op.Name, Err: err}
		}
		return doc, nil
	}
	return nil, unmarshalError(op, resp)
}

// unmarshalError decodes the query protocol's XML error envelopes: the
// standard <ErrorResponse><Error> form flanked by the EC2
// <Response><Errors><Error> form.
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
