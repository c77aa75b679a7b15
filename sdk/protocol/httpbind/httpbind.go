// Package httpbind applies HTTP member bindings shared by the REST
// protocols: URI labels, query strings, headers, prefixed header maps and
// the statusCode binding. Body serialization stays with the owning codec;
// this package only moves members in and out of the HTTP envelope.
package httpbind

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/transport"
)

// BindRequest fills the request path from the operation's URI template and
// distributes input members bound to uri, querystring, header and headers
// locations. Members left for the body are untouched.
func BindRequest(req *transport.Request, op *protocol.OperationSchema, input protocol.Document) error {
	fields, _ := protocol.Fields(input)

	path, staticQuery, err := splitURI(op.RequestURI)
	if err != nil {
		return err
	}
	for k, vs := range staticQuery {
		for _, v := range vs {
			req.Query.Add(k, v)
		}
	}

	shape := op.Input()
	if shape == nil {
		req.Path = path
		return nil
	}

	for i := range shape.Members {
		m := &shape.Members[i]
		v, present := fields[m.Name]
		if !present || v == nil {
			if m.Location == "uri" {
				return fmt.Errorf("uri label %s is required", m.Name)
			}
			continue
		}
		switch m.Location {
		case "uri":
			path, err = fillLabel(path, m.WireName(), op, m, v)
			if err != nil {
				return err
			}
		case "querystring":
			if err := bindQuery(req.Query, op, m, v); err != nil {
				return err
			}
		case "header":
			if err := bindHeader(req.Header, op, m, v); err != nil {
				return err
			}
		case "headers":
			if err := bindHeaderMap(req.Header, op, m, v); err != nil {
				return err
			}
		}
	}

	req.Path = path
	return nil
}

// BindResponse extracts header, headers and statusCode bound members of
// shapeName from the response into doc.
func BindResponse(doc map[string]protocol.Document, op *protocol.OperationSchema, shapeName string, resp *transport.Response) error {
	shape := op.Shape(shapeName)
	if shape == nil {
		return nil
	}
	for i := range shape.Members {
		m := &shape.Members[i]
		switch m.Location {
		case "header":
			raw := resp.Header.Get(m.WireName())
			if raw == "" {
				continue
			}
			v, err := parseString(op, m, raw, true)
			if err != nil {
				return fmt.Errorf("header %s: %w", m.WireName(), err)
			}
			doc[m.Name] = v
		case "headers":
			prefix := m.LocationName
			entries := map[string]protocol.Document{}
			for name, vals := range resp.Header {
				if len(vals) == 0 {
					continue
				}
				if prefix == "" || strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
					entries[strings.ToLower(name[len(prefix):])] = vals[0]
				}
			}
			if len(entries) > 0 {
				doc[m.Name] = entries
			}
		case "statusCode":
			doc[m.Name] = int64(resp.StatusCode)
		}
	}
	return nil
}

// Payload returns the member carrying the explicit HTTP body, or nil when
// the body is the collection of unbound members.
func Payload(shape *protocol.ShapeSchema) *protocol.MemberSchema {
	if shape == nil || shape.Payload == "" {
		return nil
	}
	for i := range shape.Members {
		if shape.Members[i].Name == shape.Payload {
			return &shape.Members[i]
		}
	}
	return nil
}

// HasBodyMembers reports whether any member is left to the body once HTTP
// bindings are applied.
func HasBodyMembers(shape *protocol.ShapeSchema) bool {
	if shape == nil {
		return false
	}
	if shape.Payload != "" {
		return true
	}
	for i := range shape.Members {
		if shape.Members[i].Location == "" {
			return true
		}
	}
	return false
}

// splitURI separates a request URI template into its path and any static
// query parameters baked into the model ("/things?verbose=true").
func splitURI(uri string) (string, url.Values, error) {
	if uri == "" {
		return "/", url.Values{}, nil
	}
	path, rawQuery, _ := strings.Cut(uri, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("parsing static query of %q: %w", uri, err)
	}
	return path, query, nil
}

func fillLabel(path, label string, op *protocol.OperationSchema, m *protocol.MemberSchema, v protocol.Document) (string, error) {
	s, err := formatString(op, m, v, false)
	if err != nil {
		return "", fmt.Errorf("uri label %s: %w", label, err)
	}
	if s == "" {
		return "", fmt.Errorf("uri label %s must not be empty", label)
	}

	greedy := "{" + label + "+}"
	if strings.Contains(path, greedy) {
		segments := strings.Split(s, "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		return strings.Replace(path, greedy, strings.Join(segments, "/"), 1), nil
	}
	plain := "{" + label + "}"
	if !strings.Contains(path, plain) {
		return "", fmt.Errorf("uri template %q has no label %s", path, label)
	}
	return strings.Replace(path, plain, url.PathEscape(s), 1), nil
}

func bindQuery(query url.Values, op *protocol.OperationSchema, m *protocol.MemberSchema, v protocol.Document) error {
	target := op.Shape(m.Shape)
	if target == nil {
		return fmt.Errorf("undefined shape %q", m.Shape)
	}
	switch target.Type {
	case "list":
		items, ok := v.([]protocol.Document)
		if !ok {
			return fmt.Errorf("querystring %s: expected list, got %T", m.WireName(), v)
		}
		for _, item := range items {
			s, err := formatScalar(op, target.MemberShape, "", item, false)
			if err != nil {
				return err
			}
			query.Add(m.WireName(), s)
		}
	case "map":
		entries, ok := protocol.Fields(v)
		if !ok {
			return fmt.Errorf("querystring %s: expected map, got %T", m.WireName(), v)
		}
		for k, item := range entries {
			if items, ok := item.([]protocol.Document); ok {
				elem := ""
				if valueShape := op.Shape(target.ValueShape); valueShape != nil {
					elem = valueShape.MemberShape
				}
				for _, nested := range items {
					s, err := formatScalar(op, elem, "", nested, false)
					if err != nil {
						return err
					}
					query.Add(k, s)
				}
				continue
			}
			s, err := formatScalar(op, target.ValueShape, "", item, false)
			if err != nil {
				return err
			}
			query.Add(k, s)
		}
	default:
		s, err := formatString(op, m, v, false)
		if err != nil {
			return fmt.Errorf("querystring %s: %w", m.WireName(), err)
		}
		query.Add(m.WireName(), s)
	}
	return nil
}

func bindHeader(header map[string][]string, op *protocol.OperationSchema, m *protocol.MemberSchema, v protocol.Document) error {
	target := op.Shape(m.Shape)
	if target != nil && target.Type == "list" {
		items, ok := v.([]protocol.Document)
		if !ok {
			return fmt.Errorf("header %s: expected list, got %T", m.WireName(), v)
		}
		parts := make([]string, len(items))
		for i, item := range items {
			s, err := formatScalar(op, target.MemberShape, m.TimestampFormat, item, true)
			if err != nil {
				return err
			}
			parts[i] = s
		}
		setHeader(header, m.WireName(), strings.Join(parts, ","))
		return nil
	}
	s, err := formatString(op, m, v, true)
	if err != nil {
		return fmt.Errorf("header %s: %w", m.WireName(), err)
	}
	setHeader(header, m.WireName(), s)
	return nil
}

func bindHeaderMap(header map[string][]string, op *protocol.OperationSchema, m *protocol.MemberSchema, v protocol.Document) error {
	entries, ok := protocol.Fields(v)
	if !ok {
		return fmt.Errorf("headers %s: expected map, got %T", m.Name, v)
	}
	target := op.Shape(m.Shape)
	valueShape := ""
	if target != nil {
		valueShape = target.ValueShape
	}
	for k, item := range entries {
		s, err := formatScalar(op, valueShape, "", item, true)
		if err != nil {
			return err
		}
		setHeader(header, m.LocationName+k, s)
	}
	return nil
}

func setHeader(header map[string][]string, name, value string) {
	key := textprotoCanonical(name)
	header[key] = append(header[key], value)
}

// textprotoCanonical mirrors http.Header.Set's key canonicalization so
// codecs writing to a bare map agree with net/http reads.
func textprotoCanonical(name string) string {
	b := []byte(name)
	upper := true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		} else if !upper && 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(b)
}

// formatString renders a member's value for a header, query or label slot.
func formatString(op *protocol.OperationSchema, m *protocol.MemberSchema, v protocol.Document, header bool) (string, error) {
	if m.JSONValue {
		s, ok := protocol.AsString(v)
		if !ok {
			return "", fmt.Errorf("jsonvalue requires a string, got %T", v)
		}
		if header {
			return base64.StdEncoding.EncodeToString([]byte(s)), nil
		}
		return s, nil
	}
	return formatScalar(op, m.Shape, m.TimestampFormat, v, header)
}

func formatScalar(op *protocol.OperationSchema, shapeName, memberFormat string, v protocol.Document, header bool) (string, error) {
	shape := op.Shape(shapeName)
	if shape == nil {
		return "", fmt.Errorf("undefined shape %q", shapeName)
	}
	switch shape.Type {
	case "string":
		s, ok := protocol.AsString(v)
		if !ok {
			return "", fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case "integer", "long", "short", "byte":
		n, ok := protocol.AsInt64(v)
		if !ok {
			return "", fmt.Errorf("expected integer, got %T", v)
		}
		return strconv.FormatInt(n, 10), nil
	case "float", "double":
		f, ok := protocol.AsFloat64(v)
		if !ok {
			return "", fmt.Errorf("expected number, got %T", v)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case "boolean":
		b, ok := protocol.AsBool(v)
		if !ok {
			return "", fmt.Errorf("expected boolean, got %T", v)
		}
		return strconv.FormatBool(b), nil
	case "timestamp":
		t, ok := protocol.AsTime(v)
		if !ok {
			parsed, err := protocol.ParseTimestamp(v, memberFormat, defaultTimestampFormat(header))
			if err != nil {
				return "", err
			}
			t = parsed
		}
		format := memberFormat
		if format == "" {
			format = shape.TimestampFormat
		}
		return protocol.FormatTimestamp(t, format, defaultTimestampFormat(header)), nil
	case "blob":
		b, ok := protocol.AsBytes(v)
		if !ok {
			return "", fmt.Errorf("expected blob, got %T", v)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return "", fmt.Errorf("shape %s (%s) cannot bind to an http slot", shapeName, shape.Type)
	}
}

// parseString decodes a header or query value back into a document value.
func parseString(op *protocol.OperationSchema, m *protocol.MemberSchema, raw string, header bool) (protocol.Document, error) {
	if m.JSONValue {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, err
		}
		return string(decoded), nil
	}
	shape := op.Shape(m.Shape)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", m.Shape)
	}
	switch shape.Type {
	case "string":
		return raw, nil
	case "integer", "long", "short", "byte":
		return strconv.ParseInt(raw, 10, 64)
	case "float", "double":
		return strconv.ParseFloat(raw, 64)
	case "boolean":
		return strconv.ParseBool(raw)
	case "timestamp":
		format := m.TimestampFormat
		if format == "" {
			format = shape.TimestampFormat
		}
		return protocol.ParseTimestamp(raw, format, defaultTimestampFormat(header))
	case "blob":
		return base64.StdEncoding.DecodeString(raw)
	case "list":
		parts := strings.Split(raw, ",")
		out := make([]protocol.Document, 0, len(parts))
		for _, part := range parts {
			item, err := parseString(op, &protocol.MemberSchema{Shape: shape.MemberShape}, strings.TrimSpace(part), header)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("shape %s (%s) cannot bind to an http slot", m.Shape, shape.Type)
}

// defaultTimestampFormat is the Smithy HTTP binding default: http-date in
// headers, date-time everywhere else.
func defaultTimestampFormat(header bool) string {
	if header {
		return protocol.TimestampRFC822
	}
	return protocol.TimestampISO8601
}
