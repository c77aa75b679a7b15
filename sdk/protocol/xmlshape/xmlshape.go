// Package xmlshape walks operation schemas to convert between Documents
// and XML, for the query protocol's responses and both directions of REST
// XML. Documents are decoded from a generic node tree so one parse serves
// any shape.
package xmlshape

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/acksell/vogels/sdk/protocol"
)

// Node is a generic parsed XML element.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []*Node    `xml:",any"`
}

// Parse reads an XML body into its root node.
func Parse(body []byte) (*Node, error) {
	var root Node
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("parsing xml body: %w", err)
	}
	return &root, nil
}

// Child returns the first child element with the given local name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			return c
		}
	}
	return nil
}

// ChildAll returns every child element with the given local name.
func (n *Node) ChildAll(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Decode converts an element into the document for shapeName.
func Decode(op *protocol.OperationSchema, shapeName string, node *Node) (protocol.Document, error) {
	if node == nil {
		return nil, nil
	}
	shape := op.Shape(shapeName)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", shapeName)
	}

	switch shape.Type {
	case "structure":
		out := make(map[string]protocol.Document)
		for i := range shape.Members {
			m := &shape.Members[i]
			if m.Location != "" {
				continue
			}
			if m.XMLAttribute {
				if v, ok := node.Attr(m.WireName()); ok {
					out[m.Name] = v
				}
				continue
			}
			target := op.Shape(m.Shape)
			if target != nil && target.Type == "list" && isFlattened(m, target) {
				nodes := node.ChildAll(flattenedName(m, target))
				if len(nodes) == 0 {
					continue
				}
				items, err := decodeListItems(op, target.MemberShape, nodes)
				if err != nil {
					return nil, fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
				}
				out[m.Name] = items
				continue
			}
			if target != nil && target.Type == "map" && isFlattened(m, target) {
				nodes := node.ChildAll(m.WireName())
				if len(nodes) == 0 {
					continue
				}
				entries, err := decodeMapEntries(op, target, nodes)
				if err != nil {
					return nil, fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
				}
				out[m.Name] = entries
				continue
			}
			child := node.Child(m.WireName())
			if child == nil {
				continue
			}
			v, err := decodeValue(op, m.Shape, m.TimestampFormat, child)
			if err != nil {
				return nil, fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
			}
			out[m.Name] = v
		}
		return out, nil
	default:
		return decodeValue(op, shapeName, "", node)
	}
}

func decodeValue(op *protocol.OperationSchema, shapeName, memberFormat string, node *Node) (protocol.Document, error) {
	shape := op.Shape(shapeName)
	if shape == nil {
		return nil, fmt.Errorf("undefined shape %q", shapeName)
	}
	switch shape.Type {
	case "structure":
		return Decode(op, shapeName, node)
	case "list":
		elemName := shape.MemberLocationName
		if elemName == "" {
			elemName = "member"
		}
		return decodeListItems(op, shape.MemberShape, node.ChildAll(elemName))
	case "map":
		return decodeMapEntries(op, shape, node.ChildAll("entry"))
	case "blob":
		text := strings.TrimSpace(node.Text)
		if text == "" {
			return []byte{}, nil
		}
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", shapeName, err)
		}
		return b, nil
	case "timestamp":
		format := memberFormat
		if format == "" {
			format = shape.TimestampFormat
		}
		return protocol.ParseTimestamp(strings.TrimSpace(node.Text), format, protocol.TimestampISO8601)
	case "integer", "long", "short", "byte":
		return strconv.ParseInt(strings.TrimSpace(node.Text), 10, 64)
	case "float", "double":
		return strconv.ParseFloat(strings.TrimSpace(node.Text), 64)
	case "boolean":
		return strconv.ParseBool(strings.TrimSpace(node.Text))
	default:
		return node.Text, nil
	}
}

func decodeListItems(op *protocol.OperationSchema, elemShape string, nodes []*Node) ([]protocol.Document, error) {
	out := make([]protocol.Document, 0, len(nodes))
	for _, n := range nodes {
		v, err := decodeValue(op, elemShape, "", n)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeMapEntries(op *protocol.OperationSchema, shape *protocol.ShapeSchema, nodes []*Node) (map[string]protocol.Document, error) {
	keyName := shape.KeyLocationName
	if keyName == "" {
		keyName = "key"
	}
	valueName := shape.ValueLocationName
	if valueName == "" {
		valueName = "value"
	}
	out := make(map[string]protocol.Document, len(nodes))
	for _, n := range nodes {
		keyNode := n.Child(keyName)
		valueNode := n.Child(valueName)
		if keyNode == nil || valueNode == nil {
			continue
		}
		v, err := decodeValue(op, shape.ValueShape, "", valueNode)
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(keyNode.Text)] = v
	}
	return out, nil
}

// ErrorEnvelope locates the <Error> element inside any of the XML error
// forms the AWS protocols produce: <ErrorResponse><Error>, the EC2
// <Response><Errors><Error>, and the bare <Error> some services return.
// It also surfaces the request id carried next to the error.
func ErrorEnvelope(root *Node) (errNode *Node, requestID string) {
	if root == nil {
		return nil, ""
	}
	switch root.XMLName.Local {
	case "ErrorResponse":
		errNode = root.Child("Error")
	case "Response":
		if errors := root.Child("Errors"); errors != nil {
			errNode = errors.Child("Error")
		}
	case "Error":
		errNode = root
	}
	if meta := root.Child("ResponseMetadata"); meta != nil {
		if id := meta.Child("RequestId"); id != nil {
			return errNode, strings.TrimSpace(id.Text)
		}
	}
	for _, name := range []string{"RequestId", "RequestID", "requestId"} {
		if id := root.Child(name); id != nil {
			return errNode, strings.TrimSpace(id.Text)
		}
	}
	return errNode, ""
}

// isFlattened reports whether a list or map member serializes without its
// wrapper element.
func isFlattened(m *protocol.MemberSchema, target *protocol.ShapeSchema) bool {
	return m.Flattened || target.Flattened
}

// flattenedName is the element name of a flattened list entry: the list's
// member element name wins over the structure member's.
func flattenedName(m *protocol.MemberSchema, target *protocol.ShapeSchema) string {
	if target.MemberLocationName != "" {
		return target.MemberLocationName
	}
	return m.WireName()
}

// Encode renders the document for shapeName as an XML element named root.
// A namespace, when set, becomes the root's xmlns attribute.
func Encode(op *protocol.OperationSchema, shapeName string, doc protocol.Document, root, namespace string) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{Name: xml.Name{Local: root}}
	if namespace != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xmlns"}, Value: namespace})
	}
	if err := encodeValue(op, enc, shapeName, "", doc, start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(op *protocol.OperationSchema, enc *xml.Encoder, shapeName, memberFormat string, doc protocol.Document, start xml.StartElement) error {
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
		// Attribute members decorate the start element before it opens.
		for i := range shape.Members {
			m := &shape.Members[i]
			if !m.XMLAttribute {
				continue
			}
			if v, present := fields[m.Name]; present && v != nil {
				s, sok := protocol.AsString(v)
				if !sok {
					return fmt.Errorf("attribute %s.%s must be a string", shapeName, m.Name)
				}
				start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: m.WireName()}, Value: s})
			}
		}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for i := range shape.Members {
			m := &shape.Members[i]
			if m.Location != "" || m.XMLAttribute {
				continue
			}
			v, present := fields[m.Name]
			if !present || v == nil {
				continue
			}
			if err := encodeMember(op, enc, m, v); err != nil {
				return fmt.Errorf("member %s.%s: %w", shapeName, m.Name, err)
			}
		}
		return enc.EncodeToken(start.End())
	case "list":
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		items, ok := doc.([]protocol.Document)
		if !ok {
			return fmt.Errorf("shape %s: expected list, got %T", shapeName, doc)
		}
		elemName := shape.MemberLocationName
		if elemName == "" {
			elemName = "member"
		}
		for _, item := range items {
			elem := xml.StartElement{Name: xml.Name{Local: elemName}}
			if err := encodeValue(op, enc, shape.MemberShape, "", item, elem); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	case "map":
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		if err := encodeMapEntries(op, enc, shape, doc, "entry"); err != nil {
			return err
		}
		return enc.EncodeToken(start.End())
	default:
		s, err := scalarText(op, shape, memberFormat, doc)
		if err != nil {
			return err
		}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(s)); err != nil {
			return err
		}
		return enc.EncodeToken(start.End())
	}
}

// encodeMember writes one structure member, handling the flattened forms
// that splice their entries directly into the parent element.
func encodeMember(op *protocol.OperationSchema, enc *xml.Encoder, m *protocol.MemberSchema, v protocol.Document) error {
	target := op.Shape(m.Shape)
	if target == nil {
		return fmt.Errorf("undefined shape %q", m.Shape)
	}

	if target.Type == "list" && isFlattened(m, target) {
		items, ok := v.([]protocol.Document)
		if !ok {
			return fmt.Errorf("expected list, got %T", v)
		}
		name := flattenedName(m, target)
		for _, item := range items {
			elem := xml.StartElement{Name: xml.Name{Local: name}}
			if err := encodeValue(op, enc, target.MemberShape, "", item, elem); err != nil {
				return err
			}
		}
		return nil
	}
	if target.Type == "map" && isFlattened(m, target) {
		return encodeMapEntries(op, enc, target, v, m.WireName())
	}

	elem := xml.StartElement{Name: xml.Name{Local: m.WireName()}}
	if ns := namespaceOf(m, target); ns != "" {
		elem.Attr = append(elem.Attr, xml.Attr{Name: xml.Name{Local: "xmlns"}, Value: ns})
	}
	return encodeValue(op, enc, m.Shape, m.TimestampFormat, v, elem)
}

func encodeMapEntries(op *protocol.OperationSchema, enc *xml.Encoder, shape *protocol.ShapeSchema, doc protocol.Document, entryName string) error {
	entries, ok := protocol.Fields(doc)
	if !ok {
		return fmt.Errorf("shape %s: expected map entries, got %T", shape.Name, doc)
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

	for _, k := range keys {
		entry := xml.StartElement{Name: xml.Name{Local: entryName}}
		if err := enc.EncodeToken(entry); err != nil {
			return err
		}
		key := xml.StartElement{Name: xml.Name{Local: keyName}}
		if err := encodeValue(op, enc, shape.KeyShape, "", k, key); err != nil {
			return err
		}
		value := xml.StartElement{Name: xml.Name{Local: valueName}}
		if err := encodeValue(op, enc, shape.ValueShape, "", entries[k], value); err != nil {
			return err
		}
		if err := enc.EncodeToken(entry.End()); err != nil {
			return err
		}
	}
	return nil
}

// Scalar renders a scalar document value as XML or form text.
func Scalar(op *protocol.OperationSchema, shapeName, memberFormat string, doc protocol.Document) (string, error) {
	shape := op.Shape(shapeName)
	if shape == nil {
		return "", fmt.Errorf("undefined shape %q", shapeName)
	}
	return scalarText(op, shape, memberFormat, doc)
}

func scalarText(op *protocol.OperationSchema, shape *protocol.ShapeSchema, memberFormat string, doc protocol.Document) (string, error) {
	switch shape.Type {
	case "string":
		s, ok := protocol.AsString(doc)
		if !ok {
			return "", fmt.Errorf("shape %s: expected string, got %T", shape.Name, doc)
		}
		return s, nil
	case "integer", "long", "short", "byte":
		n, ok := protocol.AsInt64(doc)
		if !ok {
			return "", fmt.Errorf("shape %s: expected integer, got %T", shape.Name, doc)
		}
		return strconv.FormatInt(n, 10), nil
	case "float", "double":
		f, ok := protocol.AsFloat64(doc)
		if !ok {
			return "", fmt.Errorf("shape %s: expected number, got %T", shape.Name, doc)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case "boolean":
		b, ok := protocol.AsBool(doc)
		if !ok {
			return "", fmt.Errorf("shape %s: expected boolean, got %T", shape.Name, doc)
		}
		return strconv.FormatBool(b), nil
	case "timestamp":
		t, ok := protocol.AsTime(doc)
		if !ok {
			parsed, err := protocol.ParseTimestamp(doc, memberFormat, protocol.TimestampISO8601)
			if err != nil {
				return "", err
			}
			t = parsed
		}
		format := memberFormat
		if format == "" {
			format = shape.TimestampFormat
		}
		return protocol.FormatTimestamp(t, format, protocol.TimestampISO8601), nil
	case "blob":
		b, ok := protocol.AsBytes(doc)
		if !ok {
			return "", fmt.Errorf("shape %s: expected blob, got %T", shape.Name, doc)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	}
	return "", fmt.Errorf("shape %s (%s) has no scalar text form", shape.Name, shape.Type)
}

func namespaceOf(m *protocol.MemberSchema, target *protocol.ShapeSchema) string {
	if target != nil && target.XMLNamespace != "" {
		return target.XMLNamespace
	}
	return ""
}
