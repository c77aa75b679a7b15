package generate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acksell/vogels/codegen/intermediate"
)

// scalarTypes maps model scalar shape types to the Go types generated
// fields use. Integer widths follow the model's declared precision.
var scalarTypes = map[string]string{
	"string":     "string",
	"character":  "string",
	"boolean":    "bool",
	"integer":    "int32",
	"long":       "int64",
	"short":      "int16",
	"byte":       "int8",
	"float":      "float32",
	"double":     "float64",
	"biginteger": "int64",
	"bigdecimal": "float64",
}

// typeResolver maps canonical shapes to Go type expressions.
type typeResolver struct {
	shapes map[string]*intermediate.Shape
}

func newTypeResolver(m *intermediate.Model) *typeResolver {
	shapes := make(map[string]*intermediate.Shape, len(m.Shapes))
	for _, s := range m.Shapes {
		shapes[s.Name] = s
	}
	return &typeResolver{shapes: shapes}
}

func (r *typeResolver) shape(name string) (*intermediate.Shape, error) {
	s, ok := r.shapes[name]
	if !ok {
		return nil, fmt.Errorf("unresolved shape %q", name)
	}
	return s, nil
}

// fieldType returns the Go type of a structure field. Scalars and nested
// structures are pointer-typed so absent optional members stay
// distinguishable from zero values; slices, maps, blobs and documents are
// already nilable and stay bare.
func (r *typeResolver) fieldType(m *intermediate.Member) (string, error) {
	if m.JSONValue {
		return "protocol.Document", nil
	}
	s, err := r.shape(m.Shape)
	if err != nil {
		return "", err
	}
	if s.IsDocument {
		return "protocol.Document", nil
	}
	switch s.Type {
	case "structure":
		return "*" + s.Name, nil
	case "blob":
		return "[]byte", nil
	case "timestamp":
		return "*time.Time", nil
	case "list", "map":
		return r.elemType(m.Shape)
	case "string":
		if len(s.Enum) > 0 {
			return "*" + s.Name, nil
		}
		return "*string", nil
	}
	if t, ok := scalarTypes[s.Type]; ok {
		return "*" + t, nil
	}
	return "", fmt.Errorf("shape %s: unsupported type %q", s.Name, s.Type)
}

// elemType returns the Go type a shape takes in list element and map value
// position. Map keys are always plain strings; enum-keyed maps decode
// through string keys the same way.
func (r *typeResolver) elemType(name string) (string, error) {
	s, err := r.shape(name)
	if err != nil {
		return "", err
	}
	if s.IsDocument {
		return "protocol.Document", nil
	}
	switch s.Type {
	case "structure":
		return s.Name, nil
	case "blob":
		return "[]byte", nil
	case "timestamp":
		return "time.Time", nil
	case "list":
		elem, err := r.elemType(s.MemberShape)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", s.Name, err)
		}
		return "[]" + elem, nil
	case "map":
		val, err := r.elemType(s.ValueShape)
		if err != nil {
			return "", fmt.Errorf("map %s: %w", s.Name, err)
		}
		return "map[string]" + val, nil
	case "string":
		if len(s.Enum) > 0 {
			return s.Name, nil
		}
		return "string", nil
	}
	if t, ok := scalarTypes[s.Type]; ok {
		return t, nil
	}
	return "", fmt.Errorf("shape %s: unsupported type %q", s.Name, s.Type)
}

// fieldTag renders the vogels struct tag for a member. The first token is
// the member's model name, which keys the document tree; the rest records
// the wire binding for readers.
func fieldTag(m *intermediate.Member) string {
	parts := []string{m.Name}
	if m.Location != "" {
		parts = append(parts, "location="+m.Location)
	}
	if m.LocationName != "" {
		parts = append(parts, "locationName="+m.LocationName)
	}
	if m.TimestampFormat != "" {
		parts = append(parts, "timestampFormat="+m.TimestampFormat)
	}
	return "`vogels:" + strconv.Quote(strings.Join(parts, ",")) + "`"
}

// schemaVarName returns the unexported variable holding an operation's
// schema literal, e.g. "PutWidget" -> "putWidgetSchema".
func schemaVarName(opName string) string {
	return strings.ToLower(opName[:1]) + opName[1:] + "Schema"
}

const modulePath = "github.com/acksell/vogels"

// codecImports maps a wire protocol to the codec package whose blank
// import registers it.
var codecImports = map[string]string{
	"json":               modulePath + "/sdk/protocol/awsjson",
	"rest-json":          modulePath + "/sdk/protocol/restjson",
	"query":              modulePath + "/sdk/protocol/awsquery",
	"ec2":                modulePath + "/sdk/protocol/awsquery",
	"rest-xml":           modulePath + "/sdk/protocol/restxml",
	"smithy-rpc-v2-cbor": modulePath + "/sdk/protocol/rpccbor",
}

// renderImports lays out an import declaration with the conventional
// groups: standard library, external modules, then this module. Lines
// arrive fully rendered, alias and quotes included.
func renderImports(groups ...[]string) string {
	var filled [][]string
	for _, g := range groups {
		if len(g) > 0 {
			filled = append(filled, g)
		}
	}
	if len(filled) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("import (\n")
	for i, g := range filled {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, line := range g {
			b.WriteString("\t" + line + "\n")
		}
	}
	b.WriteString(")")
	return b.String()
}

func imp(path string) string {
	return strconv.Quote(path)
}

func impBlank(path string) string {
	return "_ " + strconv.Quote(path)
}

func impAlias(alias, path string) string {
	return alias + " " + strconv.Quote(path)
}
