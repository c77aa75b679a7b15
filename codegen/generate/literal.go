package generate

import (
	"fmt"
	"strings"

	"github.com/acksell/vogels/codegen/intermediate"
	"github.com/acksell/vogels/sdk/protocol"
)

// The generator builds real runtime schema values and prints them as Go
// literals, so a schema field added to the runtime surfaces here as a
// compile error instead of silently missing output.

func serviceSchema(meta intermediate.Metadata) *protocol.ServiceSchema {
	return &protocol.ServiceSchema{
		ServiceID:       meta.ServiceID,
		EndpointPrefix:  meta.EndpointPrefix,
		SigningName:     meta.SigningName,
		APIVersion:      meta.APIVersion,
		Protocol:        meta.Protocol,
		TargetPrefix:    meta.TargetPrefix,
		JSONVersion:     meta.JSONVersion,
		QueryCompatible: meta.AWSQueryCompatible,
		XMLNamespace:    meta.XMLNamespace,
	}
}

func operationSchema(op *intermediate.Operation) *protocol.OperationSchema {
	s := &protocol.OperationSchema{
		Name:                 op.Name,
		Method:               op.HTTP.Method,
		RequestURI:           op.HTTP.RequestURI,
		ResponseCode:         op.HTTP.ResponseCode,
		HostPrefix:           op.HostPrefix,
		InputShape:           op.Input,
		OutputShape:          op.ReturnType,
		ResultWrapper:        op.ResultWrapper,
		IsAuthenticated:      op.IsAuthenticated,
		UnsignedPayload:      op.UnsignedPayload,
		HTTPChecksumRequired: op.HTTPChecksumRequired,
		RequestCompression:   op.RequestCompression,
		IsEventStreamOutput:  op.IsEventStreamOutput,
		IsEventStreamInput:   op.IsEventStreamInput,
	}
	for _, ex := range op.Exceptions {
		s.Errors = append(s.Errors, protocol.ErrorSchema{
			Code:           ex.ErrorCode,
			Shape:          ex.ShapeName,
			HTTPStatusCode: ex.HTTPStatusCode,
			SenderFault:    ex.SenderFault,
		})
	}
	return s
}

func shapeSchema(s *intermediate.Shape) *protocol.ShapeSchema {
	out := &protocol.ShapeSchema{
		Name:               s.Name,
		Type:               s.Type,
		Payload:            s.Payload,
		MemberShape:        s.MemberShape,
		MemberLocationName: s.MemberLocationName,
		KeyShape:           s.KeyShape,
		KeyLocationName:    s.KeyLocationName,
		ValueShape:         s.ValueShape,
		ValueLocationName:  s.ValueLocationName,
		Streaming:          s.IsStreaming,
		Sensitive:          s.IsSensitive,
		EventStream:        s.IsEventStream,
		Event:              s.IsEvent,
		Flattened:          s.Flattened,
		Document:           s.IsDocument,
		LocationName:       s.LocationName,
		TimestampFormat:    s.TimestampFormat,
	}
	if s.XMLNamespace != nil {
		out.XMLNamespace = s.XMLNamespace.URI
	}
	for i := range s.Members {
		m := &s.Members[i]
		out.Members = append(out.Members, protocol.MemberSchema{
			Name:             m.Name,
			Shape:            m.Shape,
			Location:         m.Location,
			LocationName:     m.LocationName,
			QueryName:        m.QueryName,
			Streaming:        m.Streaming,
			EventPayload:     m.EventPayload,
			EventHeader:      m.EventHeader,
			HostLabel:        m.HostLabel,
			IdempotencyToken: m.IdempotencyToken,
			TimestampFormat:  m.TimestampFormat,
			Flattened:        m.Flattened,
			JSONValue:        m.JSONValue,
			XMLAttribute:     m.XMLAttribute,
		})
	}
	return out
}

// literalWriter accumulates a composite literal, emitting only fields that
// differ from their zero value. Indentation is left to go/format.
type literalWriter struct {
	b strings.Builder
}

func (w *literalWriter) open(head string) { w.b.WriteString(head + "{\n") }
func (w *literalWriter) close() string    { w.b.WriteString("}"); return w.b.String() }

func (w *literalWriter) raw(field, expr string) {
	fmt.Fprintf(&w.b, "%s: %s,\n", field, expr)
}

func (w *literalWriter) str(field, v string) {
	if v != "" {
		fmt.Fprintf(&w.b, "%s: %q,\n", field, v)
	}
}

func (w *literalWriter) num(field string, v int) {
	if v != 0 {
		fmt.Fprintf(&w.b, "%s: %d,\n", field, v)
	}
}

func (w *literalWriter) flag(field string, v bool) {
	if v {
		fmt.Fprintf(&w.b, "%s: true,\n", field)
	}
}

func (w *literalWriter) strs(field string, v []string) {
	if len(v) == 0 {
		return
	}
	quoted := make([]string, len(v))
	for i, s := range v {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	fmt.Fprintf(&w.b, "%s: []string{%s},\n", field, strings.Join(quoted, ", "))
}

func serviceLiteral(s *protocol.ServiceSchema) string {
	var w literalWriter
	w.open("&protocol.ServiceSchema")
	w.str("ServiceID", s.ServiceID)
	w.str("EndpointPrefix", s.EndpointPrefix)
	w.str("SigningName", s.SigningName)
	w.str("APIVersion", s.APIVersion)
	w.str("Protocol", s.Protocol)
	w.str("TargetPrefix", s.TargetPrefix)
	w.str("JSONVersion", s.JSONVersion)
	w.flag("QueryCompatible", s.QueryCompatible)
	w.str("XMLNamespace", s.XMLNamespace)
	return w.close()
}

// operationLiteral prints an operation schema referencing the file-scoped
// serviceSchema and shapes variables.
func operationLiteral(s *protocol.OperationSchema) string {
	var w literalWriter
	w.open("&protocol.OperationSchema")
	w.str("Name", s.Name)
	w.raw("Service", "serviceSchema")
	w.raw("Shapes", "shapes")
	w.str("Method", s.Method)
	w.str("RequestURI", s.RequestURI)
	w.num("ResponseCode", s.ResponseCode)
	w.str("HostPrefix", s.HostPrefix)
	w.str("InputShape", s.InputShape)
	w.str("OutputShape", s.OutputShape)
	w.str("ResultWrapper", s.ResultWrapper)
	if len(s.Errors) > 0 {
		var b strings.Builder
		b.WriteString("[]protocol.ErrorSchema{\n")
		for i := range s.Errors {
			b.WriteString(errorLiteral(&s.Errors[i]) + ",\n")
		}
		b.WriteString("}")
		w.raw("Errors", b.String())
	}
	w.flag("IsAuthenticated", s.IsAuthenticated)
	w.flag("UnsignedPayload", s.UnsignedPayload)
	w.flag("HTTPChecksumRequired", s.HTTPChecksumRequired)
	w.strs("RequestCompression", s.RequestCompression)
	w.flag("IsEventStreamOutput", s.IsEventStreamOutput)
	w.flag("IsEventStreamInput", s.IsEventStreamInput)
	return w.close()
}

func errorLiteral(e *protocol.ErrorSchema) string {
	parts := []string{
		fmt.Sprintf("Code: %q", e.Code),
		fmt.Sprintf("Shape: %q", e.Shape),
	}
	if e.HTTPStatusCode != 0 {
		parts = append(parts, fmt.Sprintf("HTTPStatusCode: %d", e.HTTPStatusCode))
	}
	if e.SenderFault {
		parts = append(parts, "SenderFault: true")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// shapeLiteral prints one shape schema as a map element; the pointer is
// elided because the enclosing map's value type supplies it.
func shapeLiteral(s *protocol.ShapeSchema) string {
	var w literalWriter
	w.open("")
	w.str("Name", s.Name)
	w.str("Type", s.Type)
	if len(s.Members) > 0 {
		var b strings.Builder
		b.WriteString("[]protocol.MemberSchema{\n")
		for i := range s.Members {
			b.WriteString(memberLiteral(&s.Members[i]) + ",\n")
		}
		b.WriteString("}")
		w.raw("Members", b.String())
	}
	w.str("Payload", s.Payload)
	w.str("MemberShape", s.MemberShape)
	w.str("MemberLocationName", s.MemberLocationName)
	w.str("KeyShape", s.KeyShape)
	w.str("KeyLocationName", s.KeyLocationName)
	w.str("ValueShape", s.ValueShape)
	w.str("ValueLocationName", s.ValueLocationName)
	w.flag("Streaming", s.Streaming)
	w.flag("Sensitive", s.Sensitive)
	w.flag("EventStream", s.EventStream)
	w.flag("Event", s.Event)
	w.flag("Flattened", s.Flattened)
	w.flag("Document", s.Document)
	w.str("LocationName", s.LocationName)
	w.str("XMLNamespace", s.XMLNamespace)
	w.str("TimestampFormat", s.TimestampFormat)
	return w.close()
}

func memberLiteral(m *protocol.MemberSchema) string {
	parts := []string{
		fmt.Sprintf("Name: %q", m.Name),
		fmt.Sprintf("Shape: %q", m.Shape),
	}
	add := func(field, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s: %q", field, v))
		}
	}
	addFlag := func(field string, v bool) {
		if v {
			parts = append(parts, field+": true")
		}
	}
	add("Location", m.Location)
	add("LocationName", m.LocationName)
	add("QueryName", m.QueryName)
	addFlag("Streaming", m.Streaming)
	addFlag("EventPayload", m.EventPayload)
	addFlag("EventHeader", m.EventHeader)
	addFlag("HostLabel", m.HostLabel)
	addFlag("IdempotencyToken", m.IdempotencyToken)
	add("TimestampFormat", m.TimestampFormat)
	addFlag("Flattened", m.Flattened)
	addFlag("JSONValue", m.JSONValue)
	addFlag("XMLAttribute", m.XMLAttribute)
	return "{" + strings.Join(parts, ", ") + "}"
}
