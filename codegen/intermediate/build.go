package intermediate

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/acksell/vogels/codegen/model"
)

// Builder normalizes loaded service models into canonical Models.
type Builder struct {
	logger log.FieldLogger
}

// NewBuilder creates a Builder. A nil logger falls back to the standard
// logger.
func NewBuilder(logger log.FieldLogger) *Builder {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Builder{logger: logger}
}

// Build produces the canonical model for one loaded service. Any model
// defect it finds (dangling shape reference, unknown auth value, payload
// naming a missing member, unsupported protocol) is fatal: the returned
// model is nil and the service must generate nothing.
func (b *Builder) Build(svc *model.Service) (*Model, error) {
	api := svc.API
	if err := api.Validate(); err != nil {
		return nil, err
	}
	protocol, err := model.ResolveProtocol(api.Metadata)
	if err != nil {
		return nil, err
	}

	c := &buildContext{
		api:        api,
		custom:     svc.Customization,
		paginators: svc.Paginators,
		protocol:   protocol,
		logger:     b.logger.WithField("service", api.Metadata.ServiceID),
		names:      make(map[string]string, api.Shapes.Len()),
	}
	for _, name := range api.Shapes.Keys() {
		c.names[name] = ExportedName(c.custom.RenamedShape(name))
	}

	out := &Model{
		Metadata:      buildMetadata(svc, protocol),
		EndpointRules: api.EndpointRuleSet,
	}

	for _, name := range api.Shapes.Keys() {
		raw, _ := api.Shapes.Get(name)
		shape, err := c.buildShape(name, raw)
		if err != nil {
			return nil, err
		}
		out.Shapes = append(out.Shapes, shape)
	}

	for _, name := range api.Operations.Keys() {
		raw, _ := api.Operations.Get(name)
		op, err := c.buildOperation(name, raw)
		if err != nil {
			return nil, err
		}
		out.Operations = append(out.Operations, op)
	}

	sort.Slice(out.Shapes, func(i, j int) bool { return out.Shapes[i].Name < out.Shapes[j].Name })
	sort.Slice(out.Operations, func(i, j int) bool { return out.Operations[i].Name < out.Operations[j].Name })
	return out, nil
}

type buildContext struct {
	api        *model.API
	custom     *model.CustomizationConfig
	paginators *model.Paginators
	protocol   string
	logger     log.FieldLogger

	// names maps model shape names to canonical Go names, renames applied.
	names map[string]string
}

func (c *buildContext) canonical(modelName string) string {
	return c.names[modelName]
}

func buildMetadata(svc *model.Service, protocol string) Metadata {
	m := svc.API.Metadata
	signingName := m.SigningName
	if signingName == "" {
		signingName = m.EndpointPrefix
	}
	pkg := m.ServiceID
	if pkg == "" {
		pkg = svc.Name
	}
	return Metadata{
		ServiceID:           m.ServiceID,
		ServiceFullName:     m.ServiceFullName,
		ServiceAbbreviation: m.ServiceAbbreviation,
		APIVersion:          m.APIVersion,
		EndpointPrefix:      m.EndpointPrefix,
		SigningName:         signingName,
		Protocol:            protocol,
		TargetPrefix:        m.TargetPrefix,
		JSONVersion:         m.JSONVersion,
		AWSQueryCompatible:  m.IsQueryCompatible(),
		UID:                 m.UID,
		XMLNamespace:        m.XMLNamespace,
		PackageName:         PackageName(pkg),
	}
}

func (c *buildContext) buildShape(name string, raw *model.Shape) (*Shape, error) {
	s := &Shape{
		Name:              c.canonical(name),
		ModelName:         name,
		Type:              raw.Type,
		Payload:           raw.Payload,
		IsWrapper:         raw.Wrapper,
		IsEventStream:     raw.EventStream,
		IsEvent:           raw.Event,
		IsStreaming:       raw.Streaming,
		IsSensitive:       raw.Sensitive,
		IsDocument:        raw.Document,
		Fault:             raw.Fault,
		TimestampFormat:   raw.TimestampFormat,
		LocationName:      raw.LocationName,
		XMLNamespace:      raw.XMLNamespace,
		Flattened:         raw.Flattened,
		Documentation:     raw.Documentation,
		Deprecated:        raw.Deprecated || c.custom.ShapeDeprecated(name),
		DeprecatedMessage: raw.DeprecatedMessage,
	}

	if raw.Exception || raw.Error != nil {
		s.IsException = true
		s.ErrorCode = name
		if raw.Error != nil {
			if raw.Error.Code != "" {
				s.ErrorCode = raw.Error.Code
			}
			s.HTTPStatusCode = raw.Error.HTTPStatusCode
			s.SenderFault = raw.Error.SenderFault
		}
	}

	switch raw.Type {
	case "structure":
		excluded := stringSet(c.custom.ExcludedMembers(name))
		required := stringSet(raw.Required)
		s.Required = required
		for _, memberName := range raw.Members.Keys() {
			if excluded[memberName] {
				continue
			}
			ref, _ := raw.Members.Get(memberName)
			s.Members = append(s.Members, c.buildMember(memberName, ref, required[memberName]))
		}
	case "list":
		if raw.Member != nil {
			s.MemberShape = c.canonical(raw.Member.Shape)
			s.Flattened = s.Flattened || raw.Member.Flattened
			s.MemberLocationName = raw.Member.LocationName
		}
	case "map":
		if raw.Key != nil {
			s.KeyShape = c.canonical(raw.Key.Shape)
			s.KeyLocationName = raw.Key.LocationName
		}
		if raw.Value != nil {
			s.ValueShape = c.canonical(raw.Value.Shape)
			s.ValueLocationName = raw.Value.LocationName
		}
	case "string":
		for _, v := range raw.Enum {
			s.Enum = append(s.Enum, EnumValue{Name: EnumConstName(s.Name, v), Value: v})
		}
	}
	return s, nil
}

func (c *buildContext) buildMember(name string, ref *model.ShapeRef, required bool) Member {
	target := c.api.Shape(ref.Shape)
	m := Member{
		Name:             name,
		GoName:           ExportedName(name),
		Shape:            c.canonical(ref.Shape),
		Required:         required,
		Location:         ref.Location,
		LocationName:     ref.LocationName,
		QueryName:        ref.QueryName,
		Streaming:        ref.Streaming,
		EventPayload:     ref.EventPayload,
		EventHeader:      ref.EventHeader,
		HostLabel:        ref.HostLabel,
		IdempotencyToken: ref.IdempotencyToken,
		TimestampFormat:  ref.TimestampFormat,
		Flattened:        ref.Flattened,
		JSONValue:        ref.JSONValue,
		XMLAttribute:     ref.XMLAttribute,
		Documentation:    ref.Documentation,
		Deprecated:       ref.Deprecated,
	}
	if target != nil {
		m.Streaming = m.Streaming || target.Streaming
		m.Flattened = m.Flattened || target.Flattened
		if m.TimestampFormat == "" {
			m.TimestampFormat = target.TimestampFormat
		}
	}
	return m
}

func (c *buildContext) buildOperation(name string, raw *model.Operation) (*Operation, error) {
	auth, err := resolveAuth(raw)
	if err != nil {
		return nil, err
	}

	op := &Operation{
		Name:                   ExportedName(name),
		Protocol:               c.protocol,
		Documentation:          raw.Documentation,
		Deprecated:             raw.Deprecated || c.custom.OperationDeprecated(name),
		DeprecatedMessage:      raw.DeprecatedMessage,
		HTTP:                   httpBinding(raw.HTTP),
		AuthTypes:              auth,
		IsAuthenticated:        isAuthenticated(raw),
		EndpointOperation:      raw.EndpointOperation,
		HTTPChecksumRequired:   raw.HTTPChecksumRequired,
		UnsignedPayload:        raw.UnsignedPayload,
		StaticContextParams:    raw.StaticContextParams,
		OperationContextParams: raw.OperationContextParams,
	}
	if raw.Endpoint != nil {
		op.HostPrefix = raw.Endpoint.HostPrefix
	}
	if raw.EndpointDiscovery != nil {
		op.EndpointDiscovery = true
		op.EndpointDiscoveryRequired = raw.EndpointDiscovery.Required
	}
	if raw.RequestCompression != nil {
		op.RequestCompression = raw.RequestCompression.Encodings
	}

	if raw.Input != nil {
		op.Input = c.canonical(raw.Input.Shape)
		inputShape := c.api.Shape(raw.Input.Shape)
		blob, str, err := payloadFlags(c.api, raw.Input.Shape, inputShape)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", name, err)
		}
		op.HasBlobPayload = blob
		op.HasStringPayload = str
		op.IsEventStreamInput = hasEventStream(c.api, inputShape)
	}

	if raw.Output != nil {
		op.ResultWrapper = raw.Output.ResultWrapper
		op.ReturnType = c.canonical(c.resultShapeName(raw))
		outputShape := c.api.Shape(raw.Output.Shape)
		op.IsStreaming = hasStreamingMember(c.api, outputShape)
		op.IsEventStreamOutput = hasEventStream(c.api, outputShape)
	}

	op.Exceptions = c.buildExceptions(raw.Errors)

	if c.paginators != nil {
		if def, ok := c.paginators.Pagination[name]; ok {
			if def.Valid() {
				op.IsPaginated = true
				d := def
				op.Paginator = &d
			} else {
				c.logger.WithField("operation", name).Warn("ignoring paginator definition without input and output tokens")
			}
		}
	}
	return op, nil
}

// resultShapeName applies the result-shape unwrapping rule: an output shape
// with exactly one member whose target is a wrapper shape yields that
// member's shape as the effective return type. Any other member count means
// the declared output stands, wrapper flags notwithstanding.
func (c *buildContext) resultShapeName(raw *model.Operation) string {
	outName := raw.Output.Shape
	out := c.api.Shape(outName)
	if out == nil || out.Members.Len() != 1 {
		return outName
	}
	onlyMember := out.Members.Keys()[0]
	ref, _ := out.Members.Get(onlyMember)
	if target := c.api.Shape(ref.Shape); target != nil && target.Wrapper {
		return ref.Shape
	}
	return outName
}

// buildExceptions resolves each declared error's wire code and HTTP status.
// The operation-level error trait wins over the shape's own trait; shapes
// deprecated by customization are left out entirely.
func (c *buildContext) buildExceptions(refs []model.ShapeRef) []Exception {
	var out []Exception
	for i := range refs {
		ref := &refs[i]
		if c.custom.ShapeDeprecated(ref.Shape) {
			continue
		}
		ex := Exception{
			ShapeName: c.canonical(ref.Shape),
			ErrorCode: ref.Shape,
		}
		if shape := c.api.Shape(ref.Shape); shape != nil && shape.Error != nil {
			if shape.Error.Code != "" {
				ex.ErrorCode = shape.Error.Code
			}
			ex.HTTPStatusCode = shape.Error.HTTPStatusCode
			ex.SenderFault = shape.Error.SenderFault
		}
		if ref.Error != nil {
			if ref.Error.Code != "" {
				ex.ErrorCode = ref.Error.Code
			}
			if ref.Error.HTTPStatusCode != 0 {
				ex.HTTPStatusCode = ref.Error.HTTPStatusCode
			}
			if ref.Error.SenderFault {
				ex.SenderFault = true
			}
		}
		out = append(out, ex)
	}
	return out
}

func payloadFlags(api *model.API, shapeName string, shape *model.Shape) (blob, str bool, err error) {
	if shape == nil || shape.Payload == "" {
		return false, false, nil
	}
	ref, ok := shape.Members.Get(shape.Payload)
	if !ok {
		return false, false, fmt.Errorf("shape %s payload names unknown member %q", shapeName, shape.Payload)
	}
	target := api.Shape(ref.Shape)
	if target == nil {
		return false, false, nil
	}
	if target.Type == "blob" {
		return true, false, nil
	}
	if strings.EqualFold(target.Type, "string") {
		return false, true, nil
	}
	return false, false, nil
}

func hasStreamingMember(api *model.API, shape *model.Shape) bool {
	if shape == nil || shape.Type != "structure" {
		return false
	}
	for _, name := range shape.Members.Keys() {
		ref, _ := shape.Members.Get(name)
		if ref.Streaming {
			return true
		}
		if target := api.Shape(ref.Shape); target != nil && target.Streaming {
			return true
		}
	}
	return false
}

func hasEventStream(api *model.API, shape *model.Shape) bool {
	if shape == nil {
		return false
	}
	if shape.EventStream {
		return true
	}
	if shape.Type != "structure" {
		return false
	}
	for _, name := range shape.Members.Keys() {
		ref, _ := shape.Members.Get(name)
		if target := api.Shape(ref.Shape); target != nil && target.EventStream {
			return true
		}
	}
	return false
}

func httpBinding(t *model.HTTPTrait) HTTPBinding {
	if t == nil {
		return HTTPBinding{Method: "POST", RequestURI: "/"}
	}
	b := HTTPBinding{Method: t.Method, RequestURI: t.RequestURI, ResponseCode: t.ResponseCode}
	if b.Method == "" {
		b.Method = "POST"
	}
	if b.RequestURI == "" {
		b.RequestURI = "/"
	}
	return b
}

func stringSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
