// Package protocol defines the runtime contract between generated clients
// and wire-protocol codecs: operation and shape schemas (the descriptors
// generated code emits as literals), the Document value tree those codecs
// marshal, the Codec interface itself, and the shared error model.
package protocol

// ServiceSchema describes the service a set of operations belongs to. One
// instance is shared by all of a client's operation schemas.
type ServiceSchema struct {
	ServiceID      string
	EndpointPrefix string
	SigningName    string
	APIVersion     string
	Protocol       string

	// TargetPrefix and JSONVersion drive the JSON RPC protocols.
	TargetPrefix string
	JSONVersion  string

	// QueryCompatible enables query-style error codes on JSON services.
	QueryCompatible bool

	XMLNamespace string
}

// OperationSchema is the runtime descriptor of one operation. Shape
// references are by name into Shapes so recursive models stay expressible
// as plain literals.
type OperationSchema struct {
	Name    string
	Service *ServiceSchema
	Shapes  map[string]*ShapeSchema

	Method       string
	RequestURI   string
	ResponseCode int
	HostPrefix   string

	InputShape  string
	OutputShape string

	// ResultWrapper names the XML element wrapping the query-protocol
	// response payload.
	ResultWrapper string

	Errors []ErrorSchema

	IsAuthenticated      bool
	UnsignedPayload      bool
	HTTPChecksumRequired bool
	RequestCompression   []string
	IsEventStreamOutput  bool
	IsEventStreamInput   bool
}

// ShapeSchema is the runtime descriptor of one shape.
type ShapeSchema struct {
	Name string

	// Type is the shape variant: structure, list, map, string, integer,
	// long, float, double, boolean, timestamp or blob.
	Type string

	// Members applies to structures, in wire declaration order. Payload
	// names the member carrying the HTTP body, when bound.
	Members []MemberSchema
	Payload string

	// MemberShape is the list element; KeyShape/ValueShape the map entry.
	// The LocationName variants override the element names the XML and
	// query wire forms use for them.
	MemberShape        string
	MemberLocationName string
	KeyShape           string
	KeyLocationName    string
	ValueShape         string
	ValueLocationName  string

	Streaming   bool
	Sensitive   bool
	EventStream bool
	Event       bool
	Flattened   bool

	// Document marks a free-form shape whose value passes through the
	// codec untyped.
	Document bool

	LocationName    string
	XMLNamespace    string
	TimestampFormat string
}

// MemberSchema is one structure member.
type MemberSchema struct {
	// Name is the member's model name; the default wire name unless
	// LocationName overrides it.
	Name  string
	Shape string

	// Location is the HTTP binding: "header", "headers", "uri",
	// "querystring", "statusCode", or empty for the body.
	Location     string
	LocationName string

	QueryName        string
	Streaming        bool
	EventPayload     bool
	EventHeader      bool
	HostLabel        bool
	IdempotencyToken bool
	TimestampFormat  string
	Flattened        bool
	JSONValue        bool
	XMLAttribute     bool
}

// ErrorSchema maps one wire error code to its shape and HTTP binding.
type ErrorSchema struct {
	Code           string
	Shape          string
	HTTPStatusCode int
	SenderFault    bool
}

// Shape resolves a shape name against the operation's shape table.
func (s *OperationSchema) Shape(name string) *ShapeSchema {
	if s == nil || name == "" {
		return nil
	}
	return s.Shapes[name]
}

// Input returns the input shape schema, or nil when the operation takes no
// input.
func (s *OperationSchema) Input() *ShapeSchema {
	return s.Shape(s.InputShape)
}

// Output returns the effective output shape schema, or nil.
func (s *OperationSchema) Output() *ShapeSchema {
	return s.Shape(s.OutputShape)
}

// StreamingMember returns the output member carrying a streaming payload,
// or nil for fully buffered outputs.
func (s *OperationSchema) StreamingMember() *MemberSchema {
	out := s.Output()
	if out == nil {
		return nil
	}
	for i := range out.Members {
		m := &out.Members[i]
		if m.Streaming {
			return m
		}
		if target := s.Shape(m.Shape); target != nil && target.Streaming {
			return m
		}
	}
	return nil
}

// MemberNamed returns the structure member with the given model name, or
// nil.
func (s *ShapeSchema) MemberNamed(name string) *MemberSchema {
	if s == nil {
		return nil
	}
	for i := range s.Members {
		if s.Members[i].Name == name {
			return &s.Members[i]
		}
	}
	return nil
}

// WireName returns the member's name on the wire.
func (m *MemberSchema) WireName() string {
	if m.LocationName != "" {
		return m.LocationName
	}
	return m.Name
}

// ErrorByCode returns the declared error schema matching a wire code, or
// nil when the code is unmodeled.
func (s *OperationSchema) ErrorByCode(code string) *ErrorSchema {
	for i := range s.Errors {
		if s.Errors[i].Code == code {
			return &s.Errors[i]
		}
	}
	return nil
}
