// Package intermediate normalizes a raw service model into the canonical
// form the generator consumes: one OperationModel per declared operation
// plus a canonical shape table with Go-ready names. All model dialect
// quirks (result wrappers, legacy auth fields, error trait precedence) are
// resolved here so the generator and templates never look at the raw model.
package intermediate

import (
	"github.com/boynton/data"

	"github.com/acksell/vogels/codegen/model"
)

// Model is the canonical generation model for one service.
type Model struct {
	Metadata Metadata

	// Operations and Shapes are sorted by name so generation output is
	// stable across runs.
	Operations []*Operation
	Shapes     []*Shape

	// EndpointRules is carried opaque for embedding in generated config.
	EndpointRules *data.Object
}

// Metadata is the normalized service description.
type Metadata struct {
	ServiceID           string
	ServiceFullName     string
	ServiceAbbreviation string
	APIVersion          string
	EndpointPrefix      string
	SigningName         string

	// Protocol is the resolved wire protocol (see model.ResolveProtocol).
	Protocol string

	TargetPrefix       string
	JSONVersion        string
	AWSQueryCompatible bool
	UID                string
	XMLNamespace       string

	// PackageName is the Go package the service generates into.
	PackageName string
}

// Operation is the canonical form of one API operation. Constructed once
// per generation run and immutable afterwards.
type Operation struct {
	Name              string
	Protocol          string
	Documentation     string
	Deprecated        bool
	DeprecatedMessage string

	HTTP HTTPBinding

	// Input names the canonical input shape; empty when the operation
	// takes no input.
	Input string

	// ReturnType names the canonical output shape after result-shape
	// unwrapping; empty when the operation returns no data.
	ReturnType string

	// ResultWrapper is the XML element wrapping query-protocol response
	// payloads, taken from the declared output reference.
	ResultWrapper string

	Exceptions []Exception

	// AuthTypes is the resolved auth list; empty means the service
	// default applies.
	AuthTypes       []AuthType
	IsAuthenticated bool

	IsPaginated bool
	Paginator   *model.PaginatorDefinition

	HasBlobPayload   bool
	HasStringPayload bool

	// IsStreaming marks an output with a streaming member; such
	// operations hand the caller a live byte stream.
	IsStreaming         bool
	IsEventStreamInput  bool
	IsEventStreamOutput bool

	EndpointOperation         bool
	EndpointDiscovery         bool
	EndpointDiscoveryRequired bool
	HostPrefix                string

	HTTPChecksumRequired bool
	RequestCompression   []string
	UnsignedPayload      bool

	StaticContextParams    map[string]model.StaticContextParam
	OperationContextParams map[string]model.OperationContextParam
}

// HTTPBinding is the operation's method, URI pattern and success code.
// Protocols without an http trait default to POST /.
type HTTPBinding struct {
	Method       string
	RequestURI   string
	ResponseCode int
}

// Exception is one declared error of an operation with its resolved wire
// code and HTTP binding.
type Exception struct {
	ShapeName      string
	ErrorCode      string
	HTTPStatusCode int
	SenderFault    bool
}

// Shape is the canonical form of one model shape.
type Shape struct {
	// Name is the Go-ready exported name; ModelName is the original model
	// name, which stays the default wire name.
	Name      string
	ModelName string

	Type string

	Members  []Member
	Required map[string]bool
	Payload  string

	// MemberShape is the element shape of lists; KeyShape and ValueShape
	// the entry shapes of maps. The LocationName variants carry the
	// per-element wire name overrides of the XML and query dialects.
	MemberShape        string
	MemberLocationName string
	KeyShape           string
	KeyLocationName    string
	ValueShape         string
	ValueLocationName  string

	Enum []EnumValue

	IsWrapper   bool
	IsException bool
	IsEventStream,
	IsEvent,
	IsStreaming,
	IsSensitive,
	IsDocument bool

	ErrorCode      string
	HTTPStatusCode int
	SenderFault    bool
	Fault          bool

	TimestampFormat string
	LocationName    string
	XMLNamespace    *model.XMLNamespace
	Flattened       bool

	Documentation     string
	Deprecated        bool
	DeprecatedMessage string
}

// Member is one structure member with its Go name and wire placement.
type Member struct {
	// Name is the model member name (the default wire name); GoName the
	// exported field name.
	Name   string
	GoName string

	// Shape is the canonical name of the referenced shape.
	Shape string

	Required         bool
	Location         string
	LocationName     string
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

	Documentation string
	Deprecated    bool
}

// EnumValue pairs a wire value with its generated constant name.
type EnumValue struct {
	Name  string
	Value string
}

// Shape returns the named canonical shape, or nil.
func (m *Model) Shape(name string) *Shape {
	for _, s := range m.Shapes {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Operation returns the named operation, or nil.
func (m *Model) Operation(name string) *Operation {
	for _, op := range m.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// Member returns the member with the given model name, or nil.
func (s *Shape) Member(name string) *Member {
	for i := range s.Members {
		if s.Members[i].Name == name {
			return &s.Members[i]
		}
	}
	return nil
}
