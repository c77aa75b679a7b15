// Package model loads JSON service models: the operation, shape, and
// metadata definitions a service publishes, plus the optional paginator and
// customization side files. The loaded form is the raw dialect as published;
// normalization into the canonical generation model happens in
// codegen/intermediate.
package model

import (
	"encoding/json"
	"fmt"

	"github.com/boynton/data"
)

// API is one service's parsed model.
type API struct {
	Version    string                  `json:"version,omitempty"`
	Metadata   Metadata                `json:"metadata"`
	Operations *OrderedMap[*Operation] `json:"operations"`
	Shapes     *OrderedMap[*Shape]     `json:"shapes"`

	// EndpointRuleSet is the endpoint rules document, kept opaque. The
	// generator embeds it verbatim; nothing here interprets it.
	EndpointRuleSet *data.Object `json:"-"`
}

// Metadata describes the service as a whole.
type Metadata struct {
	APIVersion          string `json:"apiVersion"`
	EndpointPrefix      string `json:"endpointPrefix"`
	ServiceAbbreviation string `json:"serviceAbbreviation,omitempty"`
	ServiceFullName     string `json:"serviceFullName"`
	ServiceID           string `json:"serviceId"`
	SignatureVersion    string `json:"signatureVersion,omitempty"`
	SigningName         string `json:"signingName,omitempty"`
	UID                 string `json:"uid,omitempty"`
	XMLNamespace        string `json:"xmlNamespace,omitempty"`

	// Protocol is the legacy single-protocol declaration. Protocols, when
	// present, takes precedence; see ResolveProtocol.
	Protocol  string   `json:"protocol,omitempty"`
	Protocols []string `json:"protocols,omitempty"`

	// TargetPrefix and JSONVersion drive the X-Amz-Target header and
	// content type of the JSON RPC protocols.
	TargetPrefix string `json:"targetPrefix,omitempty"`
	JSONVersion  string `json:"jsonVersion,omitempty"`

	// AWSQueryCompatible marks a JSON service migrated from the query
	// protocol; presence of the (empty) object is the signal.
	AWSQueryCompatible *AWSQueryCompatible `json:"awsQueryCompatible,omitempty"`
}

// AWSQueryCompatible has no fields; only its presence matters.
type AWSQueryCompatible struct{}

// Operation is one API operation as declared by the model.
type Operation struct {
	Name          string     `json:"name"`
	HTTP          *HTTPTrait `json:"http,omitempty"`
	Input         *ShapeRef  `json:"input,omitempty"`
	Output        *ShapeRef  `json:"output,omitempty"`
	Errors        []ShapeRef `json:"errors,omitempty"`
	Documentation string     `json:"documentation,omitempty"`

	// AuthType is the legacy single auth declaration ("none",
	// "v4-unsigned-body", ...). Auth is the modern list form
	// ("aws.auth#sigv4", ...). Resolution precedence lives in
	// codegen/intermediate.
	AuthType string   `json:"authtype,omitempty"`
	Auth     []string `json:"auth,omitempty"`

	Endpoint             *EndpointTrait          `json:"endpoint,omitempty"`
	EndpointDiscovery    *EndpointDiscoveryTrait `json:"endpointdiscovery,omitempty"`
	EndpointOperation    bool                    `json:"endpointoperation,omitempty"`
	HTTPChecksumRequired bool                    `json:"httpChecksumRequired,omitempty"`
	RequestCompression   *RequestCompression     `json:"requestcompression,omitempty"`
	UnsignedPayload      bool                    `json:"unsignedPayload,omitempty"`
	Idempotent           bool                    `json:"idempotent,omitempty"`
	Deprecated           bool                    `json:"deprecated,omitempty"`
	DeprecatedMessage    string                  `json:"deprecatedMessage,omitempty"`

	StaticContextParams    map[string]StaticContextParam    `json:"staticContextParams,omitempty"`
	OperationContextParams map[string]OperationContextParam `json:"operationContextParams,omitempty"`
}

// HTTPTrait binds an operation to its method, request URI pattern
// (possibly containing {label} placeholders) and success status code.
type HTTPTrait struct {
	Method       string `json:"method"`
	RequestURI   string `json:"requestUri"`
	ResponseCode int    `json:"responseCode,omitempty"`
}

// EndpointTrait prefixes the resolved endpoint host for an operation.
// The prefix may contain {label} placeholders bound to hostLabel members.
type EndpointTrait struct {
	HostPrefix string `json:"hostPrefix"`
}

// EndpointDiscoveryTrait marks an operation as using discovered endpoints.
type EndpointDiscoveryTrait struct {
	Required bool `json:"required,omitempty"`
}

// RequestCompression lists the encodings an operation's request body may be
// compressed with.
type RequestCompression struct {
	Encodings []string `json:"encodings"`
}

// StaticContextParam is a fixed endpoint-resolution parameter declared on
// the operation.
type StaticContextParam struct {
	Value any `json:"value"`
}

// OperationContextParam derives an endpoint-resolution parameter from the
// operation input via a JMESPath-style path.
type OperationContextParam struct {
	Path string `json:"path"`
}

// ShapeRef is a by-name reference to a shape. The same form appears as an
// operation's input/output/error declaration and as a structure member, so
// it carries the per-site serialization overrides for both uses.
type ShapeRef struct {
	Shape         string `json:"shape"`
	Documentation string `json:"documentation,omitempty"`

	// Location and LocationName place the member on the wire for
	// REST-bound protocols: "header", "headers", "uri", "querystring" or
	// "statusCode"; empty means the body. LocationName overrides the wire
	// name whatever the location.
	Location     string `json:"location,omitempty"`
	LocationName string `json:"locationName,omitempty"`

	// QueryName overrides the serialized name for the ec2 query dialect.
	QueryName string `json:"queryName,omitempty"`

	// ResultWrapper names the XML element wrapping the real payload of a
	// query-protocol response. Only meaningful on operation outputs.
	ResultWrapper string `json:"resultWrapper,omitempty"`

	Streaming        bool   `json:"streaming,omitempty"`
	EventPayload     bool   `json:"eventpayload,omitempty"`
	EventHeader      bool   `json:"eventheader,omitempty"`
	HostLabel        bool   `json:"hostLabel,omitempty"`
	IdempotencyToken bool   `json:"idempotencyToken,omitempty"`
	TimestampFormat  string `json:"timestampFormat,omitempty"`
	Flattened        bool   `json:"flattened,omitempty"`
	JSONValue        bool   `json:"jsonvalue,omitempty"`
	XMLAttribute     bool   `json:"xmlAttribute,omitempty"`

	XMLNamespace *XMLNamespace `json:"xmlNamespace,omitempty"`

	// Error carries the operation-level error trait on error references.
	// It takes precedence over the referenced shape's own error trait.
	Error *ErrorInfo `json:"error,omitempty"`

	Deprecated        bool   `json:"deprecated,omitempty"`
	DeprecatedMessage string `json:"deprecatedMessage,omitempty"`
	Box               bool   `json:"box,omitempty"`
}

// Shape is one named type in the model.
type Shape struct {
	// Type is the shape variant: "structure", "list", "map", "string",
	// "integer", "long", "float", "double", "boolean", "timestamp" or
	// "blob". Strings with an enum list act as enums.
	Type string `json:"type"`

	// Members, Required and Payload apply to structures. Member order is
	// the model's declaration order and must survive loading.
	Members  *OrderedMap[*ShapeRef] `json:"members,omitempty"`
	Required []string               `json:"required,omitempty"`
	Payload  string                 `json:"payload,omitempty"`

	// Member applies to lists; Key and Value to maps.
	Member *ShapeRef `json:"member,omitempty"`
	Key    *ShapeRef `json:"key,omitempty"`
	Value  *ShapeRef `json:"value,omitempty"`

	Enum []string `json:"enum,omitempty"`

	// Wrapper marks a query-protocol response wrapper; see the result
	// unwrapping rule in codegen/intermediate.
	Wrapper bool `json:"wrapper,omitempty"`

	Exception   bool       `json:"exception,omitempty"`
	Fault       bool       `json:"fault,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
	Streaming   bool       `json:"streaming,omitempty"`
	EventStream bool       `json:"eventstream,omitempty"`
	Event       bool       `json:"event,omitempty"`
	Sensitive   bool       `json:"sensitive,omitempty"`
	Document    bool       `json:"document,omitempty"`

	TimestampFormat   string        `json:"timestampFormat,omitempty"`
	LocationName      string        `json:"locationName,omitempty"`
	XMLNamespace      *XMLNamespace `json:"xmlNamespace,omitempty"`
	Flattened         bool          `json:"flattened,omitempty"`
	Box               bool          `json:"box,omitempty"`
	Deprecated        bool          `json:"deprecated,omitempty"`
	DeprecatedMessage string        `json:"deprecatedMessage,omitempty"`
	Documentation     string        `json:"documentation,omitempty"`

	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// ErrorInfo is the error trait: the wire error code and HTTP binding of an
// exception shape, declared on the shape or overridden per operation.
type ErrorInfo struct {
	Code           string `json:"code,omitempty"`
	HTTPStatusCode int    `json:"httpStatusCode,omitempty"`
	SenderFault    bool   `json:"senderFault,omitempty"`
}

// XMLNamespace declares the namespace attribute for XML-bound shapes.
type XMLNamespace struct {
	Prefix string `json:"prefix,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// Shape returns the named shape, or nil if the model does not declare it.
func (a *API) Shape(name string) *Shape {
	if a == nil || a.Shapes == nil {
		return nil
	}
	s, _ := a.Shapes.Get(name)
	return s
}

// Operation returns the named operation, or nil if the model does not
// declare it.
func (a *API) Operation(name string) *Operation {
	if a == nil || a.Operations == nil {
		return nil
	}
	op, _ := a.Operations.Get(name)
	return op
}

// IsQueryCompatible reports whether the service declares query-compatible
// error behavior on top of a JSON protocol.
func (m Metadata) IsQueryCompatible() bool {
	return m.AWSQueryCompatible != nil
}

// UnmarshalJSON accepts both the spelled-out object form and the bare "{}"
// presence marker used by published models.
func (q *AWSQueryCompatible) UnmarshalJSON(raw []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("awsQueryCompatible must be an object: %w", err)
	}
	return nil
}
