package protocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/acksell/vogels/sdk/transport"
)

// Wire protocol names as service models declare them. Codec packages
// register under these keys.
const (
	JSON      = "json"
	RestJSON  = "rest-json"
	Query     = "query"
	EC2Query  = "ec2"
	RestXML   = "rest-xml"
	RPCv2CBOR = "smithy-rpc-v2-cbor"
)

// Codec converts between canonical Documents and wire bytes for one
// protocol family. Implementations are stateless and safe for concurrent
// use.
type Codec interface {
	// MarshalRequest is a pure function of the operation schema and the
	// input document. It performs no I/O; endpoint resolution, signing
	// and transmission belong to the pipeline.
	MarshalRequest(op *OperationSchema, input Document) (*transport.Request, error)

	// UnmarshalResponse is a pure function of the operation schema and
	// the received status, headers and body. Error responses come back as
	// a *ServiceError carrying the protocol's error code so callers can
	// select the right typed exception.
	UnmarshalResponse(op *OperationSchema, resp *transport.Response) (Document, error)
}

var (
	codecsMu sync.RWMutex
	codecs   = map[string]Codec{}
)

// Register makes a codec available under a protocol name. Codec packages
// call this from init; generated clients blank-import the package for the
// protocol their service speaks.
func Register(name string, codec Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	if codec == nil {
		panic("protocol: Register with nil codec")
	}
	if _, dup := codecs[name]; dup {
		panic(fmt.Sprintf("protocol: Register called twice for %q", name))
	}
	codecs[name] = codec
}

// Resolve returns the codec registered under a protocol name.
func Resolve(name string) (Codec, error) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	codec, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("protocol %q is not registered (missing codec package import?), have %v", name, registeredNames())
	}
	return codec, nil
}

func registeredNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
