package model

import "fmt"

// Wire protocol names as they appear in service metadata.
const (
	ProtocolAWSJSON   = "json"
	ProtocolRESTJSON  = "rest-json"
	ProtocolQuery     = "query"
	ProtocolEC2       = "ec2"
	ProtocolRESTXML   = "rest-xml"
	ProtocolRPCv2CBOR = "smithy-rpc-v2-cbor"
)

var supportedProtocols = map[string]bool{
	ProtocolAWSJSON:   true,
	ProtocolRESTJSON:  true,
	ProtocolQuery:     true,
	ProtocolEC2:       true,
	ProtocolRESTXML:   true,
	ProtocolRPCv2CBOR: true,
}

// ResolveProtocol picks the wire protocol for a service. When the metadata
// carries a protocols list, the first supported entry wins and a list with
// no supported entry is an error; otherwise the legacy single protocol
// field is used.
func ResolveProtocol(meta Metadata) (string, error) {
	if len(meta.Protocols) > 0 {
		for _, p := range meta.Protocols {
			if supportedProtocols[p] {
				return p, nil
			}
		}
		return "", fmt.Errorf("service %s: no supported protocol among %v", meta.ServiceID, meta.Protocols)
	}
	if supportedProtocols[meta.Protocol] {
		return meta.Protocol, nil
	}
	if meta.Protocol == "" {
		return "", fmt.Errorf("service %s: no protocol declared", meta.ServiceID)
	}
	return "", fmt.Errorf("service %s: unsupported protocol %q", meta.ServiceID, meta.Protocol)
}
