// Package endpoints resolves the base URL a marshalled request is sent to
// and expands the host prefix some operations prepend to it.
package endpoints

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/acksell/vogels/sdk/protocol"
)

// Resolver yields the base endpoint for a service in a region.
type Resolver interface {
	Resolve(service *protocol.ServiceSchema, region string) (url.URL, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(service *protocol.ServiceSchema, region string) (url.URL, error)

func (f ResolverFunc) Resolve(service *protocol.ServiceSchema, region string) (url.URL, error) {
	return f(service, region)
}

// DefaultSuffix is the public endpoint domain used when no suffix is
// configured.
const DefaultSuffix = "amazonaws.com"

// Default returns the conventional resolver, yielding endpoints of the
// form https://{endpointPrefix}.{region}.{suffix}.
func Default(suffix string) Resolver {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return ResolverFunc(func(service *protocol.ServiceSchema, region string) (url.URL, error) {
		if service == nil || service.EndpointPrefix == "" {
			return url.URL{}, fmt.Errorf("service has no endpoint prefix")
		}
		if region == "" {
			return url.URL{}, fmt.Errorf("no region configured for %s", service.ServiceID)
		}
		return url.URL{
			Scheme: "https",
			Host:   service.EndpointPrefix + "." + region + "." + suffix,
		}, nil
	})
}

// Static returns a resolver pinned to one URL, for local stacks and test
// servers.
func Static(rawURL string) Resolver {
	u, err := url.Parse(rawURL)
	return ResolverFunc(func(*protocol.ServiceSchema, string) (url.URL, error) {
		if err != nil {
			return url.URL{}, fmt.Errorf("static endpoint %q: %w", rawURL, err)
		}
		return *u, nil
	})
}

// HostPrefix expands an operation's endpoint trait against its input.
// {member} placeholders are replaced with the member's value, which must
// be a valid DNS label.
func HostPrefix(op *protocol.OperationSchema, input protocol.Document) (string, error) {
	prefix := op.HostPrefix
	if !strings.Contains(prefix, "{") {
		return prefix, nil
	}

	fields, _ := protocol.Fields(input)
	var b strings.Builder
	for {
		open := strings.Index(prefix, "{")
		if open < 0 {
			b.WriteString(prefix)
			return b.String(), nil
		}
		close := strings.Index(prefix, "}")
		if close < open {
			return "", fmt.Errorf("malformed host prefix %q", op.HostPrefix)
		}
		b.WriteString(prefix[:open])

		name := prefix[open+1 : close]
		value, ok := protocol.AsString(fields[name])
		if !ok || value == "" {
			return "", fmt.Errorf("host label %s has no value", name)
		}
		if !validHostLabel(value) {
			return "", fmt.Errorf("host label %s value %q is not a valid dns label", name, value)
		}
		b.WriteString(value)
		prefix = prefix[close+1:]
	}
}

// ApplyHostPrefix prepends prefix to the endpoint host. The prefix carries
// its own trailing separator when it needs one.
func ApplyHostPrefix(endpoint url.URL, prefix string) url.URL {
	if prefix == "" {
		return endpoint
	}
	endpoint.Host = prefix + endpoint.Host
	return endpoint
}

func validHostLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '-':
		default:
			return false
		}
	}
	return true
}
