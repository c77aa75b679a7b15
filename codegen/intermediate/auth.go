package intermediate

import (
	"fmt"

	"github.com/acksell/vogels/codegen/model"
)

// AuthType is a resolved authentication scheme for an operation.
type AuthType string

const (
	AuthNone           AuthType = "none"
	AuthIAM            AuthType = "iam"
	AuthV4             AuthType = "v4"
	AuthV4A            AuthType = "v4a"
	AuthV4UnsignedBody AuthType = "v4-unsigned-body"
	AuthBearer         AuthType = "bearer"
	AuthCustom         AuthType = "custom"
)

var legacyAuthTypes = map[string]AuthType{
	"none":             AuthNone,
	"iam":              AuthIAM,
	"v4":               AuthV4,
	"v4a":              AuthV4A,
	"v4-unsigned-body": AuthV4UnsignedBody,
	"bearer":           AuthBearer,
	"custom":           AuthCustom,
}

// Auth list entries use scheme IDs rather than the legacy value set.
var schemeAuthTypes = map[string]AuthType{
	"aws.auth#sigv4":            AuthV4,
	"aws.auth#sigv4a":           AuthV4A,
	"smithy.api#httpBearerAuth": AuthBearer,
	"smithy.api#noAuth":         AuthNone,
}

// ParseAuthType maps a legacy single authtype value.
func ParseAuthType(v string) (AuthType, error) {
	if t, ok := legacyAuthTypes[v]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown auth type %q", v)
}

// ParseAuthScheme maps a modern auth list entry.
func ParseAuthScheme(v string) (AuthType, error) {
	if t, ok := schemeAuthTypes[v]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown auth scheme %q", v)
}

// resolveAuth computes an operation's effective auth list. The legacy
// single authtype field wins outright when set, even if the modern list is
// also present; otherwise the modern list is mapped entry by entry; with
// neither declared the list is empty, meaning the service default applies.
func resolveAuth(op *model.Operation) ([]AuthType, error) {
	if op.AuthType != "" {
		t, err := ParseAuthType(op.AuthType)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", op.Name, err)
		}
		return []AuthType{t}, nil
	}
	if len(op.Auth) == 0 {
		return nil, nil
	}
	out := make([]AuthType, 0, len(op.Auth))
	for _, scheme := range op.Auth {
		t, err := ParseAuthScheme(scheme)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", op.Name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// isAuthenticated reports whether an operation requires credentials. Only
// an explicit legacy authtype of "none" opts out.
func isAuthenticated(op *model.Operation) bool {
	return op.AuthType == "" || op.AuthType != string(AuthNone)
}
