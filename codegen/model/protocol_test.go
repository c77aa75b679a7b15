package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProtocol(t *testing.T) {
	tests := []struct {
		name     string
		metadata Metadata
		want     string
		wantErr  string
	}{
		{
			name:     "protocols list picks first supported",
			metadata: Metadata{Protocols: []string{"smithy-rpc-v2-cbor", "json"}},
			want:     "smithy-rpc-v2-cbor",
		},
		{
			name:     "unsupported entries are skipped",
			metadata: Metadata{Protocols: []string{"carrier-pigeon", "rest-json"}},
			want:     "rest-json",
		},
		{
			name:     "list wins over legacy field",
			metadata: Metadata{Protocol: "query", Protocols: []string{"json"}},
			want:     "json",
		},
		{
			name:     "all-unsupported list errors even with legacy fallback available",
			metadata: Metadata{ServiceID: "X", Protocol: "query", Protocols: []string{"carrier-pigeon"}},
			wantErr:  "no supported protocol",
		},
		{
			name:     "legacy field used when list absent",
			metadata: Metadata{Protocol: "rest-xml"},
			want:     "rest-xml",
		},
		{
			name:     "unsupported legacy protocol errors",
			metadata: Metadata{ServiceID: "X", Protocol: "soap"},
			wantErr:  `unsupported protocol "soap"`,
		},
		{
			name:     "nothing declared errors",
			metadata: Metadata{ServiceID: "X"},
			wantErr:  "no protocol declared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveProtocol(tt.metadata)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
