package endpoints

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/sdk/protocol"
)

func TestDefault(t *testing.T) {
	service := &protocol.ServiceSchema{ServiceID: "Widgets", EndpointPrefix: "widgets"}

	t.Run("builds the regional endpoint", func(t *testing.T) {
		u, err := Default("").Resolve(service, "us-west-2")
		require.NoError(t, err)
		assert.Equal(t, "https://widgets.us-west-2.amazonaws.com", u.String())
	})

	t.Run("custom suffix", func(t *testing.T) {
		u, err := Default("example.test").Resolve(service, "eu-north-1")
		require.NoError(t, err)
		assert.Equal(t, "https://widgets.eu-north-1.example.test", u.String())
	})

	t.Run("missing region fails", func(t *testing.T) {
		_, err := Default("").Resolve(service, "")
		assert.ErrorContains(t, err, "no region")
	})

	t.Run("missing endpoint prefix fails", func(t *testing.T) {
		_, err := Default("").Resolve(&protocol.ServiceSchema{ServiceID: "Bare"}, "us-east-1")
		assert.Error(t, err)
	})
}

func TestStatic(t *testing.T) {
	u, err := Static("http://localhost:4566").Resolve(nil, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", u.String())

	_, err = Static("://missing-scheme").Resolve(nil, "")
	assert.Error(t, err)
}

func TestHostPrefix(t *testing.T) {
	op := func(prefix string) *protocol.OperationSchema {
		return &protocol.OperationSchema{Name: "WriteRecords", HostPrefix: prefix}
	}

	t.Run("plain prefix passes through", func(t *testing.T) {
		got, err := HostPrefix(op("data."), nil)
		require.NoError(t, err)
		assert.Equal(t, "data.", got)
	})

	t.Run("labels substitute from the input", func(t *testing.T) {
		got, err := HostPrefix(op("{AccountId}.data."), map[string]protocol.Document{
			"AccountId": "12345",
		})
		require.NoError(t, err)
		assert.Equal(t, "12345.data.", got)
	})

	t.Run("multiple labels", func(t *testing.T) {
		got, err := HostPrefix(op("{Stage}-{Tenant}."), map[string]protocol.Document{
			"Stage":  "beta",
			"Tenant": "acme",
		})
		require.NoError(t, err)
		assert.Equal(t, "beta-acme.", got)
	})

	t.Run("missing label value fails", func(t *testing.T) {
		_, err := HostPrefix(op("{AccountId}."), map[string]protocol.Document{})
		assert.ErrorContains(t, err, "has no value")
	})

	t.Run("invalid label value fails", func(t *testing.T) {
		_, err := HostPrefix(op("{AccountId}."), map[string]protocol.Document{
			"AccountId": "not/valid",
		})
		assert.ErrorContains(t, err, "not a valid dns label")
	})

	t.Run("malformed template fails", func(t *testing.T) {
		_, err := HostPrefix(op("}oops{."), nil)
		assert.ErrorContains(t, err, "malformed host prefix")
	})
}

func TestApplyHostPrefix(t *testing.T) {
	endpoint := url.URL{Scheme: "https", Host: "widgets.us-east-1.amazonaws.com"}

	applied := ApplyHostPrefix(endpoint, "data.")
	assert.Equal(t, "https://data.widgets.us-east-1.amazonaws.com", applied.String())

	unchanged := ApplyHostPrefix(endpoint, "")
	assert.Equal(t, endpoint, unchanged)
}
