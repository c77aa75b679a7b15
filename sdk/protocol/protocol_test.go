package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/sdk/transport"
)

func TestSanitizeErrorCode(t *testing.T) {
	tests := map[string]string{
		"NoSuchWidget":                               "NoSuchWidget",
		"com.widgets.v1#NoSuchWidget":                "NoSuchWidget",
		"NoSuchWidget:http://internal.amazon.com/":   "NoSuchWidget",
		"com.widgets#NoSuchWidget:http://elsewhere/": "NoSuchWidget",
		"  Padded ":                                  "Padded",
		"":                                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeErrorCode(in), "SanitizeErrorCode(%q)", in)
	}
}

func TestParseQueryErrorHeader(t *testing.T) {
	code, errType := ParseQueryErrorHeader("Customized;Sender")
	assert.Equal(t, "Customized", code)
	assert.Equal(t, "Sender", errType)

	code, errType = ParseQueryErrorHeader("JustACode")
	assert.Equal(t, "JustACode", code)
	assert.Empty(t, errType)

	code, _ = ParseQueryErrorHeader("")
	assert.Empty(t, code)
}

func TestTimestamps(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 500_000_000, time.UTC)

	t.Run("epoch seconds round trip", func(t *testing.T) {
		got, err := ParseTimestamp(EpochSeconds(ts), TimestampUnix, "")
		require.NoError(t, err)
		assert.True(t, got.Equal(ts), "got %v", got)
	})

	t.Run("iso8601 round trip", func(t *testing.T) {
		s := FormatTimestamp(ts, "", TimestampISO8601)
		assert.Equal(t, "2024-03-01T12:30:45.5Z", s)
		got, err := ParseTimestamp(s, "", TimestampISO8601)
		require.NoError(t, err)
		assert.True(t, got.Equal(ts))
	})

	t.Run("member format overrides protocol default", func(t *testing.T) {
		s := FormatTimestamp(ts, TimestampRFC822, TimestampISO8601)
		got, err := ParseTimestamp(s, TimestampRFC822, TimestampISO8601)
		require.NoError(t, err)
		assert.True(t, got.Equal(ts.Truncate(time.Second)))
	})

	t.Run("garbage errors", func(t *testing.T) {
		_, err := ParseTimestamp("not-a-date", "", TimestampISO8601)
		require.Error(t, err)
	})
}

func TestServiceError(t *testing.T) {
	err := &ServiceError{
		Code:       "Throttling",
		Message:    "slow down",
		Fault:      FaultServer,
		StatusCode: 429,
		RequestID:  "req-1",
	}
	assert.Contains(t, err.Error(), "api error Throttling: slow down")
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "req-1")
	assert.Equal(t, "Throttling", err.ErrorCode())
	assert.False(t, err.Modeled())

	err.Shape = "ThrottlingException"
	assert.True(t, err.Modeled())
}

func TestOperationSchemaHelpers(t *testing.T) {
	op := &OperationSchema{
		Name:        "Fetch",
		OutputShape: "FetchResult",
		Shapes: map[string]*ShapeSchema{
			"FetchResult": {
				Name: "FetchResult",
				Type: "structure",
				Members: []MemberSchema{
					{Name: "Meta", Shape: "String"},
					{Name: "Body", Shape: "StreamingBlob"},
				},
			},
			"String":        {Name: "String", Type: "string"},
			"StreamingBlob": {Name: "StreamingBlob", Type: "blob", Streaming: true},
		},
		Errors: []ErrorSchema{{Code: "NoSuchWidget", Shape: "NoSuchWidgetException"}},
	}

	t.Run("streaming member found through shape flag", func(t *testing.T) {
		m := op.StreamingMember()
		require.NotNil(t, m)
		assert.Equal(t, "Body", m.Name)
	})

	t.Run("error lookup by code", func(t *testing.T) {
		require.NotNil(t, op.ErrorByCode("NoSuchWidget"))
		assert.Nil(t, op.ErrorByCode("Mystery"))
	})

	t.Run("missing shapes resolve to nil", func(t *testing.T) {
		assert.Nil(t, op.Input())
		assert.Nil(t, op.Shape("Ghost"))
	})
}

type nopCodec struct{}

func (nopCodec) MarshalRequest(*OperationSchema, Document) (*transport.Request, error) {
	return transport.NewRequest("POST", "/"), nil
}

func (nopCodec) UnmarshalResponse(*OperationSchema, *transport.Response) (Document, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register("test-proto", nopCodec{})

	got, err := Resolve("test-proto")
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = Resolve("absent-proto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	assert.Panics(t, func() { Register("test-proto", nopCodec{}) })
}
