package awsjson

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/transport"
)

func widgetOp(queryCompatible bool) *protocol.OperationSchema {
	svc := &protocol.ServiceSchema{
		ServiceID:       "Widgets",
		EndpointPrefix:  "widgets",
		APIVersion:      "2024-03-01",
		Protocol:        protocol.JSON,
		TargetPrefix:    "WidgetService_20240301",
		JSONVersion:     "1.1",
		QueryCompatible: queryCompatible,
	}
	return &protocol.OperationSchema{
		Name:        "CreateWidget",
		Service:     svc,
		Method:      http.MethodPost,
		RequestURI:  "/",
		InputShape:  "CreateWidgetRequest",
		OutputShape: "CreateWidgetResponse",
		Errors: []protocol.ErrorSchema{
			{Code: "NoSuchWidget", Shape: "NoSuchWidgetException", HTTPStatusCode: 404, SenderFault: true},
		},
		Shapes: map[string]*protocol.ShapeSchema{
			"CreateWidgetRequest": {
				Name: "CreateWidgetRequest",
				Type: "structure",
				Members: []protocol.MemberSchema{
					{Name: "Name", Shape: "String"},
					{Name: "Tags", Shape: "TagList", LocationName: "tagSet"},
					{Name: "Payload", Shape: "Blob"},
					{Name: "CreatedAt", Shape: "Timestamp"},
				},
			},
			"CreateWidgetResponse": {
				Name: "CreateWidgetResponse",
				Type: "structure",
				Members: []protocol.MemberSchema{
					{Name: "WidgetId", Shape: "String"},
					{Name: "Count", Shape: "Long"},
					{Name: "CreatedAt", Shape: "Timestamp"},
				},
			},
			"NoSuchWidgetException": {
				Name: "NoSuchWidgetException",
				Type: "structure",
				Members: []protocol.MemberSchema{
					{Name: "Message", Shape: "String", LocationName: "message"},
					{Name: "WidgetId", Shape: "String", LocationName: "widgetId"},
				},
			},
			"String":    {Name: "String", Type: "string"},
			"Long":      {Name: "Long", Type: "long"},
			"Blob":      {Name: "Blob", Type: "blob"},
			"Timestamp": {Name: "Timestamp", Type: "timestamp"},
			"TagList":   {Name: "TagList", Type: "list", MemberShape: "String"},
		},
	}
}

func TestMarshalRequest(t *testing.T) {
	op := widgetOp(false)

	t.Run("target header and body", func(t *testing.T) {
		input := map[string]protocol.Document{
			"Name":      "w1",
			"Tags":      []protocol.Document{"a", "b"},
			"Payload":   []byte("hi"),
			"CreatedAt": time.Unix(1709500000, 0).UTC(),
		}
		req, err := Codec{}.MarshalRequest(op, input)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/", req.Path)
		assert.Equal(t, "WidgetService_20240301.CreateWidget", req.Header.Get("X-Amz-Target"))
		assert.Equal(t, "application/x-amz-json-1.1", req.Header.Get("Content-Type"))
		assert.Empty(t, req.Header.Get("x-amzn-query-mode"))
		assert.JSONEq(t, `{
			"Name": "w1",
			"tagSet": ["a", "b"],
			"Payload": "aGk=",
			"CreatedAt": 1709500000
		}`, string(req.Body))
	})

	t.Run("empty input still sends an object", func(t *testing.T) {
		req, err := Codec{}.MarshalRequest(op, map[string]protocol.Document{})
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(req.Body))
	})

	t.Run("json version 1.0", func(t *testing.T) {
		legacy := widgetOp(false)
		svc := *legacy.Service
		svc.JSONVersion = "1.0"
		legacy.Service = &svc

		req, err := Codec{}.MarshalRequest(legacy, map[string]protocol.Document{})
		require.NoError(t, err)
		assert.Equal(t, "application/x-amz-json-1.0", req.Header.Get("Content-Type"))
	})

	t.Run("query compatible services announce query mode", func(t *testing.T) {
		req, err := Codec{}.MarshalRequest(widgetOp(true), map[string]protocol.Document{})
		require.NoError(t, err)
		assert.Equal(t, "true", req.Header.Get("x-amzn-query-mode"))
	})
}

func TestUnmarshalResponse(t *testing.T) {
	op := widgetOp(false)

	t.Run("success body", func(t *testing.T) {
		resp := &transport.Response{
			StatusCode: 200,
			Header:     http.Header{},
			Body:       []byte(`{"WidgetId":"w-1","Count":9007199254740993,"CreatedAt":1709500000.5}`),
		}
		doc, err := Codec{}.UnmarshalResponse(op, resp)
		require.NoError(t, err)

		fields, ok := protocol.Fields(doc)
		require.True(t, ok)
		assert.Equal(t, "w-1", fields["WidgetId"])
		assert.Equal(t, int64(9007199254740993), fields["Count"])
		created, ok := protocol.AsTime(fields["CreatedAt"])
		require.True(t, ok)
		assert.Equal(t, int64(1709500000), created.Unix())
	})

	t.Run("empty success body", func(t *testing.T) {
		resp := &transport.Response{StatusCode: 200, Header: http.Header{}}
		doc, err := Codec{}.UnmarshalResponse(op, resp)
		require.NoError(t, err)
		fields, ok := protocol.Fields(doc)
		require.True(t, ok)
		assert.Empty(t, fields)
	})

	t.Run("modeled error decodes typed fields", func(t *testing.T) {
		resp := &transport.Response{
			StatusCode: 404,
			Header:     http.Header{"X-Amzn-Requestid": []string{"req-1"}},
			Body:       []byte(`{"__type":"com.widgets.v1#NoSuchWidget","message":"gone","widgetId":"w-9"}`),
		}
		_, err := Codec{}.UnmarshalResponse(op, resp)
		require.Error(t, err)

		var serr *protocol.ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "NoSuchWidget", serr.Code)
		assert.Equal(t, "gone", serr.Message)
		assert.Equal(t, "NoSuchWidgetException", serr.Shape)
		assert.Equal(t, protocol.FaultClient, serr.Fault)
		assert.Equal(t, 404, serr.StatusCode)
		assert.Equal(t, "req-1", serr.RequestID)

		fields, ok := protocol.Fields(serr.Fields)
		require.True(t, ok)
		assert.Equal(t, "w-9", fields["WidgetId"])
	})

	t.Run("unmodeled error keeps sanitized code", func(t *testing.T) {
		resp := &transport.Response{
			StatusCode: 500,
			Header:     http.Header{},
			Body:       []byte(`{"__type":"InternalFailure:http://internal.amazon.com/","message":"boom"}`),
		}
		_, err := Codec{}.UnmarshalResponse(op, resp)

		var serr *protocol.ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "InternalFailure", serr.Code)
		assert.False(t, serr.Modeled())
		assert.Equal(t, protocol.FaultServer, serr.Fault)
	})
}

func TestQueryCompatibleErrors(t *testing.T) {
	op := widgetOp(true)

	t.Run("header code wins over body type", func(t *testing.T) {
		resp := &transport.Response{
			StatusCode: 400,
			Header: http.Header{
				http.CanonicalHeaderKey(protocol.QueryErrorHeader): []string{"Throttling;Sender"},
			},
			Body: []byte(`{"__type":"com.widgets#ThrottlingException","message":"slow down"}`),
		}
		_, err := Codec{}.UnmarshalResponse(op, resp)

		var serr *protocol.ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "Throttling", serr.Code)
		assert.Equal(t, protocol.FaultClient, serr.Fault)
		assert.Equal(t, "slow down", serr.Message)
	})

	t.Run("missing header falls back to body type", func(t *testing.T) {
		resp := &transport.Response{
			StatusCode: 400,
			Header:     http.Header{},
			Body:       []byte(`{"__type":"com.widgets#ThrottlingException"}`),
		}
		_, err := Codec{}.UnmarshalResponse(op, resp)

		var serr *protocol.ServiceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "ThrottlingException", serr.Code)
	})
}
