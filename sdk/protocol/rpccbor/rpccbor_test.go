package rpccbor

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/transport"
)

func widgetOp() *protocol.OperationSchema {
	return &protocol.OperationSchema{
		Name:        "CreateWidget",
		Service:     &protocol.ServiceSchema{ServiceID: "Widgets", TargetPrefix: "WidgetService", Protocol: protocol.RPCv2CBOR},
		InputShape:  "WidgetData",
		OutputShape: "WidgetData",
		Errors: []protocol.ErrorSchema{
			{Code: "NoSuchWidget", Shape: "NoSuchWidgetException", HTTPStatusCode: 404, SenderFault: true},
		},
		Shapes: map[string]*protocol.ShapeSchema{
			"WidgetData": {
				Name: "WidgetData",
				Type: "structure",
				Members: []protocol.MemberSchema{
					{Name: "Name", Shape: "String"},
					{Name: "Count", Shape: "Long"},
					{Name: "Ratio", Shape: "Double"},
					{Name: "Payload", Shape: "Blob"},
					{Name: "CreatedAt", Shape: "Timestamp"},
					{Name: "Tags", Shape: "StringList"},
				},
			},
			"NoSuchWidgetException": {
				Name: "NoSuchWidgetException",
				Type: "structure",
				Members: []protocol.MemberSchema{
					{Name: "Message", Shape: "String", LocationName: "message"},
				},
			},
			"String":     {Name: "String", Type: "string"},
			"Long":       {Name: "Long", Type: "long"},
			"Double":     {Name: "Double", Type: "double"},
			"Blob":       {Name: "Blob", Type: "blob"},
			"Timestamp":  {Name: "Timestamp", Type: "timestamp"},
			"StringList": {Name: "StringList", Type: "list", MemberShape: "String"},
		},
	}
}

func TestMarshalRequest(t *testing.T) {
	op := widgetOp()

	t.Run("uri and protocol headers", func(t *testing.T) {
		req, err := Codec{}.MarshalRequest(op, map[string]protocol.Document{"Name": "w1"})
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/service/WidgetService/operation/CreateWidget", req.Path)
		assert.Equal(t, "rpc-v2-cbor", req.Header.Get("smithy-protocol"))
		assert.Equal(t, "application/cbor", req.Header.Get("Content-Type"))
		assert.Equal(t, "application/cbor", req.Header.Get("Accept"))
		assert.NotEmpty(t, req.Body)
	})

	t.Run("no input means no body", func(t *testing.T) {
		bare := widgetOp()
		bare.InputShape = ""
		req, err := Codec{}.MarshalRequest(bare, nil)
		require.NoError(t, err)
		assert.Empty(t, req.Body)
		assert.Empty(t, req.Header.Get("Content-Type"))
	})
}

func TestRoundTrip(t *testing.T) {
	op := widgetOp()
	created := time.Unix(1709500000, 500*int64(time.Millisecond)).UTC()
	input := map[string]protocol.Document{
		"Name":      "w1",
		"Count":     int64(9007199254740993),
		"Ratio":     0.25,
		"Payload":   []byte{0x01, 0x02, 0x03},
		"CreatedAt": created,
		"Tags":      []protocol.Document{"a", "b"},
	}

	req, err := Codec{}.MarshalRequest(op, input)
	require.NoError(t, err)

	doc, err := Codec{}.UnmarshalResponse(op, &transport.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       req.Body,
	})
	require.NoError(t, err)

	fields, ok := protocol.Fields(doc)
	require.True(t, ok)
	assert.Equal(t, "w1", fields["Name"])
	assert.Equal(t, int64(9007199254740993), fields["Count"])
	assert.Equal(t, 0.25, fields["Ratio"])
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, fields["Payload"])
	assert.Equal(t, []protocol.Document{"a", "b"}, fields["Tags"])

	got, ok := protocol.AsTime(fields["CreatedAt"])
	require.True(t, ok)
	assert.True(t, created.Equal(got), "want %v, got %v", created, got)
}

func TestUnmarshalError(t *testing.T) {
	op := widgetOp()

	t.Run("modeled error", func(t *testing.T) {
		body, err := encMode.Marshal(map[string]any{
			"__type":  "com.widgets#NoSuchWidget",
			"message": "gone",
		})
		require.NoError(t, err)

		_, uerr := Codec{}.UnmarshalResponse(op, &transport.Response{
			StatusCode: 404,
			Header:     http.Header{},
			Body:       body,
		})
		require.Error(t, uerr)

		var serr *protocol.ServiceError
		require.ErrorAs(t, uerr, &serr)
		assert.Equal(t, "NoSuchWidget", serr.Code)
		assert.Equal(t, "gone", serr.Message)
		assert.Equal(t, "NoSuchWidgetException", serr.Shape)
		assert.Equal(t, protocol.FaultClient, serr.Fault)
	})

	t.Run("undecodable body keeps status fault", func(t *testing.T) {
		_, uerr := Codec{}.UnmarshalResponse(op, &transport.Response{
			StatusCode: 500,
			Header:     http.Header{},
			Body:       []byte{0xff, 0x00},
		})

		var serr *protocol.ServiceError
		require.ErrorAs(t, uerr, &serr)
		assert.Empty(t, serr.Code)
		assert.Equal(t, protocol.FaultServer, serr.Fault)
	})
}
