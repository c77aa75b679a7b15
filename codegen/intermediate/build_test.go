package intermediate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/codegen/model"
)

func newTestAPI() *model.API {
	api := &model.API{
		Metadata: model.Metadata{
			ServiceID:       "Widgets",
			ServiceFullName: "Acme Widgets",
			APIVersion:      "2024-03-01",
			EndpointPrefix:  "widgets",
			Protocol:        "query",
		},
		Operations: model.NewOrderedMap[*model.Operation](),
		Shapes:     model.NewOrderedMap[*model.Shape](),
	}
	api.Shapes.Set("String", &model.Shape{Type: "string"})
	api.Shapes.Set("Integer", &model.Shape{Type: "integer"})
	return api
}

func addStructure(api *model.API, name string, members ...[2]string) *model.Shape {
	s := &model.Shape{Type: "structure", Members: model.NewOrderedMap[*model.ShapeRef]()}
	for _, m := range members {
		s.Members.Set(m[0], &model.ShapeRef{Shape: m[1]})
	}
	api.Shapes.Set(name, s)
	return s
}

func build(t *testing.T, svc *model.Service) *Model {
	t.Helper()
	m, err := NewBuilder(nil).Build(svc)
	require.NoError(t, err)
	return m
}

func TestResultShapeUnwrapping(t *testing.T) {
	t.Run("single member pointing at wrapper unwraps", func(t *testing.T) {
		api := newTestAPI()
		wrapper := addStructure(api, "WidgetData", [2]string{"Name", "String"})
		wrapper.Wrapper = true
		addStructure(api, "GetWidgetResult", [2]string{"Data", "WidgetData"})
		api.Operations.Set("GetWidget", &model.Operation{
			Name:   "GetWidget",
			Output: &model.ShapeRef{Shape: "GetWidgetResult"},
		})

		m := build(t, &model.Service{API: api})
		assert.Equal(t, "WidgetData", m.Operation("GetWidget").ReturnType)
	})

	t.Run("two members never unwrap even when both wrap", func(t *testing.T) {
		api := newTestAPI()
		w1 := addStructure(api, "FirstData", [2]string{"Name", "String"})
		w1.Wrapper = true
		w2 := addStructure(api, "SecondData", [2]string{"Name", "String"})
		w2.Wrapper = true
		addStructure(api, "GetWidgetResult",
			[2]string{"First", "FirstData"},
			[2]string{"Second", "SecondData"},
		)
		api.Operations.Set("GetWidget", &model.Operation{
			Name:   "GetWidget",
			Output: &model.ShapeRef{Shape: "GetWidgetResult"},
		})

		m := build(t, &model.Service{API: api})
		assert.Equal(t, "GetWidgetResult", m.Operation("GetWidget").ReturnType)
	})

	t.Run("single member without wrapper flag stays declared", func(t *testing.T) {
		api := newTestAPI()
		addStructure(api, "WidgetData", [2]string{"Name", "String"})
		addStructure(api, "GetWidgetResult", [2]string{"Data", "WidgetData"})
		api.Operations.Set("GetWidget", &model.Operation{
			Name:   "GetWidget",
			Output: &model.ShapeRef{Shape: "GetWidgetResult"},
		})

		m := build(t, &model.Service{API: api})
		assert.Equal(t, "GetWidgetResult", m.Operation("GetWidget").ReturnType)
	})

	t.Run("empty output stays declared", func(t *testing.T) {
		api := newTestAPI()
		addStructure(api, "GetWidgetResult")
		api.Operations.Set("GetWidget", &model.Operation{
			Name:   "GetWidget",
			Output: &model.ShapeRef{Shape: "GetWidgetResult"},
		})

		m := build(t, &model.Service{API: api})
		assert.Equal(t, "GetWidgetResult", m.Operation("GetWidget").ReturnType)
	})

	t.Run("no output means no return type", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("DeleteWidget", &model.Operation{Name: "DeleteWidget"})

		m := build(t, &model.Service{API: api})
		assert.Empty(t, m.Operation("DeleteWidget").ReturnType)
	})
}

func TestAuthResolution(t *testing.T) {
	t.Run("legacy authtype wins over modern list", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Ping", &model.Operation{
			Name:     "Ping",
			AuthType: "v4-unsigned-body",
			Auth:     []string{"aws.auth#sigv4", "smithy.api#httpBearerAuth"},
		})

		m := build(t, &model.Service{API: api})
		op := m.Operation("Ping")
		assert.Equal(t, []AuthType{AuthV4UnsignedBody}, op.AuthTypes)
		assert.True(t, op.IsAuthenticated)
	})

	t.Run("modern list maps entry by entry", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Ping", &model.Operation{
			Name: "Ping",
			Auth: []string{"aws.auth#sigv4", "smithy.api#noAuth"},
		})

		m := build(t, &model.Service{API: api})
		assert.Equal(t, []AuthType{AuthV4, AuthNone}, m.Operation("Ping").AuthTypes)
	})

	t.Run("neither declared leaves the service default", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Ping", &model.Operation{Name: "Ping"})

		m := build(t, &model.Service{API: api})
		op := m.Operation("Ping")
		assert.Empty(t, op.AuthTypes)
		assert.True(t, op.IsAuthenticated)
	})

	t.Run("authtype none opts out of signing", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Ping", &model.Operation{Name: "Ping", AuthType: "none"})

		m := build(t, &model.Service{API: api})
		op := m.Operation("Ping")
		assert.False(t, op.IsAuthenticated)
		assert.Equal(t, []AuthType{AuthNone}, op.AuthTypes)
	})

	t.Run("unknown auth value is fatal", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Ping", &model.Operation{Name: "Ping", AuthType: "voodoo"})

		_, err := NewBuilder(nil).Build(&model.Service{API: api})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown auth type "voodoo"`)
	})
}

func TestExceptions(t *testing.T) {
	newErrorAPI := func() *model.API {
		api := newTestAPI()
		tooBig := addStructure(api, "WidgetTooBigException", [2]string{"message", "String"})
		tooBig.Exception = true
		tooBig.Error = &model.ErrorInfo{HTTPStatusCode: 400, SenderFault: true}
		missing := addStructure(api, "WidgetMissingException", [2]string{"message", "String"})
		missing.Exception = true
		missing.Error = &model.ErrorInfo{Code: "NoSuchWidget", HTTPStatusCode: 404}
		return api
	}

	t.Run("code defaults to shape name and honors the trait", func(t *testing.T) {
		api := newErrorAPI()
		api.Operations.Set("GetWidget", &model.Operation{
			Name: "GetWidget",
			Errors: []model.ShapeRef{
				{Shape: "WidgetTooBigException"},
				{Shape: "WidgetMissingException"},
			},
		})

		m := build(t, &model.Service{API: api})
		ex := m.Operation("GetWidget").Exceptions
		require.Len(t, ex, 2)
		assert.Equal(t, "WidgetTooBigException", ex[0].ErrorCode)
		assert.Equal(t, 400, ex[0].HTTPStatusCode)
		assert.True(t, ex[0].SenderFault)
		assert.Equal(t, "NoSuchWidget", ex[1].ErrorCode)
		assert.Equal(t, 404, ex[1].HTTPStatusCode)
	})

	t.Run("operation level trait wins over shape trait", func(t *testing.T) {
		api := newErrorAPI()
		api.Operations.Set("GetWidget", &model.Operation{
			Name: "GetWidget",
			Errors: []model.ShapeRef{
				{Shape: "WidgetTooBigException", Error: &model.ErrorInfo{HTTPStatusCode: 413}},
			},
		})

		m := build(t, &model.Service{API: api})
		ex := m.Operation("GetWidget").Exceptions
		require.Len(t, ex, 1)
		assert.Equal(t, 413, ex[0].HTTPStatusCode)
	})

	t.Run("customization deprecated shapes are excluded", func(t *testing.T) {
		api := newErrorAPI()
		api.Operations.Set("GetWidget", &model.Operation{
			Name: "GetWidget",
			Errors: []model.ShapeRef{
				{Shape: "WidgetTooBigException"},
				{Shape: "WidgetMissingException"},
			},
		})
		custom := &model.CustomizationConfig{DeprecatedShapes: []string{"WidgetTooBigException"}}

		m := build(t, &model.Service{API: api, Customization: custom})
		ex := m.Operation("GetWidget").Exceptions
		require.Len(t, ex, 1)
		assert.Equal(t, "WidgetMissingException", ex[0].ShapeName)
	})
}

func TestPayloadFlags(t *testing.T) {
	t.Run("blob payload member sets the blob flag", func(t *testing.T) {
		api := newTestAPI()
		api.Shapes.Set("Body", &model.Shape{Type: "blob"})
		in := addStructure(api, "UploadRequest", [2]string{"Body", "Body"})
		in.Payload = "Body"
		api.Operations.Set("Upload", &model.Operation{Name: "Upload", Input: &model.ShapeRef{Shape: "UploadRequest"}})

		m := build(t, &model.Service{API: api})
		op := m.Operation("Upload")
		assert.True(t, op.HasBlobPayload)
		assert.False(t, op.HasStringPayload)
	})

	t.Run("string payload member sets the string flag", func(t *testing.T) {
		api := newTestAPI()
		in := addStructure(api, "UploadRequest", [2]string{"Text", "String"})
		in.Payload = "Text"
		api.Operations.Set("Upload", &model.Operation{Name: "Upload", Input: &model.ShapeRef{Shape: "UploadRequest"}})

		m := build(t, &model.Service{API: api})
		op := m.Operation("Upload")
		assert.False(t, op.HasBlobPayload)
		assert.True(t, op.HasStringPayload)
	})

	t.Run("payload naming a missing member is fatal", func(t *testing.T) {
		api := newTestAPI()
		in := addStructure(api, "UploadRequest", [2]string{"Text", "String"})
		in.Payload = "Gone"
		api.Operations.Set("Upload", &model.Operation{Name: "Upload", Input: &model.ShapeRef{Shape: "UploadRequest"}})

		_, err := NewBuilder(nil).Build(&model.Service{API: api})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `payload names unknown member "Gone"`)
	})
}

func TestStreamingDetection(t *testing.T) {
	t.Run("streaming output member marks the operation", func(t *testing.T) {
		api := newTestAPI()
		api.Shapes.Set("Body", &model.Shape{Type: "blob", Streaming: true})
		addStructure(api, "FetchResult", [2]string{"Body", "Body"})
		api.Operations.Set("Fetch", &model.Operation{Name: "Fetch", Output: &model.ShapeRef{Shape: "FetchResult"}})

		m := build(t, &model.Service{API: api})
		assert.True(t, m.Operation("Fetch").IsStreaming)
	})

	t.Run("event stream shapes mark both directions", func(t *testing.T) {
		api := newTestAPI()
		events := addStructure(api, "WidgetEvents", [2]string{"Tick", "String"})
		events.EventStream = true
		addStructure(api, "SubscribeResult", [2]string{"Events", "WidgetEvents"})
		addStructure(api, "SubscribeRequest", [2]string{"Name", "String"})
		api.Operations.Set("Subscribe", &model.Operation{
			Name:   "Subscribe",
			Input:  &model.ShapeRef{Shape: "SubscribeRequest"},
			Output: &model.ShapeRef{Shape: "SubscribeResult"},
		})

		m := build(t, &model.Service{API: api})
		op := m.Operation("Subscribe")
		assert.True(t, op.IsEventStreamOutput)
		assert.False(t, op.IsEventStreamInput)
		assert.False(t, op.IsStreaming)
	})
}

func TestBuildModel(t *testing.T) {
	t.Run("dangling references abort the build", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Broken", &model.Operation{Name: "Broken", Input: &model.ShapeRef{Shape: "Nowhere"}})

		m, err := NewBuilder(nil).Build(&model.Service{API: api})
		require.Error(t, err)
		assert.Nil(t, m)
		assert.True(t, model.IsResolutionError(err))
	})

	t.Run("operations and shapes come out sorted", func(t *testing.T) {
		api := newTestAPI()
		api.Operations.Set("Zap", &model.Operation{Name: "Zap"})
		api.Operations.Set("Add", &model.Operation{Name: "Add"})

		m := build(t, &model.Service{API: api})
		require.Len(t, m.Operations, 2)
		assert.Equal(t, "Add", m.Operations[0].Name)
		assert.Equal(t, "Zap", m.Operations[1].Name)
	})

	t.Run("invalid paginator entry leaves operation unpaginated", func(t *testing.T) {
		api := newTestAPI()
		addStructure(api, "ListIn", [2]string{"NextToken", "String"})
		addStructure(api, "ListOut", [2]string{"NextToken", "String"})
		api.Operations.Set("List", &model.Operation{
			Name:   "List",
			Input:  &model.ShapeRef{Shape: "ListIn"},
			Output: &model.ShapeRef{Shape: "ListOut"},
		})
		pag := &model.Paginators{Pagination: map[string]model.PaginatorDefinition{
			"List": {InputToken: model.MemberPath{"NextToken"}},
		}}

		m := build(t, &model.Service{API: api, Paginators: pag})
		assert.False(t, m.Operation("List").IsPaginated)
	})

	t.Run("valid paginator entry is attached", func(t *testing.T) {
		api := newTestAPI()
		addStructure(api, "ListIn", [2]string{"NextToken", "String"})
		addStructure(api, "ListOut", [2]string{"NextToken", "String"})
		api.Operations.Set("List", &model.Operation{
			Name:   "List",
			Input:  &model.ShapeRef{Shape: "ListIn"},
			Output: &model.ShapeRef{Shape: "ListOut"},
		})
		pag := &model.Paginators{Pagination: map[string]model.PaginatorDefinition{
			"List": {
				InputToken:  model.MemberPath{"NextToken"},
				OutputToken: model.MemberPath{"NextToken"},
			},
		}}

		m := build(t, &model.Service{API: api, Paginators: pag})
		op := m.Operation("List")
		assert.True(t, op.IsPaginated)
		require.NotNil(t, op.Paginator)
	})

	t.Run("metadata signing name falls back to endpoint prefix", func(t *testing.T) {
		api := newTestAPI()
		m := build(t, &model.Service{API: api})
		assert.Equal(t, "widgets", m.Metadata.SigningName)
		assert.Equal(t, "widgets", m.Metadata.PackageName)
		assert.Equal(t, "query", m.Metadata.Protocol)
	})

	t.Run("renamed shapes flow through operations", func(t *testing.T) {
		api := newTestAPI()
		addStructure(api, "OldName", [2]string{"Value", "String"})
		api.Operations.Set("Get", &model.Operation{Name: "Get", Output: &model.ShapeRef{Shape: "OldName"}})
		custom := &model.CustomizationConfig{RenameShapes: map[string]string{"OldName": "NewName"}}

		m := build(t, &model.Service{API: api, Customization: custom})
		assert.Equal(t, "NewName", m.Operation("Get").ReturnType)
		require.NotNil(t, m.Shape("NewName"))
		assert.Equal(t, "OldName", m.Shape("NewName").ModelName)
	})

	t.Run("excluded members are dropped", func(t *testing.T) {
		api := newTestAPI()
		addStructure(api, "Widget",
			[2]string{"Name", "String"},
			[2]string{"Internal", "String"},
		)
		custom := &model.CustomizationConfig{ShapeModifiers: map[string]model.ShapeModifier{
			"Widget": {Exclude: []string{"Internal"}},
		}}

		m := build(t, &model.Service{API: api, Customization: custom})
		shape := m.Shape("Widget")
		require.NotNil(t, shape)
		require.Len(t, shape.Members, 1)
		assert.Equal(t, "Name", shape.Members[0].Name)
	})

	t.Run("enums get constant names", func(t *testing.T) {
		api := newTestAPI()
		api.Shapes.Set("WidgetState", &model.Shape{Type: "string", Enum: []string{"in-progress", "DONE"}})

		m := build(t, &model.Service{API: api})
		shape := m.Shape("WidgetState")
		require.NotNil(t, shape)
		require.Len(t, shape.Enum, 2)
		assert.Equal(t, "WidgetStateInProgress", shape.Enum[0].Name)
		assert.Equal(t, "in-progress", shape.Enum[0].Value)
		assert.Equal(t, "WidgetStateDone", shape.Enum[1].Name)
	})
}
