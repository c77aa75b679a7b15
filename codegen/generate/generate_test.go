package generate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/vogels/codegen/model"
)

func widgetAPI() *model.API {
	api := &model.API{
		Version: "2.0",
		Metadata: model.Metadata{
			ServiceID:       "Widgets",
			ServiceFullName: "Acme Widgets",
			APIVersion:      "2024-03-01",
			EndpointPrefix:  "widgets",
			Protocol:        "json",
			JSONVersion:     "1.1",
			TargetPrefix:    "Widgets_20240301",
		},
		Operations: model.NewOrderedMap[*model.Operation](),
		Shapes:     model.NewOrderedMap[*model.Shape](),
	}
	api.Shapes.Set("String", &model.Shape{Type: "string"})
	api.Shapes.Set("Integer", &model.Shape{Type: "integer"})
	api.Shapes.Set("Boolean", &model.Shape{Type: "boolean"})
	return api
}

func addStruct(api *model.API, name string, members ...[2]string) *model.Shape {
	s := &model.Shape{Type: "structure", Members: model.NewOrderedMap[*model.ShapeRef]()}
	for _, m := range members {
		s.Members.Set(m[0], &model.ShapeRef{Shape: m[1]})
	}
	api.Shapes.Set(name, s)
	return s
}

// widgetService builds a model exercising every generated file: a plain
// operation with a modeled error, an input-only operation, an enum and a
// paginated list.
func widgetService() *model.Service {
	api := widgetAPI()

	api.Shapes.Set("WidgetColor", &model.Shape{Type: "string", Enum: []string{"RED", "BLUE"}})

	req := addStruct(api, "GetWidgetRequest",
		[2]string{"Id", "String"},
		[2]string{"Color", "WidgetColor"},
	)
	req.Required = []string{"Id"}
	addStruct(api, "GetWidgetResponse",
		[2]string{"Name", "String"},
		[2]string{"Count", "Integer"},
	)

	notFound := addStruct(api, "NotFoundException", [2]string{"Message", "String"})
	notFound.Exception = true
	notFound.Error = &model.ErrorInfo{Code: "NotFound", HTTPStatusCode: 404, SenderFault: true}

	addStruct(api, "DeleteWidgetRequest", [2]string{"Id", "String"})

	addStruct(api, "ListWidgetsRequest",
		[2]string{"NextToken", "String"},
		[2]string{"MaxResults", "Integer"},
	)
	addStruct(api, "ListWidgetsResponse",
		[2]string{"NextToken", "String"},
		[2]string{"Truncated", "Boolean"},
	)

	api.Operations.Set("GetWidget", &model.Operation{
		Name:   "GetWidget",
		Input:  &model.ShapeRef{Shape: "GetWidgetRequest"},
		Output: &model.ShapeRef{Shape: "GetWidgetResponse"},
		Errors: []model.ShapeRef{{Shape: "NotFoundException"}},
	})
	api.Operations.Set("DeleteWidget", &model.Operation{
		Name:  "DeleteWidget",
		Input: &model.ShapeRef{Shape: "DeleteWidgetRequest"},
	})
	api.Operations.Set("ListWidgets", &model.Operation{
		Name:   "ListWidgets",
		Input:  &model.ShapeRef{Shape: "ListWidgetsRequest"},
		Output: &model.ShapeRef{Shape: "ListWidgetsResponse"},
	})

	return &model.Service{
		Name: "widgets",
		API:  api,
		Paginators: &model.Paginators{Pagination: map[string]model.PaginatorDefinition{
			"ListWidgets": {
				InputToken:  model.MemberPath{"NextToken"},
				OutputToken: model.MemberPath{"NextToken"},
				MoreResults: "Truncated",
			},
		}},
	}
}

func generateTo(t *testing.T, dir string, svc *model.Service) *Result {
	t.Helper()
	res, err := New(Options{OutputDir: dir}).Service(svc)
	require.NoError(t, err)
	return res
}

func readGenerated(t *testing.T, res *Result, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(res.Dir, name))
	require.NoError(t, err)
	return string(raw)
}

func TestGenerateService(t *testing.T) {
	res := generateTo(t, t.TempDir(), widgetService())
	require.False(t, res.Skipped)
	assert.Equal(t, "widgets", res.Package)
	assert.Equal(t, []string{"api.go", "client.go", "paginators.go", "schemas.go"}, res.Files)

	t.Run("api file", func(t *testing.T) {
		src := readGenerated(t, res, "api.go")
		assert.Contains(t, src, "// Code generated by vogelsgen. DO NOT EDIT.")
		assert.Contains(t, src, "package widgets")

		assert.Contains(t, src, "type WidgetColor string")
		assert.Regexp(t, `WidgetColorRed\s+WidgetColor = "RED"`, src)
		assert.Contains(t, src, "func (WidgetColor) Values() []WidgetColor {")

		assert.Contains(t, src, "type GetWidgetRequest struct {")
		assert.Regexp(t, `Id\s+\*string`, src)
		assert.Contains(t, src, "`vogels:\"Id\"`")
		assert.Contains(t, src, "// Id is a required field.")
		assert.Regexp(t, `Color\s+\*WidgetColor`, src)
		assert.Regexp(t, `Count\s+\*int32`, src)

		assert.Contains(t, src, "type NotFoundException struct {")
		assert.Regexp(t, `ResponseMetadata\s+protocol\.ResponseMetadata`, src)
		assert.Contains(t, src, `func (e *NotFoundException) ErrorCode() string { return "NotFound" }`)
		assert.Contains(t, src, "return protocol.FaultClient")
		assert.Contains(t, src, "var _ protocol.APIError = (*NotFoundException)(nil)")
	})

	t.Run("client file", func(t *testing.T) {
		src := readGenerated(t, res, "client.go")
		assert.Contains(t, src, `const ServiceID = "Widgets"`)
		assert.Contains(t, src, `const signingName = "widgets"`)
		assert.Contains(t, src, "func New(region string, opts ...Option) (*Client, error) {")

		assert.Contains(t, src, "func (c *Client) GetWidget(ctx context.Context, input *GetWidgetRequest) (*GetWidgetResponse, error) {")
		assert.Contains(t, src, "func (c *Client) DeleteWidget(ctx context.Context, input *DeleteWidgetRequest) error {")
		assert.Contains(t, src, "func (c *Client) GetWidgetAsync(ctx context.Context, input *GetWidgetRequest) *pipeline.Promise[*GetWidgetResponse] {")

		assert.Contains(t, src, `case "NotFoundException":`)
		assert.Contains(t, src, "document.Unmarshal(serr.Fields, out)")
	})

	t.Run("schemas file", func(t *testing.T) {
		src := readGenerated(t, res, "schemas.go")
		assert.Contains(t, src, "var serviceSchema = &protocol.ServiceSchema{")
		assert.Regexp(t, `Protocol:\s+"json"`, src)
		assert.Contains(t, src, `_ "github.com/acksell/vogels/sdk/protocol/awsjson"`)
		assert.Contains(t, src, `"GetWidgetRequest": {`)
		assert.Contains(t, src, "var getWidgetSchema = &protocol.OperationSchema{")
		assert.Regexp(t, `Service:\s+serviceSchema`, src)
		assert.Regexp(t, `Shapes:\s+shapes`, src)
	})

	t.Run("paginators file", func(t *testing.T) {
		src := readGenerated(t, res, "paginators.go")
		assert.Contains(t, src, "type ListWidgetsPaginator struct {")
		assert.Contains(t, src, "func NewListWidgetsPaginator(client *Client, input *ListWidgetsRequest) *ListWidgetsPaginator {")
		assert.Contains(t, src, "func (p *ListWidgetsPaginator) HasMorePages() bool {")
		assert.Contains(t, src, "p.more = document.Deref(out.Truncated, false) && p.nextToken != nil")
	})
}

func TestGenerateStreamingAndEvents(t *testing.T) {
	svc := widgetService()
	api := svc.API

	api.Shapes.Set("BlobStream", &model.Shape{Type: "blob", Streaming: true})
	addStruct(api, "GetBlobRequest", [2]string{"Id", "String"})
	addStruct(api, "GetBlobResponse",
		[2]string{"ContentType", "String"},
		[2]string{"Body", "BlobStream"},
	)
	api.Operations.Set("GetBlob", &model.Operation{
		Name:   "GetBlob",
		Input:  &model.ShapeRef{Shape: "GetBlobRequest"},
		Output: &model.ShapeRef{Shape: "GetBlobResponse"},
	})

	addStruct(api, "TickEvent", [2]string{"Message", "String"})
	events := addStruct(api, "WidgetEvents", [2]string{"Tick", "TickEvent"})
	events.EventStream = true
	addStruct(api, "WatchWidgetsResponse",
		[2]string{"Events", "WidgetEvents"},
		[2]string{"SessionId", "String"},
	)
	api.Operations.Set("WatchWidgets", &model.Operation{
		Name:   "WatchWidgets",
		Output: &model.ShapeRef{Shape: "WatchWidgetsResponse"},
	})

	addStruct(api, "SendEventsRequest", [2]string{"Events", "WidgetEvents"})
	api.Operations.Set("SendEvents", &model.Operation{
		Name:  "SendEvents",
		Input: &model.ShapeRef{Shape: "SendEventsRequest"},
	})

	res := generateTo(t, t.TempDir(), svc)

	t.Run("streaming output member becomes a reader", func(t *testing.T) {
		src := readGenerated(t, res, "api.go")
		assert.Regexp(t, `Body\s+io\.ReadCloser`, src)
		assert.Contains(t, src, "`vogels:\"-\"`")
	})

	t.Run("streaming operation gets raw and transformed variants", func(t *testing.T) {
		src := readGenerated(t, res, "client.go")
		assert.Contains(t, src, "func (c *Client) GetBlob(ctx context.Context, input *GetBlobRequest) (*GetBlobResponse, error) {")
		assert.Contains(t, src, "func GetBlobStream[R any](ctx context.Context, c *Client, input *GetBlobRequest, tr streaming.Transformer[protocol.Document, R]) (R, error) {")
		assert.Contains(t, src, "out.Body = resp.Stream")
		assert.NotContains(t, src, "GetBlobAsync")
	})

	t.Run("event stream output returns a reader", func(t *testing.T) {
		src := readGenerated(t, res, "client.go")
		assert.Contains(t, src, "func (c *Client) WatchWidgets(ctx context.Context) (*eventstream.Reader, error) {")
		assert.Contains(t, src, "eventstream.JSONDecoder(watchWidgetsSchema)")
	})

	t.Run("event union generates no struct", func(t *testing.T) {
		src := readGenerated(t, res, "api.go")
		assert.NotContains(t, src, "type WidgetEvents struct")
		assert.Contains(t, src, "type TickEvent struct {")
		assert.Contains(t, src, "type WatchWidgetsResponse struct {")
		assert.NotContains(t, src, "Events ")
	})

	t.Run("event stream input operation is skipped", func(t *testing.T) {
		src := readGenerated(t, res, "client.go")
		assert.NotContains(t, src, "func (c *Client) SendEvents(")
		schemas := readGenerated(t, res, "schemas.go")
		assert.Contains(t, schemas, "var sendEventsSchema = &protocol.OperationSchema{")
	})
}

func TestGenerateCache(t *testing.T) {
	cache, err := OpenCache("")
	require.NoError(t, err)
	defer cache.Close()

	dir := t.TempDir()
	gen := New(Options{OutputDir: dir, Cache: cache})

	first, err := gen.Service(widgetService())
	require.NoError(t, err)
	require.False(t, first.Skipped)

	t.Run("second run is skipped", func(t *testing.T) {
		res, err := gen.Service(widgetService())
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, first.Dir, res.Dir)
	})

	t.Run("force regenerates", func(t *testing.T) {
		forced := New(Options{OutputDir: dir, Cache: cache, Force: true})
		res, err := forced.Service(widgetService())
		require.NoError(t, err)
		assert.False(t, res.Skipped)
	})

	t.Run("model change regenerates", func(t *testing.T) {
		svc := widgetService()
		svc.API.Metadata.APIVersion = "2025-01-01"
		res, err := gen.Service(svc)
		require.NoError(t, err)
		assert.False(t, res.Skipped)
	})

	t.Run("entries list recorded services", func(t *testing.T) {
		entries, err := cache.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "widgets", entries[0].Service)
		assert.NotEmpty(t, entries[0].Hash)
	})

	t.Run("clear drops everything", func(t *testing.T) {
		require.NoError(t, cache.Clear())
		entries, err := cache.Entries()
		require.NoError(t, err)
		assert.Empty(t, entries)

		res, err := gen.Service(widgetService())
		require.NoError(t, err)
		assert.False(t, res.Skipped)
	})
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	assert.False(t, c.UpToDate("widgets", "abc"))
	assert.NoError(t, c.Record("widgets", "abc"))
	assert.NoError(t, c.Close())
	entries, err := c.Entries()
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteReplacesStaleOutput(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "widgets")
	require.NoError(t, os.MkdirAll(target, 0o755))
	stale := filepath.Join(target, "stale.go")
	require.NoError(t, os.WriteFile(stale, []byte("package widgets\n"), 0o644))

	res := generateTo(t, dir, widgetService())

	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(res.Dir, "api.go"))
}

func TestInputHash(t *testing.T) {
	t.Run("stable for equal input", func(t *testing.T) {
		a, err := InputHash(widgetService())
		require.NoError(t, err)
		b, err := InputHash(widgetService())
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("api change changes the hash", func(t *testing.T) {
		base, err := InputHash(widgetService())
		require.NoError(t, err)
		changed := widgetService()
		changed.API.Metadata.APIVersion = "2025-01-01"
		after, err := InputHash(changed)
		require.NoError(t, err)
		assert.NotEqual(t, base, after)
	})

	t.Run("paginator change changes the hash", func(t *testing.T) {
		base, err := InputHash(widgetService())
		require.NoError(t, err)
		changed := widgetService()
		changed.Paginators = nil
		after, err := InputHash(changed)
		require.NoError(t, err)
		assert.NotEqual(t, base, after)
	})
}

func TestPaginatorSkipsMismatchedTokens(t *testing.T) {
	svc := widgetService()
	// Point the output token at a member whose Go type differs from the
	// input token's.
	def := svc.Paginators.Pagination["ListWidgets"]
	def.OutputToken = model.MemberPath{"Truncated"}
	svc.Paginators.Pagination["ListWidgets"] = def

	res := generateTo(t, t.TempDir(), svc)
	assert.Equal(t, []string{"api.go", "client.go", "schemas.go"}, res.Files)
	assert.NoFileExists(t, filepath.Join(res.Dir, "paginators.go"))
}

const widgetsModelJSON = `{
  "version": "2.0",
  "metadata": {
    "apiVersion": "2024-03-01",
    "endpointPrefix": "widgets",
    "protocol": "json",
    "jsonVersion": "1.1",
    "serviceFullName": "Acme Widgets",
    "serviceId": "Widgets",
    "signatureVersion": "v4",
    "targetPrefix": "Widgets_20240301"
  },
  "operations": {
    "GetWidget": {
      "name": "GetWidget",
      "input": {"shape": "GetWidgetRequest"},
      "output": {"shape": "GetWidgetResponse"}
    }
  },
  "shapes": {
    "GetWidgetRequest": {
      "type": "structure",
      "members": {"Id": {"shape": "String"}}
    },
    "GetWidgetResponse": {
      "type": "structure",
      "members": {"Name": {"shape": "String"}}
    },
    "String": {"type": "string"}
  }
}`

const gearsModelJSON = `{
  "version": "2.0",
  "metadata": {
    "apiVersion": "2024-06-01",
    "endpointPrefix": "gears",
    "protocol": "rest-json",
    "jsonVersion": "1.1",
    "serviceFullName": "Acme Gears",
    "serviceId": "Gears",
    "signatureVersion": "v4"
  },
  "operations": {
    "ListGears": {
      "name": "ListGears",
      "http": {"method": "GET", "requestUri": "/gears"},
      "output": {"shape": "ListGearsResponse"}
    }
  },
  "shapes": {
    "ListGearsResponse": {
      "type": "structure",
      "members": {"Names": {"shape": "NameList"}}
    },
    "NameList": {"type": "list", "member": {"shape": "String"}},
    "String": {"type": "string"}
  }
}`

func writeModelDir(t *testing.T, root, name, apiJSON string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api-2.json"), []byte(apiJSON), 0o644))
}

func TestDirectory(t *testing.T) {
	models := t.TempDir()
	writeModelDir(t, models, "widgets", widgetsModelJSON)
	writeModelDir(t, models, "gears", gearsModelJSON)

	t.Run("generates every service sorted", func(t *testing.T) {
		out := t.TempDir()
		results, err := New(Options{OutputDir: out}).Directory(context.Background(), models, nil, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "gears", results[0].Service)
		assert.Equal(t, "widgets", results[1].Service)
		assert.FileExists(t, filepath.Join(out, "gears", "client.go"))
		assert.FileExists(t, filepath.Join(out, "widgets", "client.go"))
	})

	t.Run("only restricts the run", func(t *testing.T) {
		out := t.TempDir()
		results, err := New(Options{OutputDir: out}).Directory(context.Background(), models, []string{"gears"}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "gears", results[0].Service)
		assert.NoDirExists(t, filepath.Join(out, "widgets"))
	})

	t.Run("unknown service name fails before generating", func(t *testing.T) {
		out := t.TempDir()
		_, err := New(Options{OutputDir: out}).Directory(context.Background(), models, []string{"sprockets"}, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"sprockets" not found`)
		assert.NoDirExists(t, filepath.Join(out, "gears"))
	})
}

func TestDocLines(t *testing.T) {
	t.Run("strips markup and wraps", func(t *testing.T) {
		doc := "<p>Returns the widget with the given id. The id must name an " +
			"existing widget; unknown ids produce a <code>NotFound</code> error " +
			"with the offending id in the message.</p>"
		lines := docLines(doc, 40)
		require.NotEmpty(t, lines)
		for _, l := range lines {
			assert.LessOrEqual(t, len(l), 45)
			assert.NotContains(t, l, "<")
		}
		assert.Equal(t, "Returns the widget with the given id.", lines[0])
	})

	t.Run("unescapes entities", func(t *testing.T) {
		lines := docLines("a &amp; b", 40)
		require.Len(t, lines, 1)
		assert.Equal(t, "a & b", lines[0])
	})

	t.Run("empty documentation yields no lines", func(t *testing.T) {
		assert.Empty(t, docLines("  ", 40))
		assert.Empty(t, docLines("", 40))
	})
}
