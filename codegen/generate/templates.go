package generate

import (
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// generatorVersion participates in the cache key. Bump it whenever the
// emitted code changes shape without a model change.
const generatorVersion = "1"

// templateSources maps output file names to their template text. The text
// is hashed into the cache key alongside the model, so editing a template
// invalidates every cached service.
var templateSources = map[string]string{
	"api.go":        apiTemplate,
	"client.go":     clientTemplate,
	"schemas.go":    schemasTemplate,
	"paginators.go": paginatorsTemplate,
}

var templates = func() *template.Template {
	root := template.New("vogelsgen").Funcs(sprig.TxtFuncMap())
	for name, text := range templateSources {
		template.Must(root.New(name).Parse(text))
	}
	return root
}()

const apiTemplate = `// Code generated by vogelsgen. DO NOT EDIT.

// {{.PackageDoc}}
package {{.Package}}

{{.Imports}}

{{range .Enums}}
{{- $e := .}}
{{- range .Doc}}
//{{if .}} {{.}}{{end}}
{{- end}}
type {{$e.Name}} string

const (
{{- range $e.Values}}
	{{.ConstName}} {{$e.Name}} = {{.Value | quote}}
{{- end}}
)

// Values returns all known values for {{$e.Name}}. The service may accept
// or return values not listed here.
func ({{$e.Name}}) Values() []{{$e.Name}} {
	return []{{$e.Name}}{
{{- range $e.Values}}
		{{.ConstName}},
{{- end}}
	}
}
{{end}}
{{- range .Structs}}
{{- range .Doc}}
//{{if .}} {{.}}{{end}}
{{- end}}
type {{.Name}} struct {
{{- range .Fields}}
{{- range .Doc}}
	//{{if .}} {{.}}{{end}}
{{- end}}
	{{.Name}} {{.Type}} {{.Tag}}
{{- end}}
}
{{end}}
{{- range .Exceptions}}
{{- range .Doc}}
//{{if .}} {{.}}{{end}}
{{- end}}
type {{.Name}} struct {
{{- range .Fields}}
{{- range .Doc}}
	//{{if .}} {{.}}{{end}}
{{- end}}
	{{.Name}} {{.Type}} {{.Tag}}
{{- end}}

	// ResponseMetadata keeps the HTTP status and request id of the failed
	// call.
	ResponseMetadata protocol.ResponseMetadata {{.MetaTag}}
}

func (e *{{.Name}}) Error() string {
	msg := e.ErrorCode()
	if m := e.ErrorMessage(); m != "" {
		msg += ": " + m
	}
	return msg
}

func (e *{{.Name}}) ErrorCode() string { return {{.Code | quote}} }

func (e *{{.Name}}) ErrorMessage() string {
{{- if .MessageField}}
	if e.{{.MessageField}} != nil {
		return *e.{{.MessageField}}
	}
{{- end}}
	return ""
}

func (e *{{.Name}}) ErrorFault() protocol.Fault { return {{.Fault}} }

var _ protocol.APIError = (*{{.Name}})(nil)
{{end}}`

const clientTemplate = `// Code generated by vogelsgen. DO NOT EDIT.

package {{.Package}}

{{.Imports}}

// ServiceID identifies the service for endpoint resolution and metrics.
const ServiceID = {{.ServiceID | quote}}

const signingName = {{.SigningName | quote}}

// Client is the {{.ServiceName}} client.
type Client struct {
	exec *pipeline.Executor
}

// Option customizes the client's execution pipeline.
type Option func(*pipeline.Options)

// WithHTTPClient replaces the transport requests are sent with.
func WithHTTPClient(c transport.Client) Option {
	return func(o *pipeline.Options) { o.HTTPClient = c }
}

// WithEndpoint routes every request to a fixed base URL instead of the
// regional endpoint.
func WithEndpoint(rawURL string) Option {
	return func(o *pipeline.Options) { o.Endpoint = endpoints.Static(rawURL) }
}

// WithCredentials signs requests with SigV4 using the given provider.
func WithCredentials(provider aws.CredentialsProvider) Option {
	return func(o *pipeline.Options) { o.Signer = auth.NewSigV4(provider, signingName, o.Region) }
}

// WithRetry replaces the retry strategy.
func WithRetry(s retry.Strategy) Option {
	return func(o *pipeline.Options) { o.Retry = s }
}

// WithLogger routes client logging to l.
func WithLogger(l log.FieldLogger) Option {
	return func(o *pipeline.Options) { o.Logger = l }
}

// WithMetrics publishes call and attempt metrics to c.
func WithMetrics(c metrics.Collector) Option {
	return func(o *pipeline.Options) { o.Metrics = c }
}

// WithInterceptors appends execution interceptors.
func WithInterceptors(is ...pipeline.Interceptor) Option {
	return func(o *pipeline.Options) { o.Interceptors = append(o.Interceptors, is...) }
}

// WithPlugins appends pipeline plugins, applied before any other option
// takes effect.
func WithPlugins(ps ...pipeline.Plugin) Option {
	return func(o *pipeline.Options) { o.Plugins = append(o.Plugins, ps...) }
}

// New builds a {{.ServiceName}} client for region.
func New(region string, opts ...Option) (*Client, error) {
	po := pipeline.Options{
		Service: serviceSchema,
		Region:  region,
	}
	for _, opt := range opts {
		opt(&po)
	}
	exec, err := pipeline.New(po)
	if err != nil {
		return nil, err
	}
	return &Client{exec: exec}, nil
}

{{if .HasExceptions -}}
// typedError converts a modeled wire error into its generated exception
// type. Unmodeled errors pass through unchanged.
func typedError(err error) error {
	var serr *protocol.ServiceError
	if !errors.As(err, &serr) || !serr.Modeled() {
		return err
	}
	meta := protocol.ResponseMetadata{StatusCode: serr.StatusCode, RequestID: serr.RequestID}
	switch serr.Shape {
{{- range .ExceptionShapes}}
	case {{. | quote}}:
		out := &{{.}}{ResponseMetadata: meta}
		if derr := document.Unmarshal(serr.Fields, out); derr != nil {
			return err
		}
		return out
{{- end}}
	}
	return err
}
{{- else -}}
func typedError(err error) error { return err }
{{- end}}
{{range .Ops}}
{{- range .Doc}}
//{{if .}} {{.}}{{end}}
{{- end}}
{{- if .EventStream}}
func (c *Client) {{.Name}}(ctx context.Context{{if .HasInput}}, input *{{.InputType}}{{end}}) (*eventstream.Reader, error) {
{{- if .HasInput}}
	if input == nil {
		input = &{{.InputType}}{}
	}
	doc, err := document.Marshal(input)
	if err != nil {
		return nil, &protocol.MarshalError{Operation: {{.Name | quote}}, Reason: "encoding input", Err: err}
	}
	_, resp, err := c.exec.ExecuteRaw(ctx, {{.SchemaVar}}, doc)
{{- else}}
	_, resp, err := c.exec.ExecuteRaw(ctx, {{.SchemaVar}}, nil)
{{- end}}
	if err != nil {
		return nil, typedError(err)
	}
	stream := resp.Stream
	if stream == nil {
		stream = io.NopCloser(bytes.NewReader(resp.Body))
	}
	r, err := eventstream.NewReader({{.SchemaVar}}, stream, {{.DecoderExpr}})
	if err != nil {
		stream.Close()
		return nil, err
	}
	return r, nil
}
{{- else if .Streaming}}
func (c *Client) {{.Name}}(ctx context.Context{{if .HasInput}}, input *{{.InputType}}{{end}}) (*{{.OutputType}}, error) {
{{- if .HasInput}}
	if input == nil {
		input = &{{.InputType}}{}
	}
	doc, err := document.Marshal(input)
	if err != nil {
		return nil, &protocol.MarshalError{Operation: {{.Name | quote}}, Reason: "encoding input", Err: err}
	}
	raw, resp, err := c.exec.ExecuteRaw(ctx, {{.SchemaVar}}, doc)
{{- else}}
	raw, resp, err := c.exec.ExecuteRaw(ctx, {{.SchemaVar}}, nil)
{{- end}}
	if err != nil {
		return nil, typedError(err)
	}
	out := &{{.OutputType}}{}
	if derr := document.Unmarshal(raw, out); derr != nil {
		if resp.Stream != nil {
			resp.Stream.Close()
		}
		return nil, &protocol.UnmarshalError{Operation: {{.Name | quote}}, Err: derr}
	}
	if resp.Stream != nil {
		out.{{.StreamField}} = resp.Stream
	} else {
		out.{{.StreamField}} = io.NopCloser(bytes.NewReader(resp.Body))
	}
	return out, nil
}

// {{.Name}}Stream runs {{.Name}} and hands the payload to tr as it
// arrives, retrying the whole download when tr allows it.
func {{.Name}}Stream[R any](ctx context.Context, c *Client{{if .HasInput}}, input *{{.InputType}}{{end}}, tr streaming.Transformer[protocol.Document, R]) (R, error) {
{{- if .HasInput}}
	var zero R
	if input == nil {
		input = &{{.InputType}}{}
	}
	doc, err := document.Marshal(input)
	if err != nil {
		return zero, &protocol.MarshalError{Operation: {{.Name | quote}}, Reason: "encoding input", Err: err}
	}
	out, err := pipeline.ExecuteStream(ctx, c.exec, {{.SchemaVar}}, doc, tr)
{{- else}}
	var zero R
	out, err := pipeline.ExecuteStream(ctx, c.exec, {{.SchemaVar}}, nil, tr)
{{- end}}
	if err != nil {
		return zero, typedError(err)
	}
	return out, nil
}
{{- else}}
func (c *Client) {{.Name}}(ctx context.Context{{if .HasInput}}, input *{{.InputType}}{{end}}) ({{if .HasOutput}}*{{.OutputType}}, {{end}}error) {
{{- if .HasInput}}
	if input == nil {
		input = &{{.InputType}}{}
	}
	doc, err := document.Marshal(input)
	if err != nil {
		return {{if .HasOutput}}nil, {{end}}&protocol.MarshalError{Operation: {{.Name | quote}}, Reason: "encoding input", Err: err}
	}
{{- end}}
{{- if .HasOutput}}
	raw, err := c.exec.Execute(ctx, {{.SchemaVar}}, {{if .HasInput}}doc{{else}}nil{{end}})
	if err != nil {
		return nil, typedError(err)
	}
	out := &{{.OutputType}}{}
	if derr := document.Unmarshal(raw, out); derr != nil {
		return nil, &protocol.UnmarshalError{Operation: {{.Name | quote}}, Err: derr}
	}
	return out, nil
{{- else}}
	if _, err := c.exec.Execute(ctx, {{.SchemaVar}}, {{if .HasInput}}doc{{else}}nil{{end}}); err != nil {
		return typedError(err)
	}
	return nil
{{- end}}
}
{{- end}}
{{- if .Async}}

// {{.Name}}Async starts {{.Name}} without waiting for it; the returned
// promise resolves when the call completes.
func (c *Client) {{.Name}}Async(ctx context.Context{{if .HasInput}}, input *{{.InputType}}{{end}}) *pipeline.Promise[*{{.OutputType}}] {
{{- if .HasInput}}
	if input == nil {
		input = &{{.InputType}}{}
	}
	doc, err := document.Marshal(input)
	if err != nil {
		return pipeline.Completed[*{{.OutputType}}](nil, &protocol.MarshalError{Operation: {{.Name | quote}}, Reason: "encoding input", Err: err})
	}
{{- else}}
	var doc protocol.Document
{{- end}}
	return pipeline.Then(c.exec.ExecuteAsync(ctx, {{.SchemaVar}}, doc), func(raw protocol.Document, err error) (*{{.OutputType}}, error) {
		if err != nil {
			return nil, typedError(err)
		}
		out := &{{.OutputType}}{}
		if derr := document.Unmarshal(raw, out); derr != nil {
			return nil, &protocol.UnmarshalError{Operation: {{.Name | quote}}, Err: derr}
		}
		return out, nil
	})
}
{{- end}}
{{end}}`

const schemasTemplate = `// Code generated by vogelsgen. DO NOT EDIT.

package {{.Package}}

{{.Imports}}

// serviceSchema describes {{.ServiceName}}, API version {{.APIVersion}}.
var serviceSchema = {{.ServiceLiteral}}

// shapes is the shared shape table every operation schema resolves
// against.
var shapes = map[string]*protocol.ShapeSchema{
{{- range .Shapes}}
	{{.Name | quote}}: {{.Literal}},
{{- end}}
}
{{range .Ops}}
var {{.Var}} = {{.Literal}}
{{end}}`

const paginatorsTemplate = `// Code generated by vogelsgen. DO NOT EDIT.

package {{.Package}}

{{.Imports}}
{{range .Pagers}}
// {{.Op}}Paginator pages through the results of {{.Op}}.
type {{.Op}}Paginator struct {
	client    *Client
	input     {{.InputType}}
	nextToken {{.TokenType}}
	firstPage bool
	more      bool
}

// New{{.Op}}Paginator builds a paginator resuming from input's token.
func New{{.Op}}Paginator(client *Client, input *{{.InputType}}) *{{.Op}}Paginator {
	if input == nil {
		input = &{{.InputType}}{}
	}
	return &{{.Op}}Paginator{
		client:    client,
		input:     *input,
		nextToken: input.{{.InputField}},
		firstPage: true,
	}
}

// HasMorePages reports whether another page is available.
func (p *{{.Op}}Paginator) HasMorePages() bool {
	return p.firstPage || p.more
}

// NextPage fetches the next page of {{.Op}} results.
func (p *{{.Op}}Paginator) NextPage(ctx context.Context) (*{{.OutputType}}, error) {
	if !p.HasMorePages() {
		return nil, fmt.Errorf("no more pages available")
	}
	input := p.input
	input.{{.InputField}} = p.nextToken
	out, err := p.client.{{.Op}}(ctx, &input)
	if err != nil {
		return nil, err
	}
	p.firstPage = false
	p.nextToken = out.{{.OutputField}}
{{- if .MoreField}}
	p.more = document.Deref(out.{{.MoreField}}, false) && p.nextToken != nil
{{- else}}
	p.more = p.nextToken != nil
{{- end}}
	return out, nil
}
{{end}}`
