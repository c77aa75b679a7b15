package generate

import (
	"bytes"
	"fmt"
	"go/format"
	"html"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/acksell/vogels/codegen/intermediate"
)

const docWrapWidth = 76

const dashTag = "`vogels:\"-\"`"

// Render produces the formatted source files for one service: api.go,
// client.go, schemas.go and, when any operation paginates, paginators.go.
func Render(m *intermediate.Model, logger log.FieldLogger) (map[string][]byte, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := newTypeResolver(m)
	files := make(map[string][]byte, 4)

	apiData, err := buildAPIFile(m, r)
	if err != nil {
		return nil, err
	}
	src, err := renderFile("api.go", apiData)
	if err != nil {
		return nil, err
	}
	files["api.go"] = src

	clientData, skipped, err := buildClientFile(m, r, logger)
	if err != nil {
		return nil, err
	}
	src, err = renderFile("client.go", clientData)
	if err != nil {
		return nil, err
	}
	files["client.go"] = src

	src, err = renderFile("schemas.go", buildSchemasFile(m))
	if err != nil {
		return nil, err
	}
	files["schemas.go"] = src

	pagData, err := buildPaginatorsFile(m, r, skipped, logger)
	if err != nil {
		return nil, err
	}
	if pagData != nil {
		src, err = renderFile("paginators.go", pagData)
		if err != nil {
			return nil, err
		}
		files["paginators.go"] = src
	}
	return files, nil
}

// renderFile executes a template and formats its output. A formatting
// failure is a generator bug; the unformatted source rides along in the
// error so the offending construct can be found.
func renderFile(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("executing %s template: %w", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w\nunformatted source:\n%s", name, err, buf.String())
	}
	return src, nil
}

type apiFile struct {
	Package    string
	PackageDoc string
	Imports    string
	Enums      []enumDef
	Structs    []structDef
	Exceptions []exceptionDef
}

type enumDef struct {
	Name   string
	Doc    []string
	Values []enumValueDef
}

type enumValueDef struct {
	ConstName string
	Value     string
}

type structDef struct {
	Name   string
	Doc    []string
	Fields []fieldDef
}

type fieldDef struct {
	Name string
	Type string
	Tag  string
	Doc  []string
}

type exceptionDef struct {
	Name         string
	Doc          []string
	Fields       []fieldDef
	Code         string
	Fault        string
	MessageField string
	MetaTag      string
}

func buildAPIFile(m *intermediate.Model, r *typeResolver) (*apiFile, error) {
	title := m.Metadata.ServiceFullName
	if title == "" {
		title = m.Metadata.ServiceID
	}
	out := &apiFile{
		Package: m.Metadata.PackageName,
		PackageDoc: fmt.Sprintf("Package %s is a generated client for %s (API version %s).",
			m.Metadata.PackageName, title, m.Metadata.APIVersion),
	}

	outputs := outputShapeSet(m)
	for _, s := range m.Shapes {
		switch {
		case s.Type == "string" && len(s.Enum) > 0:
			out.Enums = append(out.Enums, buildEnum(s))
		case s.Type == "structure" && s.IsEventStream:
			// Event unions never appear as fields; their event shapes
			// generate on their own.
		case s.Type == "structure" && s.IsException:
			ex, err := buildException(s, r)
			if err != nil {
				return nil, err
			}
			out.Exceptions = append(out.Exceptions, ex)
		case s.Type == "structure":
			fields, err := buildFields(s, r, outputs[s.Name])
			if err != nil {
				return nil, err
			}
			out.Structs = append(out.Structs, structDef{
				Name:   s.Name,
				Doc:    shapeDoc(s),
				Fields: fields,
			})
		}
	}

	out.Imports = apiImports(out)
	return out, nil
}

func buildEnum(s *intermediate.Shape) enumDef {
	e := enumDef{Name: s.Name, Doc: shapeDoc(s)}
	for _, v := range s.Enum {
		e.Values = append(e.Values, enumValueDef{ConstName: v.Name, Value: v.Value})
	}
	return e
}

func buildException(s *intermediate.Shape, r *typeResolver) (exceptionDef, error) {
	fields, err := buildFields(s, r, false)
	if err != nil {
		return exceptionDef{}, err
	}
	ex := exceptionDef{
		Name:    s.Name,
		Doc:     shapeDoc(s),
		Fields:  fields,
		Code:    s.ErrorCode,
		Fault:   faultExpr(s),
		MetaTag: dashTag,
	}
	for i := range s.Members {
		m := &s.Members[i]
		if m.GoName != "Message" {
			continue
		}
		if t, err := r.fieldType(m); err == nil && t == "*string" {
			ex.MessageField = m.GoName
		}
	}
	return ex, nil
}

func faultExpr(s *intermediate.Shape) string {
	switch {
	case s.SenderFault:
		return "protocol.FaultClient"
	case s.Fault || s.HTTPStatusCode >= 500:
		return "protocol.FaultServer"
	case s.HTTPStatusCode >= 400:
		return "protocol.FaultClient"
	default:
		return "protocol.FaultUnknown"
	}
}

func buildFields(s *intermediate.Shape, r *typeResolver, isOutput bool) ([]fieldDef, error) {
	var out []fieldDef
	for i := range s.Members {
		m := &s.Members[i]
		target, err := r.shape(m.Shape)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", s.Name, err)
		}
		if target.IsEventStream {
			// The event stream member is delivered through the reader,
			// not the decoded output.
			continue
		}

		f := fieldDef{Name: m.GoName, Doc: memberDoc(m)}
		if isOutput && m.Streaming {
			f.Type = "io.ReadCloser"
			f.Tag = dashTag
			if len(f.Doc) == 0 {
				f.Doc = []string{fmt.Sprintf("%s carries the streamed payload; close it when done.", m.GoName)}
			}
		} else {
			f.Type, err = r.fieldType(m)
			if err != nil {
				return nil, fmt.Errorf("shape %s, member %s: %w", s.Name, m.Name, err)
			}
			f.Tag = fieldTag(m)
		}
		out = append(out, f)
	}
	return out, nil
}

func outputShapeSet(m *intermediate.Model) map[string]bool {
	out := make(map[string]bool, len(m.Operations))
	for _, op := range m.Operations {
		if op.ReturnType != "" {
			out[op.ReturnType] = true
		}
	}
	return out
}

func apiImports(f *apiFile) string {
	var useIO, useTime, useProtocol bool
	scan := func(fields []fieldDef) {
		for _, fd := range fields {
			useIO = useIO || strings.Contains(fd.Type, "io.ReadCloser")
			useTime = useTime || strings.Contains(fd.Type, "time.Time")
			useProtocol = useProtocol || strings.Contains(fd.Type, "protocol.")
		}
	}
	for _, s := range f.Structs {
		scan(s.Fields)
	}
	for _, e := range f.Exceptions {
		scan(e.Fields)
	}
	useProtocol = useProtocol || len(f.Exceptions) > 0

	var std, mod []string
	if useIO {
		std = append(std, imp("io"))
	}
	if useTime {
		std = append(std, imp("time"))
	}
	if useProtocol {
		mod = append(mod, imp(modulePath+"/sdk/protocol"))
	}
	return renderImports(std, mod)
}

type clientFile struct {
	Package         string
	Imports         string
	ServiceName     string
	ServiceID       string
	SigningName     string
	HasExceptions   bool
	ExceptionShapes []string
	Ops             []opDef
}

type opDef struct {
	Name        string
	Doc         []string
	SchemaVar   string
	HasInput    bool
	InputType   string
	HasOutput   bool
	OutputType  string
	Streaming   bool
	StreamField string
	EventStream bool
	DecoderExpr string
	Async       bool
}

func buildClientFile(m *intermediate.Model, r *typeResolver, logger log.FieldLogger) (*clientFile, map[string]bool, error) {
	title := m.Metadata.ServiceFullName
	if title == "" {
		title = m.Metadata.ServiceID
	}
	out := &clientFile{
		Package:     m.Metadata.PackageName,
		ServiceName: title,
		ServiceID:   m.Metadata.ServiceID,
		SigningName: m.Metadata.SigningName,
	}
	for _, s := range m.Shapes {
		if s.IsException {
			out.ExceptionShapes = append(out.ExceptionShapes, s.Name)
		}
	}
	out.HasExceptions = len(out.ExceptionShapes) > 0

	skipped := make(map[string]bool)
	usesCbor := false
	for _, op := range m.Operations {
		if op.IsEventStreamInput {
			logger.WithField("operation", op.Name).Warn("event stream inputs are not supported; no client method generated")
			skipped[op.Name] = true
			continue
		}
		od := opDef{
			Name:       op.Name,
			Doc:        opDoc(op),
			SchemaVar:  schemaVarName(op.Name),
			HasInput:   op.Input != "",
			InputType:  op.Input,
			HasOutput:  op.ReturnType != "",
			OutputType: op.ReturnType,
		}
		switch {
		case op.IsEventStreamOutput:
			expr := decoderExpr(op.Protocol, od.SchemaVar)
			if expr == "" {
				logger.WithFields(log.Fields{
					"operation": op.Name,
					"protocol":  op.Protocol,
				}).Warn("event stream outputs are not supported for this protocol; no client method generated")
				skipped[op.Name] = true
				continue
			}
			od.EventStream = true
			od.DecoderExpr = expr
			usesCbor = usesCbor || strings.Contains(expr, "rpccbor.")
		case op.IsStreaming:
			field, err := streamingFieldName(m, op)
			if err != nil {
				return nil, nil, err
			}
			od.Streaming = true
			od.StreamField = field
		default:
			od.Async = od.HasOutput
		}
		out.Ops = append(out.Ops, od)
	}

	out.Imports = clientImports(out, usesCbor)
	return out, skipped, nil
}

func streamingFieldName(m *intermediate.Model, op *intermediate.Operation) (string, error) {
	shape := m.Shape(op.ReturnType)
	if shape == nil {
		return "", fmt.Errorf("operation %s: output shape %q not found", op.Name, op.ReturnType)
	}
	for i := range shape.Members {
		if shape.Members[i].Streaming {
			return shape.Members[i].GoName, nil
		}
	}
	return "", fmt.Errorf("operation %s: no streaming member on %s", op.Name, shape.Name)
}

// decoderExpr returns the event decoder expression for a protocol, or ""
// when the protocol has no event stream support.
func decoderExpr(protocolName, schemaVar string) string {
	switch protocolName {
	case "json", "rest-json":
		return fmt.Sprintf("eventstream.JSONDecoder(%s)", schemaVar)
	case "smithy-rpc-v2-cbor":
		return fmt.Sprintf("func(shape string, payload []byte) (protocol.Document, error) { return rpccbor.Unmarshal(%s, shape, payload) }", schemaVar)
	}
	return ""
}

func clientImports(f *clientFile, usesCbor bool) string {
	var anyInput, anyOutput, anyStreaming, anyEventStream bool
	for _, op := range f.Ops {
		anyInput = anyInput || op.HasInput
		anyOutput = anyOutput || op.HasOutput
		anyStreaming = anyStreaming || op.Streaming
		anyEventStream = anyEventStream || op.EventStream
	}

	var std []string
	if anyStreaming || anyEventStream {
		std = append(std, imp("bytes"))
	}
	if len(f.Ops) > 0 {
		std = append(std, imp("context"))
	}
	if f.HasExceptions {
		std = append(std, imp("errors"))
	}
	if anyStreaming || anyEventStream {
		std = append(std, imp("io"))
	}

	ext := []string{
		imp("github.com/aws/aws-sdk-go-v2/aws"),
		impAlias("log", "github.com/sirupsen/logrus"),
	}

	mod := []string{
		imp(modulePath + "/sdk/auth"),
		imp(modulePath + "/sdk/endpoints"),
		imp(modulePath + "/sdk/metrics"),
		imp(modulePath + "/sdk/pipeline"),
		imp(modulePath + "/sdk/retry"),
		imp(modulePath + "/sdk/transport"),
	}
	if anyInput || anyOutput || f.HasExceptions {
		mod = append(mod, imp(modulePath+"/sdk/document"))
	}
	if anyInput || anyOutput || anyStreaming || f.HasExceptions {
		mod = append(mod, imp(modulePath+"/sdk/protocol"))
	}
	if anyEventStream {
		mod = append(mod, imp(modulePath+"/sdk/protocol/eventstream"))
	}
	if usesCbor {
		mod = append(mod, imp(modulePath+"/sdk/protocol/rpccbor"))
	}
	if anyStreaming {
		mod = append(mod, imp(modulePath+"/sdk/streaming"))
	}
	sortImportLines(mod)
	return renderImports(std, ext, mod)
}

// sortImportLines orders rendered import lines by their path, ignoring any
// alias prefix.
func sortImportLines(lines []string) {
	key := func(line string) string {
		if i := strings.IndexByte(line, '"'); i >= 0 {
			return line[i:]
		}
		return line
	}
	for i := 1; i < len(lines); i++ {
		for j := i; j > 0 && key(lines[j]) < key(lines[j-1]); j-- {
			lines[j], lines[j-1] = lines[j-1], lines[j]
		}
	}
}

type schemasFile struct {
	Package        string
	Imports        string
	ServiceName    string
	APIVersion     string
	ServiceLiteral string
	Shapes         []namedLiteral
	Ops            []varLiteral
}

type namedLiteral struct {
	Name    string
	Literal string
}

type varLiteral struct {
	Var     string
	Literal string
}

func buildSchemasFile(m *intermediate.Model) *schemasFile {
	title := m.Metadata.ServiceFullName
	if title == "" {
		title = m.Metadata.ServiceID
	}
	out := &schemasFile{
		Package:        m.Metadata.PackageName,
		ServiceName:    title,
		APIVersion:     m.Metadata.APIVersion,
		ServiceLiteral: serviceLiteral(serviceSchema(m.Metadata)),
	}
	for _, s := range m.Shapes {
		out.Shapes = append(out.Shapes, namedLiteral{Name: s.Name, Literal: shapeLiteral(shapeSchema(s))})
	}
	for _, op := range m.Operations {
		out.Ops = append(out.Ops, varLiteral{Var: schemaVarName(op.Name), Literal: operationLiteral(operationSchema(op))})
	}

	out.Imports = renderImports(
		[]string{imp(modulePath + "/sdk/protocol")},
		[]string{impBlank(codecImports[m.Metadata.Protocol])},
	)
	return out
}

type paginatorsFile struct {
	Package string
	Imports string
	Pagers  []pagerDef
}

type pagerDef struct {
	Op          string
	InputType   string
	OutputType  string
	TokenType   string
	InputField  string
	OutputField string
	MoreField   string
}

var plainMemberName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// buildPaginatorsFile collects the operations whose paginator definitions
// the generated form can express: single, top-level token members with
// matching types. Anything else logs a warning and stays unpaginated.
func buildPaginatorsFile(m *intermediate.Model, r *typeResolver, skipped map[string]bool, logger log.FieldLogger) (*paginatorsFile, error) {
	out := &paginatorsFile{Package: m.Metadata.PackageName}
	needDocument := false

	for _, op := range m.Operations {
		if !op.IsPaginated || op.Paginator == nil || skipped[op.Name] {
			continue
		}
		oplog := logger.WithField("operation", op.Name)
		if op.IsStreaming || op.IsEventStreamOutput {
			oplog.Warn("streaming operations cannot paginate; skipping paginator")
			continue
		}
		if op.Input == "" || op.ReturnType == "" {
			oplog.Warn("paginated operation must have input and output; skipping paginator")
			continue
		}
		def := op.Paginator
		inToken, outToken := def.InputToken, def.OutputToken
		if len(inToken) != 1 || !plainMemberName.MatchString(inToken.First()) ||
			len(outToken) != 1 || !plainMemberName.MatchString(outToken.First()) {
			oplog.Warn("only single top-level token members are supported; skipping paginator")
			continue
		}
		if def.MoreResults != "" && !plainMemberName.MatchString(def.MoreResults) {
			oplog.Warn("only a top-level more-results member is supported; skipping paginator")
			continue
		}

		inShape := m.Shape(op.Input)
		outShape := m.Shape(op.ReturnType)
		inMember := inShape.Member(inToken.First())
		outMember := outShape.Member(outToken.First())
		if inMember == nil || outMember == nil {
			oplog.Warn("paginator token member not found; skipping paginator")
			continue
		}
		inType, err := r.fieldType(inMember)
		if err != nil {
			return nil, fmt.Errorf("operation %s paginator: %w", op.Name, err)
		}
		outType, err := r.fieldType(outMember)
		if err != nil {
			return nil, fmt.Errorf("operation %s paginator: %w", op.Name, err)
		}
		if inType != outType {
			oplog.WithFields(log.Fields{"input": inType, "output": outType}).
				Warn("paginator token types differ; skipping paginator")
			continue
		}

		p := pagerDef{
			Op:          op.Name,
			InputType:   op.Input,
			OutputType:  op.ReturnType,
			TokenType:   inType,
			InputField:  inMember.GoName,
			OutputField: outMember.GoName,
		}
		if def.MoreResults != "" {
			moreMember := outShape.Member(def.MoreResults)
			if moreMember == nil {
				oplog.Warn("more-results member not found; skipping paginator")
				continue
			}
			moreType, err := r.fieldType(moreMember)
			if err != nil {
				return nil, fmt.Errorf("operation %s paginator: %w", op.Name, err)
			}
			if moreType != "*bool" {
				oplog.Warn("more-results member must be a boolean; skipping paginator")
				continue
			}
			p.MoreField = moreMember.GoName
			needDocument = true
		}
		out.Pagers = append(out.Pagers, p)
	}

	if len(out.Pagers) == 0 {
		return nil, nil
	}
	var mod []string
	if needDocument {
		mod = append(mod, imp(modulePath+"/sdk/document"))
	}
	out.Imports = renderImports([]string{imp("context"), imp("fmt")}, mod)
	return out, nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// docLines turns model documentation HTML into plain comment lines wrapped
// near width characters.
func docLines(doc string, width int) []string {
	text := html.UnescapeString(htmlTag.ReplaceAllString(doc, " "))
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

// withDeprecation appends the tooling-recognized deprecation notice.
func withDeprecation(lines []string, deprecated bool, message, fallback string) []string {
	if !deprecated {
		return lines
	}
	if message == "" {
		message = fallback
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	return append(lines, "Deprecated: "+message)
}

func shapeDoc(s *intermediate.Shape) []string {
	return withDeprecation(docLines(s.Documentation, docWrapWidth), s.Deprecated, s.DeprecatedMessage, "This type is deprecated.")
}

func memberDoc(m *intermediate.Member) []string {
	lines := docLines(m.Documentation, docWrapWidth)
	if m.Required {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, fmt.Sprintf("%s is a required field.", m.GoName))
	}
	return withDeprecation(lines, m.Deprecated, "", "This member is deprecated.")
}

func opDoc(op *intermediate.Operation) []string {
	return withDeprecation(docLines(op.Documentation, docWrapWidth), op.Deprecated, op.DeprecatedMessage, "This operation is deprecated.")
}
