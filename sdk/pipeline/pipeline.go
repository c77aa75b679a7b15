// Package pipeline executes operations end to end: marshal the input,
// prepare and sign the request, send it, decode the response, classify
// failures, and retry. Every execution terminates in exactly one of
// success or error.
package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/acksell/vogels/sdk/auth"
	"github.com/acksell/vogels/sdk/endpoints"
	"github.com/acksell/vogels/sdk/metrics"
	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/retry"
	"github.com/acksell/vogels/sdk/transport"
)

const (
	invocationIDHeader = "Amz-Sdk-Invocation-Id"
	requestHeader      = "Amz-Sdk-Request"

	// DefaultCompressionMinSize is the smallest body request compression
	// applies to when no minimum is configured.
	DefaultCompressionMinSize = 10240
)

// Plugin mutates a client's options once, before defaults are resolved. A
// plugin that installs a retry strategy is therefore not overwritten by
// the default one.
type Plugin interface {
	Configure(*Options)
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(*Options)

func (f PluginFunc) Configure(o *Options) { f(o) }

// Options configure every execution of one client.
type Options struct {
	Service *protocol.ServiceSchema
	Region  string

	HTTPClient transport.Client
	Endpoint   endpoints.Resolver
	Signer     auth.Signer
	Retry      retry.Strategy
	Metrics    metrics.Collector
	Logger     log.FieldLogger

	Interceptors []Interceptor
	Plugins      []Plugin

	// DisableHostPrefix skips the endpoint trait's host prefixing.
	DisableHostPrefix bool

	// CompressionMinSize is the smallest body, in bytes, that request
	// compression applies to.
	CompressionMinSize int
}

// Executor runs operations for one service client.
type Executor struct {
	opts   Options
	codec  protocol.Codec
	logger log.FieldLogger
}

// New resolves options into an executor. Plugins run as one ordered pass
// first; unset collaborators then fall back to their defaults.
func New(opts Options) (*Executor, error) {
	for _, p := range opts.Plugins {
		p.Configure(&opts)
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("pipeline: no service schema")
	}
	codec, err := protocol.Resolve(opts.Service.Protocol)
	if err != nil {
		return nil, err
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = transport.DefaultClient()
	}
	if opts.Endpoint == nil {
		opts.Endpoint = endpoints.Default("")
	}
	if opts.Signer == nil {
		opts.Signer = auth.Anonymous()
	}
	if opts.Retry.MaxAttempts == 0 && opts.Retry.Backoff == nil && opts.Retry.Retryable == nil {
		opts.Retry = retry.Standard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.CompressionMinSize <= 0 {
		opts.CompressionMinSize = DefaultCompressionMinSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Executor{opts: opts, codec: codec, logger: logger}, nil
}

// MaxAttemptsError reports a retryable failure that exhausted its
// attempts. The last cause is wrapped.
type MaxAttemptsError struct {
	Attempts int
	Err      error
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxAttemptsError) Unwrap() error { return e.Err }

// Execute runs op synchronously and returns its decoded output. It
// refuses streaming-output operations, which hold a live payload the
// caller must own; those run through ExecuteRaw or ExecuteStream.
func (e *Executor) Execute(ctx context.Context, op *protocol.OperationSchema, input protocol.Document) (protocol.Document, error) {
	if op.IsEventStreamOutput || op.StreamingMember() != nil {
		return nil, fmt.Errorf("%s has a streaming output; use ExecuteRaw or ExecuteStream", op.Name)
	}
	out, _, err := e.ExecuteRaw(ctx, op, input)
	return out, err
}

// ExecuteRaw runs op and returns the decoded output along with the raw
// response. A streaming payload stays live on the response and ownership
// passes to the caller.
func (e *Executor) ExecuteRaw(ctx context.Context, op *protocol.OperationSchema, input protocol.Document) (protocol.Document, *transport.Response, error) {
	start := time.Now()
	ec := &Context{Operation: op, Input: input}

	out, resp, attempts, err := e.run(ctx, op, ec)
	e.opts.Metrics.CallCompleted(e.opts.Service.ServiceID, op.Name, attempts, time.Since(start), err)
	if err != nil {
		e.fireOnError(ctx, ec, err)
		return nil, nil, err
	}
	return out, resp, nil
}

func (e *Executor) run(ctx context.Context, op *protocol.OperationSchema, ec *Context) (protocol.Document, *transport.Response, int, error) {
	req, endpoint, err := e.prepare(ctx, op, ec)
	if err != nil {
		return nil, nil, 0, err
	}

	max := e.maxAttempts()
	for attempt := 1; ; attempt++ {
		attemptStart := time.Now()
		out, resp, err := e.attempt(ctx, op, ec, req, endpoint, attempt, max)
		e.opts.Metrics.AttemptCompleted(e.opts.Service.ServiceID, op.Name, attempt, time.Since(attemptStart), err)
		if err == nil {
			return out, resp, attempt, nil
		}
		if !e.retryable(err) {
			return nil, nil, attempt, err
		}
		if attempt >= max {
			if attempt > 1 {
				err = &MaxAttemptsError{Attempts: attempt, Err: err}
			}
			return nil, nil, attempt, err
		}
		if werr := e.backoff(ctx, op, attempt, err); werr != nil {
			return nil, nil, attempt, werr
		}
	}
}

// prepare runs the one-time stages: early interceptors, idempotency
// token fill, marshalling, body preparation, endpoint resolution, and the
// invocation id that stays constant across attempts.
func (e *Executor) prepare(ctx context.Context, op *protocol.OperationSchema, ec *Context) (*transport.Request, url.URL, error) {
	if err := e.runInterceptors(ctx, ec, beforeMarshalling); err != nil {
		return nil, url.URL{}, err
	}
	ec.Input = fillIdempotencyTokens(op, ec.Input)

	marshalStart := time.Now()
	req, err := e.codec.MarshalRequest(op, ec.Input)
	if err != nil {
		return nil, url.URL{}, err
	}
	e.opts.Metrics.MarshalCompleted(e.opts.Service.ServiceID, op.Name, time.Since(marshalStart))
	ec.Request = req

	if err := e.prepareBody(op, req); err != nil {
		return nil, url.URL{}, err
	}
	if err := e.runInterceptors(ctx, ec, afterMarshalling); err != nil {
		return nil, url.URL{}, err
	}

	endpoint, err := e.resolveEndpoint(op, ec.Input)
	if err != nil {
		return nil, url.URL{}, err
	}

	req.Header.Set(invocationIDHeader, uuid.NewString())
	return req, endpoint, nil
}

func (e *Executor) attempt(ctx context.Context, op *protocol.OperationSchema, ec *Context, req *transport.Request, endpoint url.URL, attempt, max int) (protocol.Document, *transport.Response, error) {
	ec.Attempt = attempt
	req.Header.Set(requestHeader, fmt.Sprintf("attempt=%d; max=%d", attempt, max))

	if err := e.runInterceptors(ctx, ec, beforeTransmission); err != nil {
		return nil, nil, err
	}

	httpReq, err := req.Build(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}
	if op.IsAuthenticated {
		if err := e.opts.Signer.Sign(ctx, httpReq, req.Body, op.UnsignedPayload); err != nil {
			return nil, nil, fmt.Errorf("signing %s: %w", op.Name, err)
		}
	}

	httpResp, err := e.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("sending %s: %w", op.Name, err)
	}

	// Error responses are buffered even for streaming operations, so the
	// codec can decode the error body.
	streaming := op.IsEventStreamOutput || op.StreamingMember() != nil
	resp, err := transport.ReadResponse(httpResp, streaming && httpResp.StatusCode < 300)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s response: %w", op.Name, err)
	}
	ec.Response = resp

	out, err := e.codec.UnmarshalResponse(op, resp)
	if err != nil {
		e.closeStream(resp)
		var serr *protocol.ServiceError
		if errors.As(err, &serr) {
			return nil, nil, err
		}
		return nil, nil, &protocol.ResponseError{StatusCode: resp.StatusCode, RequestID: resp.RequestID(), Err: err}
	}
	ec.Output = out

	if err := e.runInterceptors(ctx, ec, afterUnmarshalling); err != nil {
		e.closeStream(resp)
		return nil, nil, err
	}
	return out, resp, nil
}

func (e *Executor) backoff(ctx context.Context, op *protocol.OperationSchema, attempt int, cause error) error {
	delay := e.opts.Retry.Delay(attempt - 1)
	e.logger.WithFields(log.Fields{
		"service":   e.opts.Service.ServiceID,
		"operation": op.Name,
		"attempt":   attempt,
		"delay":     delay,
	}).WithError(cause).Debug("retrying")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (e *Executor) maxAttempts() int {
	if e.opts.Retry.MaxAttempts <= 0 {
		return 1
	}
	return e.opts.Retry.MaxAttempts
}

func (e *Executor) retryable(err error) bool {
	classify := e.opts.Retry.Retryable
	if classify == nil {
		classify = retry.Retryable
	}
	return classify(err)
}

func (e *Executor) closeStream(resp *transport.Response) {
	if resp != nil && resp.Stream != nil {
		resp.Stream.Close()
	}
}

// prepareBody compresses, then checksums, so the checksum covers the
// bytes that travel.
func (e *Executor) prepareBody(op *protocol.OperationSchema, req *transport.Request) error {
	if supportsGzip(op.RequestCompression) && len(req.Body) >= e.opts.CompressionMinSize {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(req.Body); err != nil {
			return fmt.Errorf("compressing %s request: %w", op.Name, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compressing %s request: %w", op.Name, err)
		}
		req.SetBody(buf.Bytes())
		req.Header.Set("Content-Encoding", "gzip")
	}

	if op.HTTPChecksumRequired && req.Header.Get("Content-MD5") == "" {
		sum := md5.Sum(req.Body)
		req.Header.Set("Content-MD5", base64.StdEncoding.EncodeToString(sum[:]))
	}
	return nil
}

func supportsGzip(encodings []string) bool {
	for _, enc := range encodings {
		if enc == "gzip" {
			return true
		}
	}
	return false
}

func (e *Executor) resolveEndpoint(op *protocol.OperationSchema, input protocol.Document) (url.URL, error) {
	endpoint, err := e.opts.Endpoint.Resolve(e.opts.Service, e.opts.Region)
	if err != nil {
		return url.URL{}, fmt.Errorf("resolving endpoint: %w", err)
	}
	if e.opts.DisableHostPrefix || op.HostPrefix == "" {
		return endpoint, nil
	}
	prefix, err := endpoints.HostPrefix(op, input)
	if err != nil {
		return url.URL{}, err
	}
	return endpoints.ApplyHostPrefix(endpoint, prefix), nil
}

// fillIdempotencyTokens returns the input with a fresh uuid in every
// idempotency token member the caller left empty. The caller's document
// is not mutated.
func fillIdempotencyTokens(op *protocol.OperationSchema, input protocol.Document) protocol.Document {
	in := op.Input()
	if in == nil {
		return input
	}
	var tokens []string
	for i := range in.Members {
		if in.Members[i].IdempotencyToken {
			tokens = append(tokens, in.Members[i].Name)
		}
	}
	if len(tokens) == 0 {
		return input
	}

	fields, _ := protocol.Fields(input)
	filled := make(map[string]protocol.Document, len(fields)+len(tokens))
	for k, v := range fields {
		filled[k] = v
	}
	for _, name := range tokens {
		if v, ok := filled[name]; !ok || v == nil || v == "" {
			filled[name] = uuid.NewString()
		}
	}
	return filled
}
