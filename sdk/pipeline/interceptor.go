package pipeline

import (
	"context"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/transport"
)

// Context carries the state of one execution through the interceptor
// hooks. Fields are populated as the stages they belong to complete:
// Request after marshalling, Response and Output after each attempt.
type Context struct {
	Operation *protocol.OperationSchema
	Input     protocol.Document
	Request   *transport.Request
	Response  *transport.Response
	Output    protocol.Document

	// Attempt is the 1-based attempt number, zero before transmission.
	Attempt int
}

// Interceptor observes and steers an execution. Set only the hooks you
// need; nil hooks are skipped. An error from any hook fails the whole
// execution without a retry.
//
// BeforeMarshalling and AfterMarshalling run once per execution,
// BeforeTransmission and AfterUnmarshalling once per attempt. OnError
// fires once, after the execution has terminally failed.
type Interceptor struct {
	BeforeMarshalling  func(ctx context.Context, ec *Context) error
	AfterMarshalling   func(ctx context.Context, ec *Context) error
	BeforeTransmission func(ctx context.Context, ec *Context) error
	AfterUnmarshalling func(ctx context.Context, ec *Context) error
	OnError            func(ctx context.Context, ec *Context, err error)
}

type stage func(Interceptor) func(ctx context.Context, ec *Context) error

func beforeMarshalling(i Interceptor) func(ctx context.Context, ec *Context) error {
	return i.BeforeMarshalling
}

func afterMarshalling(i Interceptor) func(ctx context.Context, ec *Context) error {
	return i.AfterMarshalling
}

func beforeTransmission(i Interceptor) func(ctx context.Context, ec *Context) error {
	return i.BeforeTransmission
}

func afterUnmarshalling(i Interceptor) func(ctx context.Context, ec *Context) error {
	return i.AfterUnmarshalling
}

func (e *Executor) runInterceptors(ctx context.Context, ec *Context, pick stage) error {
	for _, i := range e.opts.Interceptors {
		hook := pick(i)
		if hook == nil {
			continue
		}
		if err := hook(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) fireOnError(ctx context.Context, ec *Context, err error) {
	for _, i := range e.opts.Interceptors {
		if i.OnError != nil {
			i.OnError(ctx, ec, err)
		}
	}
}
