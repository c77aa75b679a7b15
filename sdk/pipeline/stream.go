package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/acksell/vogels/sdk/protocol"
	"github.com/acksell/vogels/sdk/streaming"
)

// ExecuteStream runs op and hands its payload to tr. The transformer is
// prepared again for every attempt, so a retry never sees bytes from an
// earlier one. A failure after the payload has started flowing is
// terminal regardless of its classification; tr learns of terminal
// failure through ExceptionOccurred before the error returns.
func ExecuteStream[R any](ctx context.Context, e *Executor, op *protocol.OperationSchema, input protocol.Document, tr streaming.Transformer[protocol.Document, R]) (R, error) {
	start := time.Now()
	ec := &Context{Operation: op, Input: input}

	value, attempts, err := executeStream(ctx, e, op, ec, tr)
	e.opts.Metrics.CallCompleted(e.opts.Service.ServiceID, op.Name, attempts, time.Since(start), err)
	if err != nil {
		tr.ExceptionOccurred(err)
		e.fireOnError(ctx, ec, err)
		var zero R
		return zero, err
	}
	return value, nil
}

func executeStream[R any](ctx context.Context, e *Executor, op *protocol.OperationSchema, ec *Context, tr streaming.Transformer[protocol.Document, R]) (R, int, error) {
	var zero R

	req, endpoint, err := e.prepare(ctx, op, ec)
	if err != nil {
		return zero, 0, err
	}

	max := e.maxAttempts()
	for attempt := 1; ; attempt++ {
		ch := tr.Prepare()

		attemptStart := time.Now()
		out, resp, err := e.attempt(ctx, op, ec, req, endpoint, attempt, max)
		if err == nil {
			tr.OnResponse(out)
			stream := resp.Stream
			if stream == nil {
				stream = io.NopCloser(bytes.NewReader(resp.Body))
			}
			err = tr.OnStream(stream)
		}
		e.opts.Metrics.AttemptCompleted(e.opts.Service.ServiceID, op.Name, attempt, time.Since(attemptStart), err)
		if err == nil {
			res := <-ch
			return res.Value, attempt, res.Err
		}

		var terminal *streaming.TerminalError
		if errors.As(err, &terminal) {
			return zero, attempt, err
		}
		if !e.retryable(err) {
			return zero, attempt, err
		}
		if attempt >= max {
			if attempt > 1 {
				err = &MaxAttemptsError{Attempts: attempt, Err: err}
			}
			return zero, attempt, err
		}
		if werr := e.backoff(ctx, op, attempt, err); werr != nil {
			return zero, attempt, werr
		}
	}
}
