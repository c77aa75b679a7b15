// Package streaming consumes streaming response payloads. A Transformer
// decides what happens to the bytes of a successful response: buffer them,
// write them to a file, hand the caller a live reader, or pump them
// through a pipe as they arrive.
package streaming

import (
	"fmt"
	"io"
	"os"
)

// Result is a transformer's terminal value.
type Result[R any] struct {
	Value R
	Err   error
}

// Transformer receives one execution's streaming response. The pipeline
// calls Prepare at the start of every attempt (a retry replaces the
// previous result channel, never reuses it), OnResponse when the decoded
// response head arrives, then OnStream exactly once with the payload.
// ExceptionOccurred delivers the terminal failure to the transformer
// before any error signal reaches the byte consumer. Calls for one
// attempt are never concurrent, but goroutine identity is not guaranteed.
type Transformer[T, R any] interface {
	Prepare() <-chan Result[R]
	OnResponse(output T)
	OnStream(body io.ReadCloser) error
	ExceptionOccurred(err error)
}

// TerminalError marks a consumption failure that must not be retried
// because payload bytes already reached the consumer.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("stream already partially consumed: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Payload pairs the decoded output with the fully buffered body.
type Payload[T any] struct {
	Output T
	Body   []byte
}

// BytesTransformer buffers the payload in memory.
type BytesTransformer[T any] struct {
	output T
	ch     chan Result[Payload[T]]
}

// ToBytes returns a transformer resolving with the output and the
// collected payload bytes.
func ToBytes[T any]() *BytesTransformer[T] {
	return &BytesTransformer[T]{}
}

func (t *BytesTransformer[T]) Prepare() <-chan Result[Payload[T]] {
	t.ch = make(chan Result[Payload[T]], 1)
	return t.ch
}

func (t *BytesTransformer[T]) OnResponse(output T) { t.output = output }

func (t *BytesTransformer[T]) OnStream(body io.ReadCloser) error {
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("buffering payload: %w", err)
	}
	t.ch <- Result[Payload[T]]{Value: Payload[T]{Output: t.output, Body: b}}
	return nil
}

func (t *BytesTransformer[T]) ExceptionOccurred(error) {}

// FileOutput pairs the decoded output with the bytes written to disk.
type FileOutput[T any] struct {
	Output  T
	Written int64
}

// FileTransformer writes the payload to a file. Every attempt truncates
// and rewrites; a terminal failure removes the partial file.
type FileTransformer[T any] struct {
	path   string
	output T
	ch     chan Result[FileOutput[T]]
}

// ToFile returns a transformer writing the payload to path, resolving
// with the output and the byte count.
func ToFile[T any](path string) *FileTransformer[T] {
	return &FileTransformer[T]{path: path}
}

func (t *FileTransformer[T]) Prepare() <-chan Result[FileOutput[T]] {
	t.ch = make(chan Result[FileOutput[T]], 1)
	return t.ch
}

func (t *FileTransformer[T]) OnResponse(output T) { t.output = output }

func (t *FileTransformer[T]) OnStream(body io.ReadCloser) error {
	defer body.Close()
	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", t.path, err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", t.path, err)
	}
	t.ch <- Result[FileOutput[T]]{Value: FileOutput[T]{Output: t.output, Written: n}}
	return nil
}

func (t *FileTransformer[T]) ExceptionOccurred(error) {
	os.Remove(t.path)
}

// StreamOutput pairs the decoded output with the live payload.
type StreamOutput[T any] struct {
	Output T
	Body   io.ReadCloser
}

// BlockingStreamTransformer resolves as soon as the payload is available,
// handing ownership of the live stream to the caller.
type BlockingStreamTransformer[T any] struct {
	output T
	ch     chan Result[StreamOutput[T]]
}

// ToBlockingStream returns a transformer that hands the caller the raw
// payload stream to drain. The caller closes it.
func ToBlockingStream[T any]() *BlockingStreamTransformer[T] {
	return &BlockingStreamTransformer[T]{}
}

func (t *BlockingStreamTransformer[T]) Prepare() <-chan Result[StreamOutput[T]] {
	t.ch = make(chan Result[StreamOutput[T]], 1)
	return t.ch
}

func (t *BlockingStreamTransformer[T]) OnResponse(output T) { t.output = output }

func (t *BlockingStreamTransformer[T]) OnStream(body io.ReadCloser) error {
	t.ch <- Result[StreamOutput[T]]{Value: StreamOutput[T]{Output: t.output, Body: body}}
	return nil
}

func (t *BlockingStreamTransformer[T]) ExceptionOccurred(error) {}

// PublisherTransformer pumps payload bytes through a pipe as they arrive.
// The subscription side is Reader; the result resolves with the decoded
// output once the subscriber has received the whole payload.
type PublisherTransformer[T any] struct {
	output T
	ch     chan Result[T]
	pr     *io.PipeReader
	pw     *io.PipeWriter
}

// ToPublisher returns a pipe-backed transformer. The execution blocks
// while the pipe is unread, so drive it from an async execution or read
// Reader from another goroutine.
func ToPublisher[T any]() *PublisherTransformer[T] {
	pr, pw := io.Pipe()
	return &PublisherTransformer[T]{pr: pr, pw: pw}
}

// Reader is the subscription side of the payload pipe. It ends with
// io.EOF on success and with the terminal cause on failure.
func (t *PublisherTransformer[T]) Reader() io.Reader { return t.pr }

func (t *PublisherTransformer[T]) Prepare() <-chan Result[T] {
	t.ch = make(chan Result[T], 1)
	return t.ch
}

func (t *PublisherTransformer[T]) OnResponse(output T) { t.output = output }

func (t *PublisherTransformer[T]) OnStream(body io.ReadCloser) error {
	defer body.Close()
	n, err := io.Copy(t.pw, body)
	if err != nil {
		err = fmt.Errorf("publishing payload: %w", err)
		if n > 0 {
			return &TerminalError{Err: err}
		}
		return err
	}
	t.ch <- Result[T]{Value: t.output}
	return t.pw.Close()
}

// ExceptionOccurred records the terminal failure, then releases the
// subscriber with it.
func (t *PublisherTransformer[T]) ExceptionOccurred(err error) {
	t.pw.CloseWithError(err)
}

var (
	_ Transformer[any, Payload[any]]      = (*BytesTransformer[any])(nil)
	_ Transformer[any, FileOutput[any]]   = (*FileTransformer[any])(nil)
	_ Transformer[any, StreamOutput[any]] = (*BlockingStreamTransformer[any])(nil)
	_ Transformer[any, any]               = (*PublisherTransformer[any])(nil)
)
