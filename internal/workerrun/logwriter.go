package workerrun

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
)

// LineSink receives one log line at a time, in order, for fan-out to the
// log channel (see internal/logfanout). Implementations must not block
// indefinitely; a slow sink stalls the build it is attached to.
type LineSink interface {
	SendLine(ctx context.Context, line string) error
}

// LineSplittingWriter is an io.Writer that buffers captured build output
// into newline-delimited records, further splitting on bare CR (the build
// tool's progress bars rewrite a line in place with '\r' rather than
// emitting a fresh one) and tolerating invalid UTF-8 by lossy replacement,
// forwarding each resulting line to Sink.
type LineSplittingWriter struct {
	Ctx     context.Context
	Sink    LineSink
	scanner *bufio.Scanner
	pr      *io.PipeReader
	pw      *io.PipeWriter
	done    chan struct{}
}

// NewLineSplittingWriter starts the background line reader. Close must be
// called when the writer is no longer needed.
func NewLineSplittingWriter(ctx context.Context, sink LineSink) *LineSplittingWriter {
	pr, pw := io.Pipe()
	w := &LineSplittingWriter{Ctx: ctx, Sink: sink, pr: pr, pw: pw, done: make(chan struct{})}
	w.scanner = bufio.NewScanner(pr)
	w.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	go w.pump()
	return w
}

func (w *LineSplittingWriter) pump() {
	defer close(w.done)
	for w.scanner.Scan() {
		raw := w.scanner.Bytes()
		raw = bytes.TrimSuffix(raw, []byte("\r"))
		text := strings.ToValidUTF8(string(raw), string([]byte{0xef, 0xbf, 0xbd}))
		for _, line := range strings.Split(text, "\r") {
			if err := w.Sink.SendLine(w.Ctx, line); err != nil {
				return
			}
		}
	}
}

func (w *LineSplittingWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close flushes any trailing partial line and stops the background reader.
func (w *LineSplittingWriter) Close() error {
	w.pw.Close()
	<-w.done
	return nil
}
