// Package logcapture redirects the package loggers to a buffer in tests.
package logcapture

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/effective-security/xlog"
)

// Buffer is a concurrency safe log sink.
type Buffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

// Write implements io.Writer
func (b *Buffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

// String returns the captured output.
func (b *Buffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

// Count returns the number of occurrences of s in the captured output.
func (b *Buffer) Count(s string) int {
	return strings.Count(b.String(), s)
}

// Reset clears the captured output.
func (b *Buffer) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.buf.Reset()
}

// Capture sends all log output to the returned Buffer until the test ends.
func Capture(t testing.TB) *Buffer {
	b := new(Buffer)
	xlog.SetFormatter(xlog.NewStringFormatter(b))
	xlog.SetGlobalLogLevel(xlog.DEBUG)
	t.Cleanup(func() {
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
		xlog.SetGlobalLogLevel(xlog.INFO)
	})
	return b
}
