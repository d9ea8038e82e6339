// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"fmt"
	"os"
)

// AsyncLogger decouples callers from the latency of the underlying writer
// (typically a rotating log file) by handing writes to a single background
// goroutine over a bounded channel. A full buffer drops the message rather
// than blocking the caller, trading durability for responsiveness on the
// filesystem callback path.
type AsyncLogger struct {
	w    Writer
	msgs chan []byte
	done chan struct{}
}

// Writer is the subset of io.Writer an AsyncLogger writes to.
type Writer interface {
	Write(p []byte) (int, error)
}

// NewAsyncLogger starts a background goroutine draining a channel of size
// bufSize into w. Call Close to flush and stop it.
func NewAsyncLogger(w Writer, bufSize int) *AsyncLogger {
	l := &AsyncLogger{
		w:    w,
		msgs: make(chan []byte, bufSize),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for p := range l.msgs {
		if _, err := l.w.Write(p); err != nil {
			fmt.Fprintf(os.Stderr, "asynclogger: write failed: %v\n", err)
		}
	}
}

// Write implements io.Writer. It copies p (the caller may reuse its buffer
// after Write returns) and enqueues it for the background writer.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case l.msgs <- cp:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close stops accepting writes, waits for the buffered ones to drain, and
// closes the underlying writer if it implements io.Closer.
func (l *AsyncLogger) Close() error {
	close(l.msgs)
	<-l.done
	if c, ok := l.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
