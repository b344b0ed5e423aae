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
	"io"
	"os"
)

// AsyncLogger buffers writes on a channel and flushes them to the
// underlying writer from a single goroutine, so a slow sink (a rotating log
// file) never blocks the FC's request/reply path.
type AsyncLogger struct {
	out  io.Writer
	ch   chan []byte
	done chan struct{}
}

// NewAsyncLogger starts the background writer goroutine. bufferSize is the
// number of pending writes the channel can hold before new writes are
// dropped with a warning on stderr.
func NewAsyncLogger(out io.Writer, bufferSize int) *AsyncLogger {
	a := &AsyncLogger{
		out:  out,
		ch:   make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for p := range a.ch {
		if _, err := a.out.Write(p); err != nil {
			fmt.Fprintf(os.Stderr, "asynclogger: write failed: %v\n", err)
		}
	}
}

// Write implements io.Writer. It copies p, since the caller may reuse its
// buffer, and enqueues it without blocking; a full buffer drops the message.
func (a *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	select {
	case a.ch <- cp:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close stops accepting writes and waits for the background goroutine to
// drain the channel and close the underlying writer, if it is a Closer.
func (a *AsyncLogger) Close() error {
	close(a.ch)
	<-a.done
	if c, ok := a.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
