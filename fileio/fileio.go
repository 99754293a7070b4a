// Package fileio is a convenience wrapper around ordinary blocking file
// I/O, dispatched to an executor.Executor worker rather than performed on
// the calling goroutine.
//
// This is explicitly non-core (§1, §9 Open Question iii): true
// asynchronous file I/O is delicate on Linux (io_uring, AIO) and out of
// scope here. Every call in this package blocks the worker goroutine that
// picks it up for the duration of the syscall — document this scheduling
// property to callers rather than pretending it is nonblocking like
// AsyncSocket.
package fileio

import (
	"context"
	"os"

	"github.com/ygrebnov/asyncrt"
	"github.com/ygrebnov/asyncrt/executor"
	"github.com/ygrebnov/asyncrt/executor/pool"
)

// bufferPool recycles AppendFile's 32KB scratch buffers across calls,
// backed by executor/pool's generic Fixed pool.
var bufferPool = pool.NewFixed(64, func() []byte { return make([]byte, 32*1024) })

// ReadFile runs a blocking full-file read on an Executor worker and
// returns the contents as a Task[[]byte].
func ReadFile(e *executor.Executor, path string) *asyncrt.Task[[]byte] {
	return executor.RunOnExecutor(e, func(context.Context) ([]byte, error) {
		return os.ReadFile(path)
	})
}

// WriteFile runs a blocking file write (truncate-and-create semantics,
// mirroring os.WriteFile) on an Executor worker.
func WriteFile(e *executor.Executor, path string, data []byte, perm os.FileMode) *asyncrt.Task[struct{}] {
	return executor.RunOnExecutor(e, func(context.Context) (struct{}, error) {
		return struct{}{}, os.WriteFile(path, data, perm)
	})
}

// AppendFile opens path for append (creating it if necessary) and writes
// data to it on an Executor worker, copying data through a pooled 32KB
// scratch buffer one chunk at a time. data itself is not copied before
// submission: the worker reads the caller's slice while the Task runs.
func AppendFile(e *executor.Executor, path string, data []byte) *asyncrt.Task[int] {
	return executor.RunOnExecutor(e, func(context.Context) (int, error) {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, err
		}
		defer f.Close()

		buf := bufferPool.Get()
		defer bufferPool.Put(buf)

		n := 0
		for n < len(data) {
			end := n + len(buf)
			if end > len(data) {
				end = len(data)
			}
			m := copy(buf, data[n:end])
			written, werr := f.Write(buf[:m])
			n += written
			if werr != nil {
				return n, werr
			}
		}
		return n, nil
	})
}
