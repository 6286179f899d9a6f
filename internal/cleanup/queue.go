// Package cleanup holds printed files until they can be deleted.
//
// Files are not removed right after printing because the print subsystem
// may still be spooling them. The watcher loop drains the queue at the start
// of its next iteration instead.
package cleanup

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// Result reports the deletion of one queued path.
type Result struct {
	Path string

	// Missing is true when the file was already gone. That counts as
	// success.
	Missing bool

	// Err is set when the file exists but could not be removed. The entry
	// is dropped either way.
	Err error
}

// Queue is a FIFO of paths awaiting deletion. Push is safe for concurrent
// use; Drain expects a single consumer.
type Queue struct {
	mu    sync.Mutex
	paths []string
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends path to the queue.
func (q *Queue) Push(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paths = append(q.paths, path)
}

// Len returns the number of queued paths.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths)
}

// Pending returns a copy of the queued paths in FIFO order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.paths...)
}

// Drain empties the queue and deletes every path in the order it was
// pushed. It returns one result per path.
func (q *Queue) Drain() []Result {
	q.mu.Lock()
	paths := q.paths
	q.paths = nil
	q.mu.Unlock()

	if len(paths) == 0 {
		return nil
	}

	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		r := Result{Path: path}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.Missing = true
			} else {
				r.Err = err
			}
		}
		results = append(results, r)
	}
	return results
}
