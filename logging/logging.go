// Package logging mirrors the standard logger to a size-capped file so
// long-running daemons keep a bounded on-disk trail next to stdout.
package logging

import (
	"io"
	"log"
	"os"
	"strconv"
	"sync"
)

const (
	defaultMaxSize = 5 * 1024 * 1024
	backups        = 2
)

type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup routes the standard logger to stdout plus a rotating file at
// path. A file error is returned rather than fatal; the caller decides
// whether stdout-only logging is acceptable.
func Setup(path string) (*RotatingWriter, error) {
	rw, err := newRotatingWriter(path, defaultMaxSize)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func newRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return &RotatingWriter{file: f, path: path, size: size, maxSize: maxSize}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		w.rotate()
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate shifts path -> path.1 -> path.2 and reopens a fresh file. On
// reopen failure the old handle stays in place so writes keep landing
// somewhere.
func (w *RotatingWriter) rotate() {
	for i := backups; i > 1; i-- {
		os.Rename(backupName(w.path, i-1), backupName(w.path, i))
	}

	w.file.Close()
	os.Rename(w.path, backupName(w.path, 1))

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		f, err = os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
	}
	w.file = f
	w.size = 0
}

func backupName(path string, n int) string {
	return path + "." + strconv.Itoa(n)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
