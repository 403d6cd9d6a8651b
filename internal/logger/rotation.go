package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter appends to a file and, once it exceeds a size limit, shifts
// it to numbered backups: file.1 is the newest, file.N the oldest.
type RotatingWriter struct {
	mu         sync.Mutex
	filename   string
	maxSize    int64
	maxBackups int
	compress   bool
	file       *os.File
	size       int64
}

// NewRotatingWriter opens filename for appending. maxSizeMB <= 0 disables
// rotation.
func NewRotatingWriter(filename string, maxSizeMB, maxBackups int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		filename:   filename,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		compress:   compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would cross the size limit
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) backupName(n int) string {
	name := fmt.Sprintf("%s.%d", w.filename, n)
	if w.compress {
		name += ".gz"
	}
	return name
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	if w.maxBackups <= 0 {
		if err := os.Remove(w.filename); err != nil && !os.IsNotExist(err) {
			return err
		}
		return w.open()
	}

	_ = os.Remove(w.backupName(w.maxBackups))
	for n := w.maxBackups - 1; n >= 1; n-- {
		if err := os.Rename(w.backupName(n), w.backupName(n+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if w.compress {
		if err := compressFile(w.filename, w.backupName(1)); err != nil {
			return err
		}
	} else if err := os.Rename(w.filename, w.backupName(1)); err != nil {
		return err
	}

	return w.open()
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
