package joblog

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// StampLayout matches the default format of moreutils ts(1).
const StampLayout = "Jan 02 15:04:05"

// TimestampWriter prefixes every complete line with the current time.
// A trailing partial line is held until the next newline or Flush.
type TimestampWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	now func() time.Time
}

func NewTimestampWriter(w io.Writer) *TimestampWriter {
	return &TimestampWriter{w: w, now: time.Now}
}

func (t *TimestampWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			t.buf = append(t.buf, p...)
			break
		}
		t.buf = append(t.buf, p[:i+1]...)
		p = p[i+1:]
		if err := t.emit(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Flush writes a pending partial line terminated by a newline.
func (t *TimestampWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) == 0 {
		return nil
	}
	t.buf = append(t.buf, '\n')
	return t.emit()
}

// Line writes s as its own stamped line.
func (t *TimestampWriter) Line(s string) error {
	if err := t.Flush(); err != nil {
		return err
	}
	_, err := t.Write([]byte(s + "\n"))
	return err
}

func (t *TimestampWriter) emit() error {
	line := make([]byte, 0, len(StampLayout)+1+len(t.buf))
	line = t.now().AppendFormat(line, StampLayout)
	line = append(line, ' ')
	line = append(line, t.buf...)
	t.buf = t.buf[:0]
	_, err := t.w.Write(line)
	return err
}
