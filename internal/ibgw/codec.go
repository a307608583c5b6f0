package ibgw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Wire framing: every message is a 4-byte big-endian length prefix followed
// by that many bytes of payload; the payload is a sequence of NUL-terminated
// ASCII fields, the first of which is the message id.

const maxFrameSize = 1 << 20

// writeFrame encodes fields into one framed message.
func writeFrame(w io.Writer, fields ...string) error {
	var buf bytes.Buffer
	for _, f := range fields {
		buf.WriteString(f)
		buf.WriteByte(0)
	}
	head := make([]byte, 4)
	binary.BigEndian.PutUint32(head, uint32(buf.Len()))
	if _, err := w.Write(head); err != nil {
		return fmt.Errorf("write frame head: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one framed payload.
func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head)
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("bad frame size %d", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}

// fieldScanner walks the NUL-separated fields of a payload. The first decode
// error sticks; callers check Err once after pulling everything they need,
// so a short or malformed message never panics mid-decode.
type fieldScanner struct {
	fields [][]byte
	pos    int
	err    error
}

func newFieldScanner(payload []byte) *fieldScanner {
	payload = bytes.TrimSuffix(payload, []byte{0})
	if len(payload) == 0 {
		return &fieldScanner{}
	}
	return &fieldScanner{fields: bytes.Split(payload, []byte{0})}
}

func (s *fieldScanner) Err() error { return s.err }

func (s *fieldScanner) next() (string, bool) {
	if s.err != nil || s.pos >= len(s.fields) {
		if s.err == nil {
			s.err = fmt.Errorf("field %d: short message", s.pos)
		}
		return "", false
	}
	f := string(s.fields[s.pos])
	s.pos++
	return f, true
}

func (s *fieldScanner) String() string {
	f, _ := s.next()
	return f
}

func (s *fieldScanner) Int() int64 {
	f, ok := s.next()
	if !ok || f == "" {
		return 0
	}
	v, err := strconv.ParseInt(f, 10, 64)
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("field %d: %w", s.pos-1, err)
	}
	return v
}

func (s *fieldScanner) Float() float64 {
	f, ok := s.next()
	if !ok || f == "" {
		return 0
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("field %d: %w", s.pos-1, err)
	}
	return v
}

func (s *fieldScanner) Decimal() decimal.Decimal {
	f, ok := s.next()
	if !ok || f == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(f)
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("field %d: %w", s.pos-1, err)
	}
	return v
}

func (s *fieldScanner) Bool() bool {
	f, _ := s.next()
	return f == "1" || f == "true"
}

func encInt(v int64) string { return strconv.FormatInt(v, 10) }
func encFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func encBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func encTime(t time.Time) string { return t.Format("20060102 15:04:05") }

// FormatExecTime renders a time the way the execution filter expects it.
func FormatExecTime(t time.Time) string { return t.Format("20060102-15:04:05") }
