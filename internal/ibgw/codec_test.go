package ibgw

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, "9", "1", "42"); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	want := []byte("9\x001\x0042\x00")
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload = %q, want %q", payload, want)
	}
}

func TestReadFrameRejectsBadSizes(t *testing.T) {
	for _, size := range []uint32{0, maxFrameSize + 1} {
		head := make([]byte, 4)
		binary.BigEndian.PutUint32(head, size)
		if _, err := readFrame(bytes.NewReader(head)); err == nil {
			t.Errorf("size %d accepted", size)
		}
	}
}

func TestFieldScanner(t *testing.T) {
	s := newFieldScanner([]byte("4\x002\x00200\x00No security definition\x00"))
	if got := s.Int(); got != 4 {
		t.Fatalf("msg id = %d", got)
	}
	if got := s.Int(); got != 2 {
		t.Fatalf("version = %d", got)
	}
	if got := s.Int(); got != 200 {
		t.Fatalf("code = %d", got)
	}
	if got := s.String(); got != "No security definition" {
		t.Fatalf("msg = %q", got)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
}

func TestFieldScannerEmptyFieldsAreZero(t *testing.T) {
	s := newFieldScanner([]byte("\x00\x00\x00"))
	if s.Int() != 0 || s.Float() != 0 || !s.Decimal().IsZero() {
		t.Fatal("empty fields must decode to zero")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
}

func TestFieldScannerShortMessageSticks(t *testing.T) {
	s := newFieldScanner([]byte("1\x00"))
	s.Int()
	s.Int() // past the end
	if s.Err() == nil {
		t.Fatal("overrun not reported")
	}
	// Further reads stay failed but never panic.
	s.Float()
	_ = s.String()
	if s.Err() == nil {
		t.Fatal("error did not stick")
	}
}

func TestFieldScannerBadNumber(t *testing.T) {
	s := newFieldScanner([]byte("abc\x00"))
	s.Int()
	if s.Err() == nil {
		t.Fatal("garbage int accepted")
	}
}

func TestEncHelpers(t *testing.T) {
	if encInt(-42) != "-42" {
		t.Errorf("encInt = %q", encInt(-42))
	}
	if encFloat(1.5) != "1.5" {
		t.Errorf("encFloat = %q", encFloat(1.5))
	}
	if encBool(true) != "1" || encBool(false) != "0" {
		t.Error("encBool mismatch")
	}
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	if encTime(at) != "20250314 09:30:00" {
		t.Errorf("encTime = %q", encTime(at))
	}
	if FormatExecTime(at) != "20250314-09:30:00" {
		t.Errorf("FormatExecTime = %q", FormatExecTime(at))
	}
}
