package diskblock

import (
	"path/filepath"
	"testing"
)

type fixture struct {
	A int
	B string
}

func openBuffer(t *testing.T, blockSize int64) *Buffer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.bin")
	buf, err := Open(path, blockSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { buf.Close() })
	return buf
}

func TestWriteReadRoundtrip(t *testing.T) {
	buf := openBuffer(t, 256)
	slot, err := buf.Write(fixture{A: 42, B: "hello"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	var out fixture
	if err := buf.Read(slot, &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.A != 42 || out.B != "hello" {
		t.Errorf("roundtrip mismatch: got %+v", out)
	}
}

func TestReadFreesSlotForReuse(t *testing.T) {
	buf := openBuffer(t, 256)
	slot, _ := buf.Write(fixture{A: 1})
	if buf.InUse() != 1 {
		t.Fatalf("expected 1 slot in use, got %d", buf.InUse())
	}
	var out fixture
	buf.Read(slot, &out)
	if buf.InUse() != 0 {
		t.Fatalf("expected slot to be freed after read, got %d in use", buf.InUse())
	}
	slot2, err := buf.Write(fixture{A: 2})
	if err != nil {
		t.Fatalf("Write after free: %v", err)
	}
	if slot2 != slot {
		t.Errorf("expected freed slot %d to be reused, got %d", slot, slot2)
	}
}

func TestWriteTooLargeFails(t *testing.T) {
	buf := openBuffer(t, 16)
	_, err := buf.Write(fixture{A: 1, B: "this payload will not fit into a 16 byte block no matter how you compress it"})
	if err == nil {
		t.Fatalf("expected error for oversized payload")
	}
}

func TestMultipleSlotsIndependent(t *testing.T) {
	buf := openBuffer(t, 256)
	s1, _ := buf.Write(fixture{A: 1})
	s2, _ := buf.Write(fixture{A: 2})
	if s1 == s2 {
		t.Fatalf("expected distinct slots, got %d and %d", s1, s2)
	}
	var o1, o2 fixture
	buf.Read(s2, &o2)
	buf.Read(s1, &o1)
	if o1.A != 1 || o2.A != 2 {
		t.Errorf("cross-contaminated slots: o1=%+v o2=%+v", o1, o2)
	}
}
