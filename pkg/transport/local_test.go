package transport

import (
	"testing"

	"github.com/arapat/sparrow-sub000/pkg/bins"
	"github.com/arapat/sparrow-sub000/pkg/example"
)

func newLocalEngine(t *testing.T) *LocalEngine {
	t.Helper()
	e, err := NewLocalEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalEngine: %v", err)
	}
	return e
}

func TestLocalEngineWriteReadRoundtrip(t *testing.T) {
	e := newLocalEngine(t)
	if err := e.WriteBlob("model.json", []byte(`{"trees":[]}`)); err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	got, err := e.ReadBlob("model.json")
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(got) != `{"trees":[]}` {
		t.Errorf("unexpected contents: %s", got)
	}
}

func TestLocalEngineRemoveAndList(t *testing.T) {
	e := newLocalEngine(t)
	e.WriteBlob("samples/a.bin", []byte("a"))
	e.WriteBlob("samples/b.bin", []byte("b"))
	e.WriteBlob("other.json", []byte("x"))

	names, err := e.List("samples/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 blobs under samples/, got %d: %v", len(names), names)
	}

	if err := e.RemoveBlob("samples/a.bin"); err != nil {
		t.Fatalf("RemoveBlob: %v", err)
	}
	names, _ = e.List("samples/")
	if len(names) != 1 {
		t.Errorf("expected 1 blob after removal, got %d", len(names))
	}
}

func TestLocalEngineRemoveMissingIsNotError(t *testing.T) {
	e := newLocalEngine(t)
	if err := e.RemoveBlob("never-written.bin"); err != nil {
		t.Errorf("removing a missing blob should not error, got %v", err)
	}
}

func TestBinsRoundtrip(t *testing.T) {
	e := newLocalEngine(t)
	b := bins.Bins{Features: []bins.Mapper{{Thresholds: []float64{1, 2, 3}}}}
	if err := WriteBins(e, b); err != nil {
		t.Fatalf("WriteBins: %v", err)
	}
	got, err := ReadBins(e)
	if err != nil {
		t.Fatalf("ReadBins: %v", err)
	}
	if len(got.Features) != 1 || len(got.Features[0].Thresholds) != 3 {
		t.Errorf("unexpected bins after roundtrip: %+v", got)
	}
}

func TestSampleBatchRoundtrip(t *testing.T) {
	e := newLocalEngine(t)
	entries := []example.SampleEntry{
		{BaseVersion: 3},
		{BaseVersion: 3},
	}
	if err := WriteSampleBatch(e, 3, entries); err != nil {
		t.Fatalf("WriteSampleBatch: %v", err)
	}
	got, err := ReadSampleBatch(e, 3)
	if err != nil {
		t.Fatalf("ReadSampleBatch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}
