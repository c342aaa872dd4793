package transport

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/arapat/sparrow-sub000/pkg/bins"
	"github.com/arapat/sparrow-sub000/pkg/example"
)

// WriteBins persists a Bins table as bins.json, matching the teacher's
// plain-JSON schema.json convention.
func WriteBins(e Engine, b bins.Bins) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("transport: marshal bins: %w", err)
	}
	return e.WriteBlob("bins.json", data)
}

// ReadBins loads the bins.json blob.
func ReadBins(e Engine) (bins.Bins, error) {
	data, err := e.ReadBlob("bins.json")
	if err != nil {
		return bins.Bins{}, err
	}
	var b bins.Bins
	if err := json.Unmarshal(data, &b); err != nil {
		return bins.Bins{}, fmt.Errorf("transport: unmarshal bins: %w", err)
	}
	return b, nil
}

// WriteSampleBatch gob-encodes a gathered sample batch as
// samples/sample-<10-digit version>.bin, the binary format used for every blob that is
// written once and read once rather than hand-inspected.
func WriteSampleBatch(e Engine, version uint32, entries []example.SampleEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("transport: encode sample batch: %w", err)
	}
	return e.WriteBlob(sampleBlobName(version), buf.Bytes())
}

// ReadSampleBatch loads the sample batch written for version.
func ReadSampleBatch(e Engine, version uint32) ([]example.SampleEntry, error) {
	data, err := e.ReadBlob(sampleBlobName(version))
	if err != nil {
		return nil, err
	}
	var entries []example.SampleEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("transport: decode sample batch: %w", err)
	}
	return entries, nil
}

func sampleBlobName(version uint32) string {
	return fmt.Sprintf("samples/sample-%010d.bin", version)
}
