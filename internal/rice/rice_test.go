package rice

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/mewkiz/flac/internal/bitio"
)

func TestFindBestPartitionOrderRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	predOrder := 2
	blockSize := 256
	residual := make([]int32, blockSize-predOrder)
	for i := range residual {
		residual[i] = int32(rng.Intn(201) - 100)
	}

	plan := FindBestPartitionOrder(residual, predOrder, blockSize, 0, 6, true, 15)
	if len(plan.Partitions) != 1<<uint(plan.Order) {
		t.Fatalf("partition count = %d, want %d", len(plan.Partitions), 1<<uint(plan.Order))
	}

	w := bitio.NewWriter()
	if err := Encode(w, plan, residual, predOrder, blockSize); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.ZeroPadToByteBoundary(); err != nil {
		t.Fatal(err)
	}
	buf, _ := w.Buffer()

	r := bitio.NewReader(bytes.NewReader(buf))
	methodBit := uint64(0)
	if plan.Method == PartitionedRice2 {
		methodBit = 1
	}
	got, err := Decode(r, methodBit, predOrder, blockSize)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range residual {
		if got[i] != v {
			t.Errorf("residual[%d] = %d, want %d", i, got[i], v)
		}
	}
}

func TestEscapeCodingOfOutlier(t *testing.T) {
	predOrder := 1
	blockSize := 64
	residual := make([]int32, blockSize-predOrder)
	for i := range residual {
		residual[i] = 1
	}
	// Force at least one huge value so escape coding beats Rice coding in
	// the partition it lands in.
	residual[0] = 1 << 18

	plan := FindBestPartitionOrder(residual, predOrder, blockSize, 0, 4, true, 15)
	foundEscape := false
	for _, p := range plan.Partitions {
		if p.Escaped {
			foundEscape = true
		}
	}
	if !foundEscape {
		t.Error("expected at least one escaped partition for an extreme outlier")
	}

	w := bitio.NewWriter()
	if err := Encode(w, plan, residual, predOrder, blockSize); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.ZeroPadToByteBoundary(); err != nil {
		t.Fatal(err)
	}
	buf, _ := w.Buffer()
	r := bitio.NewReader(bytes.NewReader(buf))
	methodBit := uint64(0)
	if plan.Method == PartitionedRice2 {
		methodBit = 1
	}
	got, err := Decode(r, methodBit, predOrder, blockSize)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range residual {
		if got[i] != v {
			t.Errorf("residual[%d] = %d, want %d", i, got[i], v)
		}
	}
}

func TestUpgradeToPartitionedRice2(t *testing.T) {
	predOrder := 0
	blockSize := 32
	residual := make([]int32, blockSize)
	// Large-magnitude values push the ideal Rice parameter above 14.
	for i := range residual {
		residual[i] = 1 << 20
	}
	plan := FindBestPartitionOrder(residual, predOrder, blockSize, 0, 0, false, 31)
	if plan.Method != PartitionedRice2 {
		t.Errorf("method = %v, want PartitionedRice2 for large-parameter partitions", plan.Method)
	}
}

func TestZeroResidualPicksParameterZero(t *testing.T) {
	predOrder := 0
	blockSize := 16
	residual := make([]int32, blockSize)
	plan := FindBestPartitionOrder(residual, predOrder, blockSize, 0, 2, false, 15)
	for _, p := range plan.Partitions {
		if p.Param != 0 {
			t.Errorf("param = %d, want 0 for all-zero residual", p.Param)
		}
	}
}
