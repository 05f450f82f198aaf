package meta

import (
	"fmt"
	"sort"

	"github.com/mewkiz/flac/internal/bitio"
)

// seekPointLength is the fixed encoded byte length of one SeekPoint.
const seekPointLength = 18

// PlaceholderPoint is the sample number used by a seek point that reserves
// space in the table without naming a real target; decoders must ignore
// it, and placeholder points always sort last.
const PlaceholderPoint = 0xFFFFFFFFFFFFFFFF

// SeekTable lists precomputed seek points a decoder can use to jump close
// to a target sample without scanning the whole stream.
type SeekTable struct {
	Points []SeekPoint
}

// SeekPoint names the byte offset and blocksize of the frame starting at
// SampleNum.
type SeekPoint struct {
	SampleNum   uint64
	Offset      uint64
	SampleCount uint16
}

func decodeSeekTable(r *bitio.Reader, length int) (*SeekTable, error) {
	n := length / seekPointLength
	st := &SeekTable{Points: make([]SeekPoint, n)}
	for i := range st.Points {
		sampleNum, err := r.ReadRawUint(64)
		if err != nil {
			return nil, err
		}
		offset, err := r.ReadRawUint(64)
		if err != nil {
			return nil, err
		}
		count, err := r.ReadRawUint(16)
		if err != nil {
			return nil, err
		}
		st.Points[i] = SeekPoint{SampleNum: sampleNum, Offset: offset, SampleCount: uint16(count)}
	}
	return st, nil
}

func encodeSeekTable(w *bitio.Writer, st *SeekTable) error {
	for _, p := range st.Points {
		if err := w.WriteRawUint(p.SampleNum, 64); err != nil {
			return err
		}
		if err := w.WriteRawUint(p.Offset, 64); err != nil {
			return err
		}
		if err := w.WriteRawUint(uint64(p.SampleCount), 16); err != nil {
			return err
		}
	}
	return nil
}

// Sort orders the table's points by ascending sample number, placeholders
// last, and is idempotent: calling it twice produces the same order.
func (st *SeekTable) Sort() {
	sort.SliceStable(st.Points, func(i, j int) bool {
		a, b := st.Points[i].SampleNum, st.Points[j].SampleNum
		if a == PlaceholderPoint {
			return false
		}
		if b == PlaceholderPoint {
			return true
		}
		return a < b
	})
}

// Legal reports whether the table's non-placeholder points are strictly
// increasing by sample number, as required by the format.
func (st *SeekTable) Legal() error {
	var prev uint64
	hasPrev := false
	for _, p := range st.Points {
		if p.SampleNum == PlaceholderPoint {
			continue
		}
		if hasPrev && p.SampleNum <= prev {
			return fmt.Errorf("meta.SeekTable.Legal: sample number %d not strictly increasing after %d", p.SampleNum, prev)
		}
		prev = p.SampleNum
		hasPrev = true
	}
	return nil
}

// Resize grows or shrinks the table to exactly n points, padding with
// placeholder points or truncating from the end.
func (st *SeekTable) Resize(n int) {
	if n <= len(st.Points) {
		st.Points = st.Points[:n]
		return
	}
	for len(st.Points) < n {
		st.Points = append(st.Points, SeekPoint{SampleNum: PlaceholderPoint})
	}
}

// InsertPoint inserts p at index i, shifting later points back.
func (st *SeekTable) InsertPoint(i int, p SeekPoint) {
	st.Points = append(st.Points, SeekPoint{})
	copy(st.Points[i+1:], st.Points[i:])
	st.Points[i] = p
}

// DeletePoint removes the point at index i.
func (st *SeekTable) DeletePoint(i int) {
	st.Points = append(st.Points[:i], st.Points[i+1:]...)
}
