package meta

import (
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// Padding reserves Length bytes of zero-filled space for future metadata
// insertion without a full-file rewrite.
type Padding struct {
	Length int
}

func decodePadding(r *bitio.Reader, length int) (*Padding, error) {
	buf := make([]byte, length)
	if err := r.ReadByteBlockAlignedNoCRC(buf); err != nil {
		return nil, err
	}
	for _, b := range buf {
		if b != 0 {
			return nil, fmt.Errorf("meta.decodePadding: non-zero padding byte")
		}
	}
	return &Padding{Length: length}, nil
}

func encodePadding(w *bitio.Writer, p *Padding) error {
	return w.WriteByteBlock(make([]byte, p.Length))
}
