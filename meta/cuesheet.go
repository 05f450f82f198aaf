package meta

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// CueSheet describes track and index layout, compatible with Red Book
// CD-DA discs as well as general-purpose cueing.
type CueSheet struct {
	// MCN is the media catalog number, ASCII printable 0x20-0x7E, NUL
	// padded to 128 bytes on the wire.
	MCN string
	// LeadInSampleCount has meaning only for CD-DA cue sheets.
	LeadInSampleCount uint64
	IsCompactDisc     bool
	Tracks            []CueSheetTrack
}

// CueSheetTrack is one track (or, as the last entry, the mandatory
// lead-out) of a CueSheet.
type CueSheetTrack struct {
	Offset         uint64
	TrackNum       uint8
	ISRC           string
	IsAudio        bool
	HasPreEmphasis bool
	TrackIndexes   []CueSheetTrackIndex
}

// CueSheetTrackIndex is one index point within a CueSheetTrack.
type CueSheetTrackIndex struct {
	Offset        uint64
	IndexPointNum uint8
}

func decodeCueSheet(r *bitio.Reader) (*CueSheet, error) {
	cs := new(CueSheet)
	mcn := make([]byte, 128)
	if err := r.ReadByteBlockAlignedNoCRC(mcn); err != nil {
		return nil, err
	}
	cs.MCN = stringFromNulPadded(mcn)

	v, err := r.ReadRawUint(64)
	if err != nil {
		return nil, err
	}
	cs.LeadInSampleCount = v

	isCD, err := r.ReadRawUint(1)
	if err != nil {
		return nil, err
	}
	cs.IsCompactDisc = isCD != 0

	reserved, err := r.ReadRawUint(7)
	if err != nil {
		return nil, err
	}
	if reserved != 0 {
		return nil, errReservedNotZero
	}
	if err := skipZeroBytes(r, 258); err != nil {
		return nil, err
	}

	trackCount, err := r.ReadRawUint(8)
	if err != nil {
		return nil, err
	}
	cs.Tracks = make([]CueSheetTrack, trackCount)
	for i := range cs.Tracks {
		track := &cs.Tracks[i]
		off, err := r.ReadRawUint(64)
		if err != nil {
			return nil, err
		}
		track.Offset = off

		num, err := r.ReadRawUint(8)
		if err != nil {
			return nil, err
		}
		track.TrackNum = uint8(num)

		isrc := make([]byte, 12)
		if err := r.ReadByteBlockAlignedNoCRC(isrc); err != nil {
			return nil, err
		}
		track.ISRC = stringFromNulPadded(isrc)

		flags, err := r.ReadRawUint(1)
		if err != nil {
			return nil, err
		}
		track.IsAudio = flags == 0

		preEmph, err := r.ReadRawUint(1)
		if err != nil {
			return nil, err
		}
		track.HasPreEmphasis = preEmph != 0

		reserved, err := r.ReadRawUint(6)
		if err != nil {
			return nil, err
		}
		if reserved != 0 {
			return nil, errReservedNotZero
		}
		if err := skipZeroBytes(r, 13); err != nil {
			return nil, err
		}

		idxCount, err := r.ReadRawUint(8)
		if err != nil {
			return nil, err
		}
		if idxCount > 0 {
			track.TrackIndexes = make([]CueSheetTrackIndex, idxCount)
		}
		for j := range track.TrackIndexes {
			idx := &track.TrackIndexes[j]
			off, err := r.ReadRawUint(64)
			if err != nil {
				return nil, err
			}
			idx.Offset = off
			num, err := r.ReadRawUint(8)
			if err != nil {
				return nil, err
			}
			idx.IndexPointNum = uint8(num)
			if err := skipZeroBytes(r, 3); err != nil {
				return nil, err
			}
		}
	}
	return cs, nil
}

var errReservedNotZero = fmt.Errorf("meta: reserved bits must be zero")

func stringFromNulPadded(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i != -1 {
		buf = buf[:i]
	}
	return string(buf)
}

func skipZeroBytes(r *bitio.Reader, n int) error {
	buf := make([]byte, n)
	if err := r.ReadByteBlockAlignedNoCRC(buf); err != nil {
		return err
	}
	for _, b := range buf {
		if b != 0 {
			return errReservedNotZero
		}
	}
	return nil
}

func encodeCueSheet(w *bitio.Writer, cs *CueSheet) error {
	if err := w.WriteByteBlock(nulPad(cs.MCN, 128)); err != nil {
		return err
	}
	if err := w.WriteRawUint(cs.LeadInSampleCount, 64); err != nil {
		return err
	}
	isCD := uint64(0)
	if cs.IsCompactDisc {
		isCD = 1
	}
	if err := w.WriteRawUint(isCD, 1); err != nil {
		return err
	}
	if err := w.WriteZeroes(7); err != nil {
		return err
	}
	if err := w.WriteByteBlock(make([]byte, 258)); err != nil {
		return err
	}
	if err := w.WriteRawUint(uint64(len(cs.Tracks)), 8); err != nil {
		return err
	}
	for _, track := range cs.Tracks {
		if err := w.WriteRawUint(track.Offset, 64); err != nil {
			return err
		}
		if err := w.WriteRawUint(uint64(track.TrackNum), 8); err != nil {
			return err
		}
		if err := w.WriteByteBlock(nulPad(track.ISRC, 12)); err != nil {
			return err
		}
		isAudio := uint64(0)
		if !track.IsAudio {
			isAudio = 1
		}
		if err := w.WriteRawUint(isAudio, 1); err != nil {
			return err
		}
		preEmph := uint64(0)
		if track.HasPreEmphasis {
			preEmph = 1
		}
		if err := w.WriteRawUint(preEmph, 1); err != nil {
			return err
		}
		if err := w.WriteZeroes(6); err != nil {
			return err
		}
		if err := w.WriteByteBlock(make([]byte, 13)); err != nil {
			return err
		}
		if err := w.WriteRawUint(uint64(len(track.TrackIndexes)), 8); err != nil {
			return err
		}
		for _, idx := range track.TrackIndexes {
			if err := w.WriteRawUint(idx.Offset, 64); err != nil {
				return err
			}
			if err := w.WriteRawUint(uint64(idx.IndexPointNum), 8); err != nil {
				return err
			}
			if err := w.WriteByteBlock(make([]byte, 3)); err != nil {
				return err
			}
		}
	}
	return nil
}

func nulPad(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return buf
}

func cueSheetLength(cs *CueSheet) int {
	n := 128 + 8 + 1 + 258 + 1
	for _, t := range cs.Tracks {
		n += 8 + 1 + 12 + 1 + 13 + 1
		n += len(t.TrackIndexes) * (8 + 1 + 3)
	}
	return n
}

// Legal enforces the standalone/CD-DA legality rules from the format: a
// CD-DA cue sheet requires a >= 2-second lead-in, 588-sample-aligned track
// and index offsets, track numbers in [1,99] plus lead-out 170; a
// non-CD-DA cue sheet's lead-out must be numbered 255 and carries no such
// alignment constraint.
func (cs *CueSheet) Legal() error {
	if len(cs.Tracks) < 1 {
		return fmt.Errorf("meta.CueSheet.Legal: at least one (lead-out) track required")
	}
	if cs.IsCompactDisc {
		const twoSeconds = 2 * 44100
		if cs.LeadInSampleCount < twoSeconds {
			return fmt.Errorf("meta.CueSheet.Legal: CD-DA lead-in must be at least 2 seconds")
		}
	} else if cs.LeadInSampleCount != 0 {
		return fmt.Errorf("meta.CueSheet.Legal: lead-in must be 0 for non-CD-DA cue sheets")
	}
	for i, t := range cs.Tracks {
		isLeadOut := i == len(cs.Tracks)-1
		if t.TrackNum == 0 {
			return fmt.Errorf("meta.CueSheet.Legal: track number 0 not allowed")
		}
		if cs.IsCompactDisc {
			if t.Offset%588 != 0 {
				return fmt.Errorf("meta.CueSheet.Legal: CD-DA track offset must be a multiple of 588 samples")
			}
			if isLeadOut {
				if t.TrackNum != 170 {
					return fmt.Errorf("meta.CueSheet.Legal: CD-DA lead-out track number must be 170")
				}
			} else if t.TrackNum > 99 {
				return fmt.Errorf("meta.CueSheet.Legal: CD-DA track number must be <= 99")
			}
		} else if isLeadOut && t.TrackNum != 255 {
			return fmt.Errorf("meta.CueSheet.Legal: non-CD-DA lead-out track number must be 255")
		}
		if isLeadOut {
			if len(t.TrackIndexes) != 0 {
				return fmt.Errorf("meta.CueSheet.Legal: lead-out track must have zero index points")
			}
			continue
		}
		if len(t.TrackIndexes) < 1 {
			return fmt.Errorf("meta.CueSheet.Legal: track %d must have at least one index point", t.TrackNum)
		}
		if cs.IsCompactDisc {
			for _, idx := range t.TrackIndexes {
				if idx.Offset%588 != 0 {
					return fmt.Errorf("meta.CueSheet.Legal: CD-DA index offset must be a multiple of 588 samples")
				}
			}
		}
	}
	return nil
}

// InsertTrack inserts track at index i.
func (cs *CueSheet) InsertTrack(i int, track CueSheetTrack) {
	cs.Tracks = append(cs.Tracks, CueSheetTrack{})
	copy(cs.Tracks[i+1:], cs.Tracks[i:])
	cs.Tracks[i] = track
}

// DeleteTrack removes the track at index i.
func (cs *CueSheet) DeleteTrack(i int) {
	cs.Tracks = append(cs.Tracks[:i], cs.Tracks[i+1:]...)
}

// InsertIndex inserts idx into track t at position i.
func (t *CueSheetTrack) InsertIndex(i int, idx CueSheetTrackIndex) {
	t.TrackIndexes = append(t.TrackIndexes, CueSheetTrackIndex{})
	copy(t.TrackIndexes[i+1:], t.TrackIndexes[i:])
	t.TrackIndexes[i] = idx
}

// DeleteIndex removes the index point at position i.
func (t *CueSheetTrack) DeleteIndex(i int) {
	t.TrackIndexes = append(t.TrackIndexes[:i], t.TrackIndexes[i+1:]...)
}
