// Package meta implements FLAC metadata blocks: the block header, the
// object model for every standard block type, and a chain editor for
// mutating a stationary file's metadata list.

package meta

import (
	"fmt"

	"github.com/mewkiz/flac/internal/bitio"
)

// BlockType identifies the kind of body a metadata Block carries.
type BlockType uint8

// Metadata block types.
const (
	TypeStreamInfo BlockType = iota
	TypePadding
	TypeApplication
	TypeSeekTable
	TypeVorbisComment
	TypeCueSheet
	TypePicture
	// TypeUnknown is not a wire value; it marks a Block whose on-disk type
	// code (in [7, 126]) this package doesn't model, preserved as opaque
	// bytes so a chain can round-trip a file without losing blocks it
	// doesn't understand.
	TypeUnknown BlockType = 127
)

func (t BlockType) String() string {
	switch t {
	case TypeStreamInfo:
		return "stream info"
	case TypePadding:
		return "padding"
	case TypeApplication:
		return "application"
	case TypeSeekTable:
		return "seek table"
	case TypeVorbisComment:
		return "vorbis comment"
	case TypeCueSheet:
		return "cue sheet"
	case TypePicture:
		return "picture"
	default:
		return "unknown"
	}
}

// BlockHeader precedes every metadata block's body: whether it is the last
// metadata block before the audio frames, its type, and the byte length of
// the body that follows.
type BlockHeader struct {
	IsLast    bool
	Type      BlockType
	Length    int
	wireType  uint8 // original on-disk type code, preserved for TypeUnknown round-trip.
}

// ErrReservedBlockType is returned when a block header names a type code
// reserved by the format (7-126) or the invalid marker 127.
var ErrReservedBlockType = fmt.Errorf("meta: reserved or invalid block type")

// DecodeBlockHeader reads a 32-bit metadata block header from r.
func DecodeBlockHeader(r *bitio.Reader) (BlockHeader, error) {
	var hdr BlockHeader
	isLast, err := r.ReadRawUint(1)
	if err != nil {
		return hdr, err
	}
	hdr.IsLast = isLast != 0

	wireType, err := r.ReadRawUint(7)
	if err != nil {
		return hdr, err
	}
	hdr.wireType = uint8(wireType)
	if wireType == 127 {
		return hdr, fmt.Errorf("%w: invalid block type 127", ErrReservedBlockType)
	}
	if wireType <= 6 {
		hdr.Type = BlockType(wireType)
	} else {
		hdr.Type = TypeUnknown
	}

	length, err := r.ReadRawUint(24)
	if err != nil {
		return hdr, err
	}
	hdr.Length = int(length)
	return hdr, nil
}

// EncodeBlockHeader writes hdr's 32-bit wire form to w.
func EncodeBlockHeader(w *bitio.Writer, hdr BlockHeader) error {
	last := uint64(0)
	if hdr.IsLast {
		last = 1
	}
	if err := w.WriteRawUint(last, 1); err != nil {
		return err
	}
	wireType := hdr.wireType
	if hdr.Type != TypeUnknown {
		wireType = uint8(hdr.Type)
	}
	if err := w.WriteRawUint(uint64(wireType), 7); err != nil {
		return err
	}
	return w.WriteRawUint(uint64(hdr.Length), 24)
}

// Block is a metadata block: a header plus a typed body. Body holds one of
// *StreamInfo, *Padding, *Application, *SeekTable, *VorbisComment,
// *CueSheet, *Picture or *Unknown, matching Header.Type.
type Block struct {
	Header BlockHeader
	Body   interface{}
}

// Decode reads one metadata block (header and body) from r.
func Decode(r *bitio.Reader) (*Block, error) {
	hdr, err := DecodeBlockHeader(r)
	if err != nil {
		return nil, err
	}
	block := &Block{Header: hdr}
	switch hdr.Type {
	case TypeStreamInfo:
		block.Body, err = decodeStreamInfo(r)
	case TypePadding:
		block.Body, err = decodePadding(r, hdr.Length)
	case TypeApplication:
		block.Body, err = decodeApplication(r, hdr.Length)
	case TypeSeekTable:
		block.Body, err = decodeSeekTable(r, hdr.Length)
	case TypeVorbisComment:
		block.Body, err = decodeVorbisComment(r)
	case TypeCueSheet:
		block.Body, err = decodeCueSheet(r)
	case TypePicture:
		block.Body, err = decodePicture(r)
	default:
		block.Body, err = decodeUnknown(r, hdr.Length)
	}
	if err != nil {
		return nil, err
	}
	return block, nil
}

// Encode writes block's header and body to w. block.Header.Length is
// recomputed from the body before the header is written, so callers need
// not keep it in sync by hand.
func Encode(w *bitio.Writer, block *Block) error {
	length, err := bodyLength(block.Body)
	if err != nil {
		return err
	}
	hdr := block.Header
	hdr.Length = length
	if err := EncodeBlockHeader(w, hdr); err != nil {
		return err
	}
	switch body := block.Body.(type) {
	case *StreamInfo:
		return encodeStreamInfo(w, body)
	case *Padding:
		return encodePadding(w, body)
	case *Application:
		return encodeApplication(w, body)
	case *SeekTable:
		return encodeSeekTable(w, body)
	case *VorbisComment:
		return encodeVorbisComment(w, body)
	case *CueSheet:
		return encodeCueSheet(w, body)
	case *Picture:
		return encodePicture(w, body)
	case *Unknown:
		return w.WriteByteBlock(body.Data)
	default:
		return fmt.Errorf("meta.Encode: unsupported block body type %T", block.Body)
	}
}

// bodyLength returns the encoded byte length of body, used to fill in the
// block header's Length field before encoding.
func bodyLength(body interface{}) (int, error) {
	switch b := body.(type) {
	case *StreamInfo:
		return streamInfoLength, nil
	case *Padding:
		return b.Length, nil
	case *Application:
		return 4 + len(b.Data), nil
	case *SeekTable:
		return len(b.Points) * seekPointLength, nil
	case *VorbisComment:
		return vorbisCommentLength(b), nil
	case *CueSheet:
		return cueSheetLength(b), nil
	case *Picture:
		return pictureLength(b), nil
	case *Unknown:
		return len(b.Data), nil
	default:
		return 0, fmt.Errorf("meta.bodyLength: unsupported block body type %T", body)
	}
}

// Unknown preserves the raw bytes of a metadata block whose type code this
// package doesn't model (reserved codes 7-126), so a Chain can round-trip
// a file without discarding blocks it doesn't understand.
type Unknown struct {
	Data []byte
}

func decodeUnknown(r *bitio.Reader, length int) (*Unknown, error) {
	data := make([]byte, length)
	if err := r.ReadByteBlockAlignedNoCRC(data); err != nil {
		return nil, err
	}
	return &Unknown{Data: data}, nil
}
