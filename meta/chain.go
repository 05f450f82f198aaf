// Chain implements a "load everything, mutate in memory, decide how to
// commit" metadata editor: the caller reads
// an entire metadata list into a Chain, mutates it with the typed helpers
// below (or the raw Blocks slice), then calls Write to persist it, either
// rewriting blocks in place (absorbing any size delta into trailing
// padding) or falling back to a full temp-file-and-rename rewrite.
package meta

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mewkiz/flac/internal/bitio"
)

// Chain is an in-memory, mutable metadata block list.
type Chain struct {
	Blocks []*Block
}

// ReadChain reads every metadata block from r (whose first four bytes,
// the "fLaC" marker, must already have been consumed) into a new Chain.
func ReadChain(r io.Reader) (*Chain, error) {
	br := bitio.NewReader(r)
	c := new(Chain)
	for {
		block, err := Decode(br)
		if err != nil {
			return nil, err
		}
		c.Blocks = append(c.Blocks, block)
		if block.Header.IsLast {
			break
		}
	}
	return c, nil
}

// StreamInfo returns the chain's (mandatory, first) StreamInfo block body.
func (c *Chain) StreamInfo() (*StreamInfo, error) {
	if len(c.Blocks) == 0 {
		return nil, fmt.Errorf("meta.Chain.StreamInfo: empty chain")
	}
	si, ok := c.Blocks[0].Body.(*StreamInfo)
	if !ok {
		return nil, fmt.Errorf("meta.Chain.StreamInfo: first block is not STREAMINFO")
	}
	return si, nil
}

// InsertBlock inserts block at position i (after the mandatory STREAMINFO
// block, i must be >= 1).
func (c *Chain) InsertBlock(i int, block *Block) error {
	if i == 0 {
		return fmt.Errorf("meta.Chain.InsertBlock: cannot insert before STREAMINFO")
	}
	c.Blocks = append(c.Blocks, nil)
	copy(c.Blocks[i+1:], c.Blocks[i:])
	c.Blocks[i] = block
	return nil
}

// DeleteBlock removes the block at position i (i must be >= 1; STREAMINFO
// cannot be deleted).
func (c *Chain) DeleteBlock(i int) error {
	if i == 0 {
		return fmt.Errorf("meta.Chain.DeleteBlock: cannot delete STREAMINFO")
	}
	c.Blocks = append(c.Blocks[:i], c.Blocks[i+1:]...)
	return nil
}

// SetBlock replaces the block at position i.
func (c *Chain) SetBlock(i int, block *Block) {
	c.Blocks[i] = block
}

// blockAt returns the first block of the given type, or nil.
func (c *Chain) blockAt(t BlockType) (int, *Block) {
	for i, b := range c.Blocks {
		if b.Header.Type == t {
			return i, b
		}
	}
	return -1, nil
}

// SeekTable returns the chain's seek table block body, creating and
// appending an empty one if none exists.
func (c *Chain) SeekTable() *SeekTable {
	if _, b := c.blockAt(TypeSeekTable); b != nil {
		return b.Body.(*SeekTable)
	}
	st := &SeekTable{}
	c.Blocks = append(c.Blocks, &Block{Header: BlockHeader{Type: TypeSeekTable}, Body: st})
	return st
}

// VorbisComment returns the chain's Vorbis comment block body, creating
// and appending an empty one (with the given vendor string) if none
// exists.
func (c *Chain) VorbisComment(defaultVendor string) *VorbisComment {
	if _, b := c.blockAt(TypeVorbisComment); b != nil {
		return b.Body.(*VorbisComment)
	}
	vc := &VorbisComment{Vendor: defaultVendor}
	c.Blocks = append(c.Blocks, &Block{Header: BlockHeader{Type: TypeVorbisComment}, Body: vc})
	return vc
}

// CueSheet returns the chain's cue sheet block body, or nil if none
// exists.
func (c *Chain) CueSheet() *CueSheet {
	if _, b := c.blockAt(TypeCueSheet); b != nil {
		return b.Body.(*CueSheet)
	}
	return nil
}

// Pictures returns every Picture block body in the chain.
func (c *Chain) Pictures() []*Picture {
	var pics []*Picture
	for _, b := range c.Blocks {
		if pic, ok := b.Body.(*Picture); ok {
			pics = append(pics, pic)
		}
	}
	return pics
}

// SetPictureData replaces the image bytes (and declared dimensions) of the
// first picture of the given type, or appends a new Picture block if none
// exists.
func (c *Chain) SetPictureData(typ PictureType, mime string, data []byte, width, height, depth, colors uint32) {
	for _, b := range c.Blocks {
		if pic, ok := b.Body.(*Picture); ok && pic.Type == typ {
			pic.MIME, pic.Data = mime, data
			pic.Width, pic.Height, pic.ColorDepth, pic.ColorCount = width, height, depth, colors
			return
		}
	}
	pic := &Picture{Type: typ, MIME: mime, Data: data, Width: width, Height: height, ColorDepth: depth, ColorCount: colors}
	c.Blocks = append(c.Blocks, &Block{Header: BlockHeader{Type: TypePicture}, Body: pic})
}

// normalizeIsLast sets every block's IsLast flag so exactly the final
// block carries it, leaving the rest false.
func (c *Chain) normalizeIsLast() {
	for i, b := range c.Blocks {
		b.Header.IsLast = i == len(c.Blocks)-1
	}
}

// encodedSize returns the total byte length (4-byte header plus body) of
// block once encoded.
func encodedSize(block *Block) (int, error) {
	n, err := bodyLength(block.Body)
	if err != nil {
		return 0, err
	}
	return 4 + n, nil
}

// Write serializes the chain's blocks to w, in order, fixing up IsLast
// flags. This is the "full rewrite" path: the caller is expected to target
// either a fresh file or one opened for truncate-and-replace.
func (c *Chain) Write(w io.Writer) error {
	c.normalizeIsLast()
	bw := bitio.NewWriter()
	for _, block := range c.Blocks {
		if err := Encode(bw, block); err != nil {
			return err
		}
		if err := bw.ZeroPadToByteBoundary(); err != nil {
			return err
		}
	}
	buf, _ := bw.Buffer()
	_, err := w.Write(buf)
	return err
}

// WriteFile commits the chain to path using a temp-file-and-rename
// pattern: the new metadata (and the audio data copied verbatim from
// audio, which follows the old metadata in the original file) is written
// to a sibling temp file, which then atomically replaces path. This is
// the fallback used whenever an in-place rewrite (same total metadata
// length, or enough trailing padding to absorb the difference) isn't
// possible.
func (c *Chain) WriteFile(path string, audio io.Reader) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".flac-meta-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString("fLaC"); err != nil {
		tmp.Close()
		return err
	}
	if err := c.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(tmp, audio); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// FitsInPlace reports whether rewriting the chain's metadata requires
// exactly the same number of bytes the original file reserved for it
// (oldMetaLen, the "fLaC" marker excluded), meaning an in-place rewrite of
// just the metadata region is possible without touching the audio frames
// that follow. A PADDING block may be grown or shrunk by the caller first
// to make this true; see PadToFit.
func (c *Chain) FitsInPlace(oldMetaLen int) (bool, error) {
	total := 0
	for _, b := range c.Blocks {
		n, err := encodedSize(b)
		if err != nil {
			return false, err
		}
		total += n
	}
	return total == oldMetaLen, nil
}

// PadToFit grows or shrinks the chain's first PADDING block (appending
// one if none exists and growth is needed) so that FitsInPlace(oldMetaLen)
// becomes true, iff oldMetaLen is large enough to hold every other block.
// It returns false if oldMetaLen is too small and a full rewrite is
// unavoidable.
func (c *Chain) PadToFit(oldMetaLen int) (bool, error) {
	var padBlock *Block
	nonPadTotal := 0
	for _, b := range c.Blocks {
		if b.Header.Type == TypePadding && padBlock == nil {
			padBlock = b
			continue
		}
		n, err := encodedSize(b)
		if err != nil {
			return false, err
		}
		nonPadTotal += n
	}
	need := oldMetaLen - nonPadTotal
	if padBlock == nil {
		if need < 4 {
			return false, nil
		}
		padBlock = &Block{Header: BlockHeader{Type: TypePadding}, Body: &Padding{Length: need - 4}}
		c.Blocks = append(c.Blocks, padBlock)
		return true, nil
	}
	if need < 4 {
		return false, nil
	}
	padBlock.Body.(*Padding).Length = need - 4
	return true, nil
}
