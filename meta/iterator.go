package meta

import "fmt"

// Iterator is a cursor over a Chain's blocks, mirroring the "simple
// iterator" of libFLAC's simple iterator: it walks the in-memory block list
// forward and backward without owning the commit strategy (that's
// Chain.Write/WriteFile).
type Iterator struct {
	chain *Chain
	pos   int
}

// NewIterator returns an Iterator positioned at the first block (always
// STREAMINFO) of chain.
func NewIterator(chain *Chain) *Iterator {
	return &Iterator{chain: chain, pos: 0}
}

// Next advances the cursor one block forward, reporting whether it moved.
func (it *Iterator) Next() bool {
	if it.pos+1 >= len(it.chain.Blocks) {
		return false
	}
	it.pos++
	return true
}

// Prev moves the cursor one block backward, reporting whether it moved.
func (it *Iterator) Prev() bool {
	if it.pos == 0 {
		return false
	}
	it.pos--
	return true
}

// Block returns the block currently under the cursor.
func (it *Iterator) Block() *Block {
	return it.chain.Blocks[it.pos]
}

// BlockType returns the type of the block currently under the cursor.
func (it *Iterator) BlockType() BlockType {
	return it.chain.Blocks[it.pos].Header.Type
}

// ApplicationID returns the 4-byte application ID of the block under the
// cursor, which must be an Application block.
func (it *Iterator) ApplicationID() ([4]byte, error) {
	app, ok := it.Block().Body.(*Application)
	if !ok {
		return [4]byte{}, fmt.Errorf("meta.Iterator.ApplicationID: block at cursor is not an APPLICATION block")
	}
	return app.ID, nil
}

// SetBlock replaces the block under the cursor.
func (it *Iterator) SetBlock(block *Block) error {
	if it.pos == 0 && block.Header.Type != TypeStreamInfo {
		return fmt.Errorf("meta.Iterator.SetBlock: cannot replace STREAMINFO with a block of type %s", block.Header.Type)
	}
	it.chain.Blocks[it.pos] = block
	return nil
}

// InsertAfter inserts block immediately after the cursor, leaving the
// cursor on the original block.
func (it *Iterator) InsertAfter(block *Block) error {
	return it.chain.InsertBlock(it.pos+1, block)
}

// Delete removes the block under the cursor and moves the cursor to the
// following block (or, if it was the last, the new last block).
func (it *Iterator) Delete() error {
	if err := it.chain.DeleteBlock(it.pos); err != nil {
		return err
	}
	if it.pos >= len(it.chain.Blocks) {
		it.pos = len(it.chain.Blocks) - 1
	}
	return nil
}
