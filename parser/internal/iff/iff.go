// Package iff splits the chunked container layout used by Amiga-born formats into its
// chunks. Each chunk is a four character identifier and a big-endian length.
package iff

import (
	"github.com/QEStudios/TrackerLoader/cursor"
)

// Chunk is one chunk of a file.
type Chunk struct {
	ID     string
	Offset int64 // absolute position of the chunk data
	Data   *cursor.Cursor
}

// Chunks is the list of chunks in file order.
type Chunks []Chunk

// Read collects chunks until the end of c. A chunk whose length runs past the end of the
// data is kept with what is there and truncated is set. Trailing bytes too short for a
// chunk header are ignored.
func Read(c *cursor.Cursor) (chunks Chunks, truncated bool) {
	for c.CanRead(8) {
		id, _ := c.ReadBytes(4)
		length := int(c.ReadUint32BE())
		if length < 0 || length > c.Remaining() {
			truncated = true
			length = c.Remaining()
		}
		offset := c.AbsolutePosition()
		chunks = append(chunks, Chunk{ID: string(id), Offset: offset, Data: c.ReadChunk(length)})
	}
	return chunks, truncated
}

// Get returns the first chunk with the given id.
func (cs Chunks) Get(id string) (Chunk, bool) {
	for _, ch := range cs {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chunk{}, false
}

// All returns every chunk with the given id, in file order.
func (cs Chunks) All(id string) []Chunk {
	var out []Chunk
	for _, ch := range cs {
		if ch.ID == id {
			out = append(out, ch)
		}
	}
	return out
}
