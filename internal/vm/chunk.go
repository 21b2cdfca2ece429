package vm

import "sort"

// Location marks where the instructions starting at Offset came from.
type Location struct {
	Offset int
	Line   int
	Column int
}

// Chunk represents a sequence of bytecode instructions
type Chunk struct {
	// Code is the bytecode instructions
	Code []byte

	// Constants pool - literals, names, nested functions
	Constants []Value

	// Locations is sparse: one entry per change of source position,
	// ordered by Offset.
	Locations []Location

	// Path is the source file name
	Path string
}

// NewChunk creates a new empty chunk
func NewChunk(path string) *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]Value, 0, 16),
		Path:      path,
	}
}

// Write adds a byte to the chunk, recording its source position if it
// differs from the previous instruction's.
func (c *Chunk) Write(b byte, line, col int) {
	if n := len(c.Locations); n == 0 || c.Locations[n-1].Line != line || c.Locations[n-1].Column != col {
		c.Locations = append(c.Locations, Location{Offset: len(c.Code), Line: line, Column: col})
	}
	c.Code = append(c.Code, b)
}

// Truncate drops all code from offset on, together with its locations.
func (c *Chunk) Truncate(offset int) {
	c.Code = c.Code[:offset]
	i := sort.Search(len(c.Locations), func(i int) bool { return c.Locations[i].Offset >= offset })
	c.Locations = c.Locations[:i]
}

// AddConstant adds a constant to the pool and returns its index
func (c *Chunk) AddConstant(value Value) int {
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// Location returns the source position of the instruction at offset.
func (c *Chunk) Location(offset int) (line, col int) {
	i := sort.Search(len(c.Locations), func(i int) bool { return c.Locations[i].Offset > offset })
	if i == 0 {
		return 0, 0
	}
	loc := c.Locations[i-1]
	return loc.Line, loc.Column
}

// ReadUint16 reads a big-endian operand at offset
func (c *Chunk) ReadUint16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

// Len returns the number of bytes in the chunk
func (c *Chunk) Len() int {
	return len(c.Code)
}
