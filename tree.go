package blk

import "strings"

// Field is a named leaf holding one typed value.
type Field struct {
	Name  string
	Value Value
}

// Block is a named container node holding ordered fields and ordered child
// blocks. The root block of a decoded file has an empty name. Fields and
// Blocks keep their file order; external printers may walk the exported
// slices directly.
type Block struct {
	Name   string
	Fields []Field
	Blocks []*Block
}

// NewBlock returns an empty block with the given name. Use an empty name
// for a root block.
func NewBlock(name string) *Block {
	return &Block{Name: name}
}

// Add appends a field to the block.
func (b *Block) Add(name string, v Value) *Block {
	b.Fields = append(b.Fields, Field{Name: name, Value: v})
	return b
}

// AddBlock appends a child block and returns it.
func (b *Block) AddBlock(name string) *Block {
	child := NewBlock(name)
	b.Blocks = append(b.Blocks, child)
	return child
}

// Sub resolves a slash-separated path of block names and returns the
// innermost block, e.g. "alpha/gamma".
func (b *Block) Sub(path string) (*Block, bool) {
	if path == "" {
		return b, true
	}
	cur := b
next:
	for _, part := range strings.Split(path, "/") {
		for _, child := range cur.Blocks {
			if child.Name == part {
				cur = child
				continue next
			}
		}
		return nil, false
	}
	return cur, true
}

// Get resolves a slash-separated path whose last element names a field and
// returns that field's value, e.g. "alpha/gamma/vec2i". When the same name
// repeats within a block the first occurrence wins.
func (b *Block) Get(path string) (Value, bool) {
	cur := b
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		var ok bool
		if cur, ok = b.Sub(path[:i]); !ok {
			return nil, false
		}
		path = path[i+1:]
	}
	for _, f := range cur.Fields {
		if f.Name == path {
			return f.Value, true
		}
	}
	return nil, false
}

// NumNodes returns the total number of blocks in the tree, including b.
func (b *Block) NumNodes() int {
	n := 1
	for _, child := range b.Blocks {
		n += child.NumNodes()
	}
	return n
}

// NumFields returns the total number of fields in the tree.
func (b *Block) NumFields() int {
	n := len(b.Fields)
	for _, child := range b.Blocks {
		n += child.NumFields()
	}
	return n
}

// Equal reports structural and value equality of two trees, including
// field and child ordering.
func (b *Block) Equal(other *Block) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Name != other.Name ||
		len(b.Fields) != len(other.Fields) ||
		len(b.Blocks) != len(other.Blocks) {
		return false
	}
	for i, f := range b.Fields {
		if f != other.Fields[i] {
			return false
		}
	}
	for i, child := range b.Blocks {
		if !child.Equal(other.Blocks[i]) {
			return false
		}
	}
	return true
}
