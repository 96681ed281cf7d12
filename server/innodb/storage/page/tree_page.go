package page

import (
	"encoding/binary"

	"github.com/pingcap/errors"
)

// NodeType distinguishes internal from leaf B+Tree node pages.
type NodeType uint32

const (
	InvalidNode NodeType = iota
	InternalNode
	LeafNode
)

// HeaderSize is the shared 24-byte header every B+Tree node page carries:
// page_type, lsn, size, max_size, parent_page_id, page_id.
const HeaderSize = 24

// LeafHeaderSize extends HeaderSize with the leaf's next_page_id link.
const LeafHeaderSize = HeaderSize + 4

const (
	offPageType      = 0
	offLSN           = 4
	offSize          = 8
	offMaxSize       = 12
	offParentPageID  = 16
	offPageID        = 20
	offNextPageID    = 24 // leaf only
)

// ErrCorruptHeader is the value the B+Tree panics with when a fetched
// page's header does not carry the node type (leaf or internal) expected.
var ErrCorruptHeader = errors.New("storage/page: corrupt b+tree page header")

// TreePage wraps a raw page buffer with accessors for the shared header
// fields. InternalPage and LeafPage embed it and add their slotted arrays.
type TreePage struct {
	Raw *[Size]byte
}

func (p TreePage) NodeType() NodeType {
	return NodeType(binary.LittleEndian.Uint32(p.Raw[offPageType:]))
}

func (p TreePage) SetNodeType(t NodeType) {
	binary.LittleEndian.PutUint32(p.Raw[offPageType:], uint32(t))
}

func (p TreePage) IsLeaf() bool {
	return p.NodeType() == LeafNode
}

func (p TreePage) LSN() uint32 {
	return binary.LittleEndian.Uint32(p.Raw[offLSN:])
}

func (p TreePage) SetLSN(lsn uint32) {
	binary.LittleEndian.PutUint32(p.Raw[offLSN:], lsn)
}

func (p TreePage) Size() int32 {
	return int32(binary.LittleEndian.Uint32(p.Raw[offSize:]))
}

func (p TreePage) SetSize(size int32) {
	binary.LittleEndian.PutUint32(p.Raw[offSize:], uint32(size))
}

func (p TreePage) IncreaseSize(delta int32) {
	p.SetSize(p.Size() + delta)
}

func (p TreePage) MaxSize() int32 {
	return int32(binary.LittleEndian.Uint32(p.Raw[offMaxSize:]))
}

func (p TreePage) SetMaxSize(maxSize int32) {
	binary.LittleEndian.PutUint32(p.Raw[offMaxSize:], uint32(maxSize))
}

func (p TreePage) ParentPageID() int32 {
	return int32(binary.LittleEndian.Uint32(p.Raw[offParentPageID:]))
}

func (p TreePage) SetParentPageID(id int32) {
	binary.LittleEndian.PutUint32(p.Raw[offParentPageID:], uint32(id))
}

func (p TreePage) PageID() int32 {
	return int32(binary.LittleEndian.Uint32(p.Raw[offPageID:]))
}

func (p TreePage) SetPageID(id int32) {
	binary.LittleEndian.PutUint32(p.Raw[offPageID:], uint32(id))
}

// IsRootInvariantExempt reports whether this node's size may legally sit
// below the minimum size threshold because it is the tree's root.
func (p TreePage) IsRootInvariantExempt() bool {
	return p.ParentPageID() == InvalidPageID
}
