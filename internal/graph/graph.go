// Package graph implements the sparse, index-addressable directed multigraph
// of spec.md §3/§4.5: four parallel persisted vectors (from, to, from_meta,
// to_meta) with intrusive, singly-linked outgoing/incoming edge lists and a
// free-list of reusable slots threaded through from_meta. Nodes and edges
// share one slot space (both come off the same free list), so a fifth
// vector records each live slot's role; without it a node's from[i] head
// pointer and an edge's from[i] origin reference are indistinguishable by
// sign alone once the node has at least one outgoing edge.
package graph

import (
	"fmt"

	"github.com/agdb-go/agdb/internal/storage/container"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

func encodeI64(v int64) []byte { return serialize.EncodeI64(v) }
func decodeI64(b []byte) int64 { return serialize.I64(b) }

const slotFree = 0
const slotNode = 1
const slotEdge = 2

const headerSize = 8*5 + 8 + 8 // five vector indices, node count, edge count

// Graph is the persisted multigraph. All five backing vectors and this
// header are individually addressable records inside the same record.Store
// as everything else the database holds, so the whole graph serialises by
// serialising five vectors (spec.md §9).
type Graph struct {
	store *record.Store

	header int64

	from     *container.Vector[int64]
	to       *container.Vector[int64]
	fromMeta *container.Vector[int64]
	toMeta   *container.Vector[int64]
	kind     *container.Vector[int64]

	nodeCount int64
	edgeCount int64
}

// New creates a fresh, empty graph (slot 0 reserved as the free-list head).
func New(store *record.Store) (*Graph, error) {
	from, err := container.NewVector[int64](store, 8, encodeI64, decodeI64)
	if err != nil {
		return nil, fmt.Errorf("graph: new: %w", err)
	}
	to, err := container.NewVector[int64](store, 8, encodeI64, decodeI64)
	if err != nil {
		return nil, fmt.Errorf("graph: new: %w", err)
	}
	fromMeta, err := container.NewVector[int64](store, 8, encodeI64, decodeI64)
	if err != nil {
		return nil, fmt.Errorf("graph: new: %w", err)
	}
	toMeta, err := container.NewVector[int64](store, 8, encodeI64, decodeI64)
	if err != nil {
		return nil, fmt.Errorf("graph: new: %w", err)
	}
	kind, err := container.NewVector[int64](store, 8, encodeI64, decodeI64)
	if err != nil {
		return nil, fmt.Errorf("graph: new: %w", err)
	}

	g := &Graph{store: store, from: from, to: to, fromMeta: fromMeta, toMeta: toMeta, kind: kind}
	// Reserve slot 0.
	if err := g.from.Push(0); err != nil {
		return nil, err
	}
	if err := g.to.Push(0); err != nil {
		return nil, err
	}
	if err := g.fromMeta.Push(0); err != nil {
		return nil, err
	}
	if err := g.toMeta.Push(0); err != nil {
		return nil, err
	}
	if err := g.kind.Push(slotFree); err != nil {
		return nil, err
	}

	idx, err := store.Insert(g.encodeHeader())
	if err != nil {
		return nil, fmt.Errorf("graph: new: persist header: %w", err)
	}
	g.header = idx
	return g, nil
}

// Open attaches to an existing graph by its header's logical index.
func Open(store *record.Store, headerIndex int64) (*Graph, error) {
	raw, err := store.Value(headerIndex)
	if err != nil {
		return nil, fmt.Errorf("graph: open %d: %w", headerIndex, err)
	}
	g := &Graph{store: store, header: headerIndex}
	fromIdx := serialize.I64(raw)
	toIdx := serialize.I64(raw[8:])
	fromMetaIdx := serialize.I64(raw[16:])
	toMetaIdx := serialize.I64(raw[24:])
	kindIdx := serialize.I64(raw[32:])
	g.nodeCount = serialize.I64(raw[40:])
	g.edgeCount = serialize.I64(raw[48:])

	if g.from, err = container.OpenVector[int64](store, fromIdx, 8, encodeI64, decodeI64); err != nil {
		return nil, fmt.Errorf("graph: open %d: %w", headerIndex, err)
	}
	if g.to, err = container.OpenVector[int64](store, toIdx, 8, encodeI64, decodeI64); err != nil {
		return nil, fmt.Errorf("graph: open %d: %w", headerIndex, err)
	}
	if g.fromMeta, err = container.OpenVector[int64](store, fromMetaIdx, 8, encodeI64, decodeI64); err != nil {
		return nil, fmt.Errorf("graph: open %d: %w", headerIndex, err)
	}
	if g.toMeta, err = container.OpenVector[int64](store, toMetaIdx, 8, encodeI64, decodeI64); err != nil {
		return nil, fmt.Errorf("graph: open %d: %w", headerIndex, err)
	}
	if g.kind, err = container.OpenVector[int64](store, kindIdx, 8, encodeI64, decodeI64); err != nil {
		return nil, fmt.Errorf("graph: open %d: %w", headerIndex, err)
	}
	return g, nil
}

// HeaderIndex returns the logical index of the graph's own header record,
// for callers (agdb.go) that persist it alongside the value catalogue.
func (g *Graph) HeaderIndex() int64 { return g.header }

func (g *Graph) encodeHeader() []byte {
	b := make([]byte, headerSize)
	serialize.PutI64(b, g.from.Index())
	serialize.PutI64(b[8:], g.to.Index())
	serialize.PutI64(b[16:], g.fromMeta.Index())
	serialize.PutI64(b[24:], g.toMeta.Index())
	serialize.PutI64(b[32:], g.kind.Index())
	serialize.PutI64(b[40:], g.nodeCount)
	serialize.PutI64(b[48:], g.edgeCount)
	return b
}

func (g *Graph) persistHeader() error {
	_, err := g.store.Replace(g.header, g.encodeHeader())
	return err
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int64 { return g.nodeCount }

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int64 { return g.edgeCount }

// capacity returns the current slot count (including reserved slot 0).
func (g *Graph) capacity() int64 { return g.from.Len() }

// allocateSlot pops a slot off the free list (threaded through fromMeta,
// spec.md §4.5 "Allocate slot"), or grows all five vectors by one.
func (g *Graph) allocateSlot() (int64, error) {
	head, err := g.fromMeta.Get(0)
	if err != nil {
		return 0, err
	}
	if head != 0 {
		encoded, err := g.fromMeta.Get(head)
		if err != nil {
			return 0, err
		}
		next := -(encoded + 1)
		if err := g.fromMeta.Set(0, next); err != nil {
			return 0, err
		}
		return head, nil
	}

	idx := g.capacity()
	if err := g.from.Push(0); err != nil {
		return 0, err
	}
	if err := g.to.Push(0); err != nil {
		return 0, err
	}
	if err := g.fromMeta.Push(0); err != nil {
		return 0, err
	}
	if err := g.toMeta.Push(0); err != nil {
		return 0, err
	}
	if err := g.kind.Push(slotFree); err != nil {
		return 0, err
	}
	return idx, nil
}

// freeSlot pushes i back onto the free list, encoding the next-pointer as
// -(next+1) so from_meta[i] < 0 always holds for a freed slot (spec.md §3
// invariant 2), even when the list terminates (next == 0).
func (g *Graph) freeSlot(i int64) error {
	head, err := g.fromMeta.Get(0)
	if err != nil {
		return err
	}
	if err := g.fromMeta.Set(i, -(head + 1)); err != nil {
		return err
	}
	if err := g.from.Set(i, 0); err != nil {
		return err
	}
	if err := g.to.Set(i, 0); err != nil {
		return err
	}
	if err := g.toMeta.Set(i, 0); err != nil {
		return err
	}
	if err := g.kind.Set(i, slotFree); err != nil {
		return err
	}
	return g.fromMeta.Set(0, i)
}

// IsNode reports whether i addresses a live node.
func (g *Graph) IsNode(i int64) (bool, error) {
	if i <= 0 || i >= g.capacity() {
		return false, nil
	}
	k, err := g.kind.Get(i)
	if err != nil {
		return false, err
	}
	return k == slotNode, nil
}

// IsEdge reports whether externalID (a negative id) addresses a live edge.
func (g *Graph) IsEdge(externalID int64) (bool, error) {
	if externalID >= 0 {
		return false, nil
	}
	e := -externalID
	if e <= 0 || e >= g.capacity() {
		return false, nil
	}
	k, err := g.kind.Get(e)
	if err != nil {
		return false, err
	}
	return k == slotEdge, nil
}

// InsertNode allocates a node slot and returns its positive id.
func (g *Graph) InsertNode() (int64, error) {
	i, err := g.allocateSlot()
	if err != nil {
		return 0, err
	}
	if err := g.from.Set(i, 0); err != nil {
		return 0, err
	}
	if err := g.to.Set(i, 0); err != nil {
		return 0, err
	}
	if err := g.fromMeta.Set(i, 0); err != nil {
		return 0, err
	}
	if err := g.toMeta.Set(i, 0); err != nil {
		return 0, err
	}
	if err := g.kind.Set(i, slotNode); err != nil {
		return 0, err
	}
	g.nodeCount++
	return i, g.persistHeader()
}

// InsertEdge creates an edge from node n to node m, returning its external
// (negative) id. Fails with an "invalid index" error if either endpoint is
// not a valid, live node (spec.md §4.5 "Failure semantics").
func (g *Graph) InsertEdge(n, m int64) (int64, error) {
	okN, err := g.IsNode(n)
	if err != nil {
		return 0, err
	}
	if !okN {
		return 0, fmt.Errorf("graph: invalid index: %d is not a node", n)
	}
	okM, err := g.IsNode(m)
	if err != nil {
		return 0, err
	}
	if !okM {
		return 0, fmt.Errorf("graph: invalid index: %d is not a node", m)
	}

	e, err := g.allocateSlot()
	if err != nil {
		return 0, err
	}
	if err := g.from.Set(e, -n); err != nil {
		return 0, err
	}
	if err := g.to.Set(e, -m); err != nil {
		return 0, err
	}
	if err := g.kind.Set(e, slotEdge); err != nil {
		return 0, err
	}

	headN, err := g.from.Get(n)
	if err != nil {
		return 0, err
	}
	if err := g.fromMeta.Set(e, headN); err != nil {
		return 0, err
	}
	if err := g.from.Set(n, -e); err != nil {
		return 0, err
	}
	cntN, err := g.fromMeta.Get(n)
	if err != nil {
		return 0, err
	}
	if err := g.fromMeta.Set(n, cntN+1); err != nil {
		return 0, err
	}

	headM, err := g.to.Get(m)
	if err != nil {
		return 0, err
	}
	if err := g.toMeta.Set(e, headM); err != nil {
		return 0, err
	}
	if err := g.to.Set(m, -e); err != nil {
		return 0, err
	}
	cntM, err := g.toMeta.Get(m)
	if err != nil {
		return 0, err
	}
	if err := g.toMeta.Set(m, cntM+1); err != nil {
		return 0, err
	}

	g.edgeCount++
	return -e, g.persistHeader()
}

// unlinkFrom removes e from n's outgoing list.
func (g *Graph) unlinkFrom(n, e int64) error {
	head, err := g.from.Get(n)
	if err != nil {
		return err
	}
	if -head == e {
		next, err := g.fromMeta.Get(e)
		if err != nil {
			return err
		}
		if err := g.from.Set(n, next); err != nil {
			return err
		}
		return nil
	}
	prev := -head
	for {
		next, err := g.fromMeta.Get(prev)
		if err != nil {
			return err
		}
		if -next == e {
			afterE, err := g.fromMeta.Get(e)
			if err != nil {
				return err
			}
			return g.fromMeta.Set(prev, afterE)
		}
		prev = -next
	}
}

// unlinkTo removes e from m's incoming list.
func (g *Graph) unlinkTo(m, e int64) error {
	head, err := g.to.Get(m)
	if err != nil {
		return err
	}
	if -head == e {
		next, err := g.toMeta.Get(e)
		if err != nil {
			return err
		}
		if err := g.to.Set(m, next); err != nil {
			return err
		}
		return nil
	}
	prev := -head
	for {
		next, err := g.toMeta.Get(prev)
		if err != nil {
			return err
		}
		if -next == e {
			afterE, err := g.toMeta.Get(e)
			if err != nil {
				return err
			}
			return g.toMeta.Set(prev, afterE)
		}
		prev = -next
	}
}

// RemoveEdge removes externalID. Removing an unknown/already-removed edge
// is a silent no-op (spec.md §4.5 "idempotent").
func (g *Graph) RemoveEdge(externalID int64) error {
	ok, err := g.IsEdge(externalID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e := -externalID
	negN, err := g.from.Get(e)
	if err != nil {
		return err
	}
	negM, err := g.to.Get(e)
	if err != nil {
		return err
	}
	n, m := -negN, -negM

	if err := g.unlinkFrom(n, e); err != nil {
		return err
	}
	if err := g.unlinkTo(m, e); err != nil {
		return err
	}
	cntN, err := g.fromMeta.Get(n)
	if err != nil {
		return err
	}
	if err := g.fromMeta.Set(n, cntN-1); err != nil {
		return err
	}
	cntM, err := g.toMeta.Get(m)
	if err != nil {
		return err
	}
	if err := g.toMeta.Set(m, cntM-1); err != nil {
		return err
	}

	if err := g.freeSlot(e); err != nil {
		return err
	}
	g.edgeCount--
	return g.persistHeader()
}

// RemoveNode removes n and cascades to every incident edge (spec.md §3
// "Lifecycles": "removing a node cascades to all its incident edges").
// Removing an unknown node is a silent no-op.
func (g *Graph) RemoveNode(n int64) error {
	ok, err := g.IsNode(n)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	for {
		head, err := g.from.Get(n)
		if err != nil {
			return err
		}
		if head == 0 {
			break
		}
		if err := g.RemoveEdge(head); err != nil {
			return err
		}
	}
	for {
		head, err := g.to.Get(n)
		if err != nil {
			return err
		}
		if head == 0 {
			break
		}
		if err := g.RemoveEdge(head); err != nil {
			return err
		}
	}

	if err := g.freeSlot(n); err != nil {
		return err
	}
	g.nodeCount--
	return g.persistHeader()
}

// EdgesFrom returns the external (negative) ids of n's outgoing edges, in
// intrusive-list order (spec.md §4.5 "Edge-from ... iterators walk the
// intrusive lists").
func (g *Graph) EdgesFrom(n int64) ([]int64, error) {
	var out []int64
	head, err := g.from.Get(n)
	if err != nil {
		return nil, err
	}
	for head != 0 {
		e := -head
		out = append(out, head)
		head, err = g.fromMeta.Get(e)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EdgesTo returns the external (negative) ids of n's incoming edges.
func (g *Graph) EdgesTo(n int64) ([]int64, error) {
	var out []int64
	head, err := g.to.Get(n)
	if err != nil {
		return nil, err
	}
	for head != 0 {
		e := -head
		out = append(out, head)
		head, err = g.toMeta.Get(e)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EdgeEndpoints returns (from, to) node ids for externalID.
func (g *Graph) EdgeEndpoints(externalID int64) (int64, int64, error) {
	e := -externalID
	negN, err := g.from.Get(e)
	if err != nil {
		return 0, 0, err
	}
	negM, err := g.to.Get(e)
	if err != nil {
		return 0, 0, err
	}
	return -negN, -negM, nil
}

// DegreeFrom returns n's live out-degree (spec.md §8 scenario 6
// "SelectEdgeCountFrom").
func (g *Graph) DegreeFrom(n int64) (int64, error) { return g.fromMeta.Get(n) }

// DegreeTo returns n's live in-degree.
func (g *Graph) DegreeTo(n int64) (int64, error) { return g.toMeta.Get(n) }

// Degree returns n's total (in + out) live degree.
func (g *Graph) Degree(n int64) (int64, error) {
	from, err := g.DegreeFrom(n)
	if err != nil {
		return 0, err
	}
	to, err := g.DegreeTo(n)
	if err != nil {
		return 0, err
	}
	return from + to, nil
}

// Nodes returns every live node id in slot order (spec.md §4.5
// "Iteration").
func (g *Graph) Nodes() ([]int64, error) {
	var out []int64
	for i := int64(1); i < g.capacity(); i++ {
		ok, err := g.IsNode(i)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, i)
		}
	}
	return out, nil
}

// Edges returns every live edge's external (negative) id in slot order.
func (g *Graph) Edges() ([]int64, error) {
	var out []int64
	for i := int64(1); i < g.capacity(); i++ {
		k, err := g.kind.Get(i)
		if err != nil {
			return nil, err
		}
		if k == slotEdge {
			out = append(out, -i)
		}
	}
	return out, nil
}
