package unstack

import (
	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

// Order is the result of Sort.
type Order struct {
	// Blocks lists every block of the body exactly once, in visiting order.
	Blocks []*ir.Block
	// Successor maps each block that can fall through to the next block in
	// source order.
	Successor map[*ir.Block]*ir.Block
}

// Sort orders the blocks of body depth-first from the entry block, following
// branch and switch targets before fallthrough. Handler entry points are
// traversed next, then any block still unvisited in source order.
//
// The last block in source order must end in a control transfer.
func Sort(body *ir.Body) (*Order, error) {
	s := sorter{
		body:     body,
		position: make(map[*ir.Block]int, len(body.Blocks)),
		visited:  newBitSet(len(body.Blocks)),
		order: &Order{
			Blocks:    make([]*ir.Block, 0, len(body.Blocks)),
			Successor: make(map[*ir.Block]*ir.Block),
		},
	}
	for i, b := range body.Blocks {
		if b == nil {
			return nil, errors.Consistency(errors.PhaseUnstack, "block %d is nil", i)
		}
		s.position[b] = i
	}
	if n := len(body.Blocks); n > 0 && fallsThrough(body.Blocks[n-1]) {
		return nil, errors.Consistency(errors.PhaseUnstack, "last block %d falls off the end of the body", n-1)
	}

	if len(body.Blocks) > 0 {
		if err := s.visit(body.Blocks[0]); err != nil {
			return nil, err
		}
	}
	for _, h := range body.Handlers {
		for _, start := range []*ir.Block{h.FilterStart, h.HandlerStart} {
			if start == nil {
				continue
			}
			if err := s.visit(start); err != nil {
				return nil, err
			}
		}
	}
	for _, b := range body.Blocks {
		if err := s.visit(b); err != nil {
			return nil, err
		}
	}
	// A block listed twice keeps only its last position.
	if n := s.visited.Count(); n != len(body.Blocks) {
		return nil, errors.Consistency(errors.PhaseUnstack, "ordered %d of %d blocks", n, len(body.Blocks))
	}
	return s.order, nil
}

type sorter struct {
	body     *ir.Body
	position map[*ir.Block]int
	visited  *bitSet
	order    *Order
}

// visit runs an iterative preorder traversal from start.
func (s *sorter) visit(start *ir.Block) error {
	first, ok := s.position[start]
	if !ok {
		return errors.Consistency(errors.PhaseUnstack, "block is not part of the body")
	}
	if s.visited.Has(first) {
		return nil
	}

	stack := []*ir.Block{start}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pos := s.position[b]
		if s.visited.Has(pos) {
			continue
		}
		s.visited.Set(pos)
		s.order.Blocks = append(s.order.Blocks, b)

		var next []*ir.Block
		for _, st := range b.Statements {
			next = appendTargets(next, st)
		}
		if fallsThrough(b) {
			succ := s.body.Blocks[pos+1]
			s.order.Successor[b] = succ
			next = append(next, succ)
		}
		// Pushed in reverse so the first target is visited first.
		for i := len(next) - 1; i >= 0; i-- {
			p, ok := s.position[next[i]]
			if !ok {
				return errors.Consistency(errors.PhaseUnstack, "block %d branches outside the body", pos)
			}
			if !s.visited.Has(p) {
				stack = append(stack, next[i])
			}
		}
	}
	return nil
}

// appendTargets collects explicit branch targets, including those inside
// fragments.
func appendTargets(dst []*ir.Block, st ir.Statement) []*ir.Block {
	switch st := st.(type) {
	case *ir.Branch:
		dst = append(dst, st.Target)
	case *ir.SwitchInstruction:
		dst = append(dst, st.Targets...)
	case *ir.Block:
		for _, inner := range st.Statements {
			dst = appendTargets(dst, inner)
		}
	}
	return dst
}

func fallsThrough(b *ir.Block) bool {
	n := len(b.Statements)
	return n == 0 || !ir.TransfersControl(b.Statements[n-1])
}
