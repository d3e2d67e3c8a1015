package unstack

import (
	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

// LocalsStack is the simulated operand stack at a program point: one local
// per stack slot, bottom first. At a handler entry the incoming exception
// object is held in a pending slot until the block materializes it.
type LocalsStack struct {
	locals    []*ir.Local
	exception *ir.Local
}

// NewLocalsStack returns a stack holding locals, bottom first.
func NewLocalsStack(locals ...*ir.Local) *LocalsStack {
	return &LocalsStack{locals: append([]*ir.Local(nil), locals...)}
}

// Len returns the stack depth, counting a pending exception slot.
func (s *LocalsStack) Len() int {
	if s.exception != nil {
		return len(s.locals) + 1
	}
	return len(s.locals)
}

// Slot returns the local at depth i, the pending exception being topmost.
func (s *LocalsStack) Slot(i int) *ir.Local {
	if i == len(s.locals) && s.exception != nil {
		return s.exception
	}
	return s.locals[i]
}

// Push places l on top of the stack.
func (s *LocalsStack) Push(l *ir.Local) {
	s.locals = append(s.locals, l)
}

// Pop removes and returns the top local.
func (s *LocalsStack) Pop() (*ir.Local, error) {
	l, err := s.Peek()
	if err != nil {
		return nil, err
	}
	s.locals = s.locals[:len(s.locals)-1]
	return l, nil
}

// Peek returns the top local without removing it.
func (s *LocalsStack) Peek() (*ir.Local, error) {
	if s.exception != nil {
		return nil, errors.Consistency(errors.PhaseUnstack, "exception slot read before block entry")
	}
	if len(s.locals) == 0 {
		return nil, errors.Consistency(errors.PhaseUnstack, "operand stack underflow")
	}
	return s.locals[len(s.locals)-1], nil
}

// Dup pushes fresh as a copy of the current top and returns that top.
func (s *LocalsStack) Dup(fresh *ir.Local) (*ir.Local, error) {
	top, err := s.Peek()
	if err != nil {
		return nil, err
	}
	s.Push(fresh)
	return top, nil
}

// Clone returns an independent copy.
func (s *LocalsStack) Clone() *LocalsStack {
	return &LocalsStack{
		locals:    append([]*ir.Local(nil), s.locals...),
		exception: s.exception,
	}
}

// SetException marks l as the pending exception slot.
func (s *LocalsStack) SetException(l *ir.Local) {
	s.exception = l
}

// TakeException moves the pending exception slot onto the stack proper and
// returns it, or nil when there is none.
func (s *LocalsStack) TakeException() *ir.Local {
	l := s.exception
	if l != nil {
		s.exception = nil
		s.Push(l)
	}
	return l
}

// Transfer returns the copy assignments that make s match to slot by slot.
// Slots already holding the same local need no copy.
func (s *LocalsStack) Transfer(to *LocalsStack) ([]ir.Statement, error) {
	if s.Len() != to.Len() {
		return nil, errors.Consistency(errors.PhaseUnstack,
			"stack depth %d does not match committed depth %d", s.Len(), to.Len())
	}
	var copies []ir.Statement
	for i := 0; i < s.Len(); i++ {
		src, dst := s.Slot(i), to.Slot(i)
		if src == dst {
			continue
		}
		copies = append(copies, &ir.AssignmentStatement{
			Target: &ir.LocalRef{Local: dst},
			Source: &ir.LocalRef{Local: src},
		})
	}
	return copies, nil
}
