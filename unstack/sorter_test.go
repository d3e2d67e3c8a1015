package unstack

import (
	stderrors "errors"
	"testing"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

func newSystem(t *testing.T) *ir.SystemTypes {
	t.Helper()
	return ir.NewSystemTypes(ir.NewGraph(ident.NewTable()), "")
}

// blocks returns n empty blocks indexed in source order.
func blocks(n int) []*ir.Block {
	out := make([]*ir.Block, n)
	for i := range out {
		out[i] = &ir.Block{Index: i}
	}
	return out
}

func isConsistency(err error) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == errors.KindInternalConsistency && e.Phase == errors.PhaseUnstack
}

func indexes(bs []*ir.Block) []int {
	out := make([]int, len(bs))
	for i, b := range bs {
		out[i] = b.Index
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSortOrder(t *testing.T) {
	cond := &ir.Literal{Value: true}

	tests := []struct {
		name      string
		build     func(b []*ir.Block) *ir.Body
		n         int
		order     []int
		successor map[int]int
	}{
		{
			name: "diamond",
			n:    4,
			build: func(b []*ir.Block) *ir.Body {
				b[0].Statements = []ir.Statement{&ir.Branch{Condition: cond, Target: b[2]}}
				b[1].Statements = []ir.Statement{&ir.Branch{Target: b[3]}}
				b[2].Statements = []ir.Statement{&ir.ExpressionStatement{Expr: cond}}
				b[3].Statements = []ir.Statement{&ir.Return{}}
				return &ir.Body{Blocks: b}
			},
			order:     []int{0, 2, 3, 1},
			successor: map[int]int{0: 1, 2: 3},
		},
		{
			name: "loop visits each block once",
			n:    3,
			build: func(b []*ir.Block) *ir.Body {
				b[0].Statements = []ir.Statement{&ir.ExpressionStatement{Expr: cond}}
				b[1].Statements = []ir.Statement{&ir.Branch{Condition: cond, Target: b[0]}}
				b[2].Statements = []ir.Statement{&ir.Return{}}
				return &ir.Body{Blocks: b}
			},
			order:     []int{0, 1, 2},
			successor: map[int]int{0: 1, 1: 2},
		},
		{
			name: "handlers then unreachable",
			n:    4,
			build: func(b []*ir.Block) *ir.Body {
				b[0].Statements = []ir.Statement{&ir.Return{}}
				b[1].Statements = []ir.Statement{&ir.Return{}}
				b[2].Statements = []ir.Statement{&ir.EndFinally{}}
				b[3].Statements = []ir.Statement{&ir.Throw{}}
				return &ir.Body{
					Blocks:   b,
					Handlers: []*ir.Handler{{Kind: ir.HandlerFinally, TryStart: b[0], HandlerStart: b[2]}},
				}
			},
			order:     []int{0, 2, 1, 3},
			successor: map[int]int{},
		},
		{
			name: "switch targets in order",
			n:    4,
			build: func(b []*ir.Block) *ir.Body {
				b[0].Statements = []ir.Statement{&ir.SwitchInstruction{Value: cond, Targets: []*ir.Block{b[3], b[2]}}}
				b[1].Statements = []ir.Statement{&ir.Return{}}
				b[2].Statements = []ir.Statement{&ir.Return{}}
				b[3].Statements = []ir.Statement{&ir.Return{}}
				return &ir.Body{Blocks: b}
			},
			order:     []int{0, 3, 2, 1},
			successor: map[int]int{0: 1},
		},
		{
			name: "fragment ending in branch",
			n:    3,
			build: func(b []*ir.Block) *ir.Body {
				b[0].Statements = []ir.Statement{&ir.Block{Index: -1, Statements: []ir.Statement{&ir.Branch{Target: b[2]}}}}
				b[1].Statements = []ir.Statement{&ir.Return{}}
				b[2].Statements = []ir.Statement{&ir.Return{}}
				return &ir.Body{Blocks: b}
			},
			order:     []int{0, 2, 1},
			successor: map[int]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.build(blocks(tt.n))
			order, err := Sort(body)
			if err != nil {
				t.Fatal(err)
			}
			if got := indexes(order.Blocks); !equalInts(got, tt.order) {
				t.Errorf("order = %v, want %v", got, tt.order)
			}
			if len(order.Successor) != len(tt.successor) {
				t.Errorf("%d successors, want %d", len(order.Successor), len(tt.successor))
			}
			for from, to := range tt.successor {
				if got := order.Successor[body.Blocks[from]]; got != body.Blocks[to] {
					t.Errorf("successor of %d = %v, want %d", from, got, to)
				}
			}
		})
	}
}

func TestSortErrors(t *testing.T) {
	t.Run("falls off the end", func(t *testing.T) {
		b := blocks(2)
		b[0].Statements = []ir.Statement{&ir.Return{}}
		b[1].Statements = []ir.Statement{&ir.ExpressionStatement{Expr: &ir.Literal{}}}
		if _, err := Sort(&ir.Body{Blocks: b}); !isConsistency(err) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("branch outside body", func(t *testing.T) {
		b := blocks(1)
		b[0].Statements = []ir.Statement{&ir.Branch{Target: &ir.Block{}}}
		if _, err := Sort(&ir.Body{Blocks: b}); !isConsistency(err) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("handler outside body", func(t *testing.T) {
		b := blocks(1)
		b[0].Statements = []ir.Statement{&ir.Return{}}
		body := &ir.Body{Blocks: b, Handlers: []*ir.Handler{{Kind: ir.HandlerFault, HandlerStart: &ir.Block{}}}}
		if _, err := Sort(body); !isConsistency(err) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("block listed twice", func(t *testing.T) {
		b := blocks(2)
		b[0].Statements = []ir.Statement{&ir.Return{}}
		b[1].Statements = []ir.Statement{&ir.Return{}}
		if _, err := Sort(&ir.Body{Blocks: []*ir.Block{b[0], b[1], b[0]}}); !isConsistency(err) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("empty body", func(t *testing.T) {
		order, err := Sort(&ir.Body{})
		if err != nil || len(order.Blocks) != 0 {
			t.Errorf("Sort(empty) = %v, %v", order, err)
		}
	})
}
