// Package unstack rewrites stack-machine method bodies into explicit-local form.
//
// Sort computes a depth-first block order and the fallthrough successor of
// every block that can fall through. Unstack then simulates the operand
// stack block by block: every pushed value is assigned to a local, Pop
// pseudo-expressions become reads of that local and Dup copies the top slot
// into a fresh one. Where two paths meet, the later path is aligned to the
// stack shape committed by the first with copy assignments.
//
//	if err := unstack.Unstack(body, sys); err != nil {
//		// the body is left as it was
//	}
package unstack
