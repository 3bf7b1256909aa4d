package regalloc

import (
	"fmt"

	"github.com/xplshn/gsc/pkg/types"
)

type Stats struct {
	Allocated int
	Reused    int
	Flagged   int
}

// Pool hands out registers for one function. Registers belong to the scope
// that allocated them and are retired when that scope is popped.
type Pool struct {
	nextID int
	scopes [][]*Register
	free   []*Register
	reuse  bool
	stats  Stats
}

func NewPool(reuse bool) *Pool {
	return &Pool{reuse: reuse, scopes: [][]*Register{nil}}
}

func (p *Pool) Stats() Stats { return p.stats }

func (p *Pool) Depth() int { return len(p.scopes) - 1 }

func (p *Pool) PushScope() { p.scopes = append(p.scopes, nil) }

// PopScope retires every register allocated in the innermost scope.
func (p *Pool) PopScope() {
	if len(p.scopes) == 1 {
		return
	}
	top := p.scopes[len(p.scopes)-1]
	p.scopes = p.scopes[:len(p.scopes)-1]
	for _, r := range top {
		if !r.param {
			p.FlagReusable(r)
		}
	}
}

func (p *Pool) track(r *Register) *Register {
	r.depth = len(p.scopes) - 1
	p.scopes[r.depth] = append(p.scopes[r.depth], r)
	return r
}

func (p *Pool) fresh(t types.Kind) *Register {
	p.nextID++
	p.stats.Allocated++
	return &Register{ID: p.nextID, Kind: Reg, Type: t}
}

// Temp returns a register for an intermediate value, preferring a dead
// register of the same type.
func (p *Pool) Temp(t types.Kind) *Register {
	if p.reuse {
		for i, r := range p.free {
			if r.Type == t {
				p.free = append(p.free[:i], p.free[i+1:]...)
				r.reusable, r.variable, r.owner, r.Name = false, false, 0, ""
				p.stats.Reused++
				return p.retrack(r)
			}
		}
	}
	return p.track(p.fresh(t))
}

// Reuse takes r, which must have been flagged reusable, off the free list so
// it can hold the result of the operation that consumed it.
func (p *Pool) Reuse(r *Register) *Register {
	for i, x := range p.free {
		if x == r {
			p.free = append(p.free[:i], p.free[i+1:]...)
			break
		}
	}
	r.reusable, r.variable, r.owner, r.Name = false, false, 0, ""
	p.stats.Reused++
	return p.retrack(r)
}

// retrack moves a recycled register into the current scope.
func (p *Pool) retrack(r *Register) *Register {
	if old := r.depth; old < len(p.scopes) {
		list := p.scopes[old]
		for i, x := range list {
			if x == r {
				p.scopes[old] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return p.track(r)
}

// Variable returns the register bound to a local variable.
func (p *Pool) Variable(name string, t types.Kind) *Register {
	r := p.Temp(t)
	r.variable, r.Name = true, name
	return r
}

// Param returns a register for an incoming argument. It is never recycled.
func (p *Pool) Param(name string, t types.Kind) *Register {
	r := p.fresh(t)
	r.param, r.variable, r.Name = true, true, name
	return r
}

func (p *Pool) Immediate(v types.Value) *Register {
	return &Register{Kind: Immediate, Type: v.Kind, Imm: v}
}

// Memory returns a location at base+offset, or at a global symbol when base is nil.
func (p *Pool) Memory(base *Register, global string, offset int, stored types.TypeInfo) *Register {
	if base != nil && base.Kind == Memory && base.Stored.IsMemoryBacked() {
		return base.Adjusted(offset, stored)
	}
	return &Register{Kind: Memory, Type: stored.RegisterKind(), Base: base, Global: global, Offset: offset, Stored: stored}
}

// Adjusted returns the location offset bytes further into the same storage.
func (r *Register) Adjusted(offset int, stored types.TypeInfo) *Register {
	if r.Kind != Memory {
		panic("regalloc: Adjusted on non-memory register")
	}
	n := *r
	n.Offset += offset
	n.Stored = stored
	n.Type = stored.RegisterKind()
	n.reusable, n.owner = false, 0
	return &n
}

// FlagReusable marks the value in r as dead so its register can be recycled.
// Memory locations, immediates and parameters are never recycled.
func (p *Pool) FlagReusable(r *Register) {
	if r == nil || r.Kind != Reg || r.param || r.reusable || !p.reuse {
		return
	}
	r.reusable = true
	r.owner = 0
	p.stats.Flagged++
	p.free = append(p.free, r)
}

// Claim records owner as the single live value held by r.
func (p *Pool) Claim(r *Register, owner int) error {
	if r == nil || r.Kind != Reg {
		return nil
	}
	if r.reusable {
		return fmt.Errorf("register %s is flagged reusable and can't be claimed", r)
	}
	if r.owner != 0 && r.owner != owner {
		return fmt.Errorf("register %s is already owned by node %d", r, r.owner)
	}
	r.owner = owner
	return nil
}

// Release drops the ownership of r held by owner.
func (p *Pool) Release(r *Register, owner int) {
	if r != nil && r.owner == owner {
		r.owner = 0
	}
}
