package preprocessor

import (
	"errors"

	"github.com/fwessels/hdrscan/internal/cexpr"
)

var (
	ErrElifWithoutIf  = errors.New("#elif without #if")
	ErrElseWithoutIf  = errors.New("#else without #if")
	ErrEndifWithoutIf = errors.New("#endif without #if")
	ErrElifAfterElse  = errors.New("#elif after #else")
	ErrElseAfterElse  = errors.New("#else after #else")
)

// CondStack tracks nested conditional groups in three-valued logic. A
// region is Unknown when it may or may not be compiled.
type CondStack struct {
	stack []condFrame
}

type condFrame struct {
	parent  cexpr.Ternary
	taken   cexpr.Ternary // an earlier branch of the group was selected
	active  cexpr.Ternary
	sawElse bool
	line    int
}

func (c *CondStack) Depth() int { return len(c.stack) }

// Active reports whether the current region is compiled.
func (c *CondStack) Active() cexpr.Ternary {
	if len(c.stack) == 0 {
		return cexpr.True
	}
	return c.stack[len(c.stack)-1].active
}

// Push opens a group whose first branch has condition cond.
func (c *CondStack) Push(cond cexpr.Ternary, line int) {
	parent := c.Active()
	c.stack = append(c.stack, condFrame{
		parent: parent,
		taken:  cond,
		active: cexpr.And(parent, cond),
		line:   line,
	})
}

func (c *CondStack) Elif(cond cexpr.Ternary) error {
	if len(c.stack) == 0 {
		return ErrElifWithoutIf
	}
	top := &c.stack[len(c.stack)-1]
	if top.sawElse {
		return ErrElifAfterElse
	}
	top.active = cexpr.And(top.parent, cexpr.And(cexpr.Not(top.taken), cond))
	top.taken = cexpr.Or(top.taken, cond)
	return nil
}

func (c *CondStack) Else() error {
	if len(c.stack) == 0 {
		return ErrElseWithoutIf
	}
	top := &c.stack[len(c.stack)-1]
	if top.sawElse {
		return ErrElseAfterElse
	}
	top.sawElse = true
	top.active = cexpr.And(top.parent, cexpr.Not(top.taken))
	top.taken = cexpr.True
	return nil
}

func (c *CondStack) Pop() error {
	if len(c.stack) == 0 {
		return ErrEndifWithoutIf
	}
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

// UnclosedLine returns the line of the innermost open group, 0 if none.
func (c *CondStack) UnclosedLine() int {
	if len(c.stack) == 0 {
		return 0
	}
	return c.stack[len(c.stack)-1].line
}
