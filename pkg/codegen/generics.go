package codegen

import (
	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/cespare/xxhash/v2"
)

// Slot names one erased generic position whose concrete type the code
// generator needs to recover.
type Slot int

const (
	SlotResultOk Slot = iota
	SlotResultErr
	SlotOptionSome
	SlotLastExtracted
	slotCount
)

var slotNames = [...]string{"ResultOk", "ResultErr", "OptionSome", "LastExtracted"}

func (s Slot) String() string { return slotNames[s] }

// Binding is what is known about a slot. Source is nil when only the
// lowered shape is known.
type Binding struct {
	Concrete layout.Type
	Source   *ast.Type
}

type frame struct {
	slots [slotCount]*Binding
	set   [slotCount]bool
}

type sumInstance struct {
	ok, err *Binding
}

// GenericContext is a stack of frames. Writes go to the top frame, reads
// search from the top down. A frame may record a slot as explicitly unknown,
// which hides any entry in the frames below it.
type GenericContext struct {
	lower   *layout.Lowerer
	frames  []*frame
	tracker map[uint64]*sumInstance
}

func NewGenericContext(lower *layout.Lowerer) *GenericContext {
	return &GenericContext{lower: lower, tracker: make(map[uint64]*sumInstance)}
}

func (g *GenericContext) Push() { g.frames = append(g.frames, &frame{}) }

func (g *GenericContext) Pop() {
	if len(g.frames) > 0 {
		g.frames = g.frames[:len(g.frames)-1]
	}
}

func (g *GenericContext) Depth() int { return len(g.frames) }

// Track overwrites slot in the top frame. A nil binding marks it unknown.
func (g *GenericContext) Track(slot Slot, b *Binding) {
	if len(g.frames) == 0 {
		g.Push()
	}
	top := g.frames[len(g.frames)-1]
	top.slots[slot], top.set[slot] = b, true
}

func (g *GenericContext) Lookup(slot Slot) (*Binding, bool) {
	for i := len(g.frames) - 1; i >= 0; i-- {
		if f := g.frames[i]; f.set[slot] {
			return f.slots[slot], f.slots[slot] != nil
		}
	}
	return nil, false
}

// Forget marks every sum slot unknown in the top frame.
func (g *GenericContext) Forget() {
	g.Track(SlotResultOk, nil)
	g.Track(SlotResultErr, nil)
	g.Track(SlotOptionSome, nil)
}

func (g *GenericContext) bind(src *ast.Type) *Binding {
	if src == nil {
		return nil
	}
	lt, err := g.lower.Lower(src)
	if err != nil {
		return nil
	}
	return &Binding{Concrete: lt, Source: src}
}

// Instance returns the payload bindings recorded for a sum type.
func (g *GenericContext) Instance(src *ast.Type) (ok, err *Binding, found bool) {
	inst, found := g.tracker[xxhash.Sum64String(src.String())]
	if !found {
		return nil, nil, false
	}
	return inst.ok, inst.err, true
}

// TrackSum records the payload types of a Result or Option source type in
// the slots and in the structural tracker.
func (g *GenericContext) TrackSum(src *ast.Type) {
	if !src.IsSum() {
		return
	}
	key := xxhash.Sum64String(src.String())
	inst, found := g.tracker[key]
	if !found {
		inst = &sumInstance{ok: g.bind(src.OkType())}
		if src.IsResult() {
			inst.err = g.bind(src.ErrType())
		}
		g.tracker[key] = inst
	}
	if src.IsResult() {
		g.Track(SlotResultOk, inst.ok)
		g.Track(SlotResultErr, inst.err)
	} else {
		g.Track(SlotOptionSome, inst.ok)
	}
}
