package compiler

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/baehyunsol/Sodigy-sub004/mir"
	"github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Linker: units -> Executable
// ---------------------------------------------------------------------------

// Link concatenates units in order and rewrites every label to a Static
// label with a program-wide unique id. Each unit is preceded by a marker for
// its entry label. Instructions that follow an unconditional jump are dropped
// up to the next label marker. Function pointers are resolved to the offset
// of the callee's entry.
func Link(units []*Unit) (*bytecode.Executable, error) {
	var next uint32
	entryID := make([]uint32, len(units))
	byDef := make(map[mir.DefID]uint32)

	for i, u := range units {
		entryID[i] = next
		next++
		if u.Kind == UnitAssert {
			continue
		}
		if _, dup := byDef[u.Def]; dup {
			return nil, fmt.Errorf("%w: def %d (%s) defined twice", ErrDuplicateLabel, u.Def, u.Name)
		}
		byDef[u.Def] = entryID[i]
	}

	// Pass 1: rewrite labels, drop unreachable code, record marker offsets.
	var code []bytecode.Bytecode
	marker := make(map[uint32]int)
	for i, u := range units {
		local := make(map[uint32]uint32)
		for _, b := range u.Bytecodes {
			if b.Op != bytecode.OpLabel || b.Label.Kind != bytecode.LabelLocal {
				continue
			}
			if _, dup := local[b.Label.ID]; dup {
				return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateLabel, b.Label, u.Name)
			}
			local[b.Label.ID] = next
			next++
		}

		marker[entryID[i]] = len(code)
		code = append(code, bytecode.Mark(bytecode.StaticLabel(entryID[i])))

		reachable := true
		for _, b := range u.Bytecodes {
			if b.HasLabel() {
				l, err := resolveLabel(b.Label, local, byDef, u)
				if err != nil {
					return nil, err
				}
				b.Label = l
			}
			if b.IsLabel() {
				reachable = true
				marker[b.Label.ID] = len(code)
			} else if !reachable {
				continue
			}
			code = append(code, b)
			if b.IsUnconditionalJump() {
				reachable = false
			}
		}
	}

	// Pass 2: function pointers need final offsets.
	for pc := range code {
		b := &code[pc]
		if b.Op != bytecode.OpPushConst {
			continue
		}
		v, err := resolvePointers(b.Value, byDef, marker)
		if err != nil {
			return nil, err
		}
		b.Value = v
	}

	x := &bytecode.Executable{Bytecodes: code}
	for i, u := range units {
		off, err := safecast.Convert[uint32](marker[entryID[i]])
		if err != nil {
			return nil, fmt.Errorf("entry of %s: %w", u.Name, err)
		}
		e := bytecode.Entry{Name: u.Name, Offset: off}
		switch u.Kind {
		case UnitAssert:
			x.Asserts = append(x.Asserts, e)
		case UnitFunc:
			x.Funcs = append(x.Funcs, e)
		}
	}

	log.Infof("linked %d units: %d instructions, %d labels, %d asserts",
		len(units), len(code), next, len(x.Asserts))
	return x, nil
}

func resolveLabel(l bytecode.Label, local map[uint32]uint32, byDef map[mir.DefID]uint32, u *Unit) (bytecode.Label, error) {
	switch l.Kind {
	case bytecode.LabelLocal:
		id, ok := local[l.ID]
		if !ok {
			return l, fmt.Errorf("%w: %s in %s", ErrDanglingLabel, l, u.Name)
		}
		return bytecode.StaticLabel(id), nil
	case bytecode.LabelFunc:
		id, ok := byDef[mir.DefID(l.ID)]
		if !ok {
			return l, fmt.Errorf("%w: def %d referenced from %s", ErrUnknownFunc, l.ID, u.Name)
		}
		return bytecode.StaticLabel(id), nil
	}
	return l, fmt.Errorf("%w: %s in %s", ErrLinkedLabel, l, u.Name)
}

func resolvePointers(v bytecode.Value, byDef map[mir.DefID]uint32, marker map[uint32]int) (bytecode.Value, error) {
	switch v.Kind {
	case bytecode.ValueFuncPointer:
		if v.Resolved {
			return v, nil
		}
		id, ok := byDef[v.Def]
		if !ok {
			return v, fmt.Errorf("%w: function pointer to def %d", ErrUnknownFunc, v.Def)
		}
		pc, err := safecast.Convert[uint32](marker[id])
		if err != nil {
			return v, err
		}
		return bytecode.ResolvedFuncPointer(v.Def, pc), nil
	case bytecode.ValueCompound:
		var elems []bytecode.Value
		for i, e := range v.Elems {
			r, err := resolvePointers(e, byDef, marker)
			if err != nil {
				return v, err
			}
			if elems == nil && !r.Equal(e) {
				elems = append([]bytecode.Value(nil), v.Elems...)
			}
			if elems != nil {
				elems[i] = r
			}
		}
		if elems != nil {
			return bytecode.Compound(elems...), nil
		}
	}
	return v, nil
}
