package bytecode

import (
	"fmt"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// RegisterKind discriminates Register. The numeric values are the wire tags.
type RegisterKind uint8

const (
	RegReturn RegisterKind = iota
	RegLocal
	RegCall
	RegGlobal
)

// Register names a storage location. Index is unused for RegReturn.
type Register struct {
	Kind  RegisterKind
	Index uint32
}

var Return = Register{Kind: RegReturn}

func Local(n uint32) Register { return Register{Kind: RegLocal, Index: n} }
func Call(n uint32) Register { return Register{Kind: RegCall, Index: n} }
func Global(n uint32) Register { return Register{Kind: RegGlobal, Index: n} }

// IsStack reports whether the register is a push/pop stack (Local, Call)
// rather than a single slot (Return, Global).
func (r Register) IsStack() bool { return r.Kind == RegLocal || r.Kind == RegCall }

func (r Register) String() string {
	switch r.Kind {
	case RegReturn:
		return "ret"
	case RegLocal:
		return fmt.Sprintf("l%d", r.Index)
	case RegCall:
		return fmt.Sprintf("c%d", r.Index)
	case RegGlobal:
		return fmt.Sprintf("g%d", r.Index)
	}
	return fmt.Sprintf("Register(%d,%d)", r.Kind, r.Index)
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// LabelKind discriminates Label. The numeric values are the wire tags.
type LabelKind uint8

const (
	// LabelLocal is unit-relative and exists only before linking.
	LabelLocal LabelKind = iota
	// LabelStatic is program-wide and is the only kind after linking.
	LabelStatic
	// LabelFunc refers to the entry of the unit defining ID (a mir.DefID).
	// It exists only before linking.
	LabelFunc
)

type Label struct {
	Kind LabelKind
	ID   uint32
}

func LocalLabel(n uint32) Label { return Label{Kind: LabelLocal, ID: n} }
func StaticLabel(n uint32) Label { return Label{Kind: LabelStatic, ID: n} }
func FuncLabel(def mir.DefID) Label { return Label{Kind: LabelFunc, ID: uint32(def)} }

func (l Label) String() string {
	switch l.Kind {
	case LabelLocal:
		return fmt.Sprintf(".L%d", l.ID)
	case LabelStatic:
		return fmt.Sprintf("S%d", l.ID)
	case LabelFunc:
		return fmt.Sprintf("fn#%d", l.ID)
	}
	return fmt.Sprintf("Label(%d,%d)", l.Kind, l.ID)
}
