// Package vm executes linked Sodigy executables.
//
// A VM owns one Heap and one set of register stacks. Execute runs from an
// entry offset until the outermost Return reaches the end-of-program
// sentinel, an Exit intrinsic runs, or a Fault stops the machine. Every run
// starts from a fresh heap and fresh registers, so top-level lets are
// evaluated at most once per run.
//
// Compound values live on the heap as reference-counted blocks. Each
// register cell and heap word carries a pointer bit; storing a pointer in a
// register adds a reference and popping or overwriting it drops one.
package vm
