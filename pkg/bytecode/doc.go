// Package bytecode defines the linear instruction set produced by the
// Sodigy compiler and executed by the vm package.
//
// # Machine model
//
// The machine has four kinds of register:
//
//   - Return: a single slot holding the most recent result.
//   - Local(n): a stack; the callee pushes its parameters and block-local
//     bindings here and pops them before it returns.
//   - Call(n): a stack carrying the n-th argument of the call being set up.
//   - Global(n): the memo slot of the n-th top-level let.
//
// Instructions read the top of a register. Push copies a value onto a
// destination, Pop discards the top. Control flow uses labels: before
// linking a unit refers to its own labels with Local(n) and to other units
// with Func(def); after linking only Static(id) remains and every id is
// unique across the Executable.
//
// # Executable format
//
// An Executable is persisted as asserts, bytecodes, funcs in that order.
// Every integer is a little-endian uint32, bools are one byte, strings and
// sequences carry a uint32 length prefix and sum types a one-byte tag.
// Options are a bool byte followed by the payload when present.
package bytecode
