// Package toolmap translates model tool calls into board commands.
//
// Invariants:
// - Map is total and side-effect-free: it reads only its arguments.
// - Spatial references resolve against the element snapshot passed in, never
//   against shared state captured elsewhere.
// - Unrecognized or malformed calls yield no command; the caller still owes
//   the model an acknowledgment.
package toolmap
