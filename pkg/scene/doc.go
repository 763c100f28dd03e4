// Package scene holds the board data model: elements, the closed command
// set, and the pure Apply function every writer goes through.
//
// Invariants:
// - Apply never mutates its input; callers exchange whole values.
// - Element insertion order is the rendering stacking order.
// - Unknown command variants and unknown wire type tags are ignored.
package scene
