// Package model talks to the multimodal model service behind a single
// Service interface. A request is an ordered list of parts (tool-call
// acknowledgments, free text, inline images); a response is zero or more
// tool calls plus optional text.
//
// Invariants:
// - The session handle is an explicit state machine; Close is idempotent and
//   releases conversation state on every exit path.
// - Every tool call in a response is acknowledged with a success result,
//   including calls the mapper could not translate.
package model
