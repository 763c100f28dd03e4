// Package sync converges board state across participants. A Synchronizer
// owns one participant's copy of the element list and a Bus carries the
// command envelopes between them, either in process (MemoryBroker) or over
// a websocket to the hub (WebSocketBus).
package sync
