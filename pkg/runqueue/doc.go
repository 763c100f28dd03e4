// Package runqueue provides lane-based task execution with FIFO ordering per
// lane. Each board gets one lane with concurrency 1, which is how Easel
// enforces "at most one verification run in flight per board": a second
// instruction queues behind the active run instead of interleaving with it.
package runqueue
