// Package snapshot acquires rendered images of a board for visual
// self-verification. Returning no data is a valid, non-fatal outcome: the
// verification loop degrades to text-only critique.
package snapshot

import "context"

// Provider captures the current rendering of whatever scene it is bound to.
// A (nil, nil) return means no snapshot is available right now.
type Provider interface {
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// MediaType is the image format every provider produces.
const MediaType = "image/png"

// Static is a canned provider for tests and capture-disabled deployments.
type Static struct {
	Data []byte
	Err  error
}

// Capture returns the canned bytes.
func (s *Static) Capture(ctx context.Context) ([]byte, error) {
	return s.Data, s.Err
}

// Close implements Provider.
func (s *Static) Close() error {
	return nil
}
