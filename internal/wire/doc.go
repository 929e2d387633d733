// Package wire owns the frame layout and parsing primitives.
//
// Ownership boundary:
// - length-prefixed JSON header framing
// - block descriptor metadata and body slicing
// - stream reassembly of one frame at a time
package wire
