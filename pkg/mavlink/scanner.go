package mavlink

// Scanner extracts validated frames from an unbounded sequence of byte
// chunks with arbitrary boundaries. A frame may straddle chunks; garbage
// between frames is skipped. On any validation failure the scanner
// advances exactly one byte past the candidate start marker and rescans,
// so a false marker byte inside unrelated payload data cannot swallow a
// real frame behind it.
type Scanner struct {
	buf []byte
}

// maxScanBuffer bounds the accumulation buffer. A candidate frame can be
// at most maxFrameLen bytes, so anything beyond a few frames of backlog
// is line noise that never completed.
const maxScanBuffer = 8 * maxFrameLen

// NewScanner returns an empty scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Reset discards all buffered bytes. Call when a connection restarts.
func (s *Scanner) Reset() {
	s.buf = nil
}

// Buffered returns the number of pending unconsumed bytes.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// Push appends a chunk and returns every complete valid frame now
// available, in arrival order. Invalid frames are dropped silently.
func (s *Scanner) Push(chunk []byte) []*Frame {
	s.buf = append(s.buf, chunk...)

	var frames []*Frame
	for {
		// Find the next start marker.
		start := -1
		for i, b := range s.buf {
			if b == MagicV1 || b == MagicV2 {
				start = i
				break
			}
		}
		if start < 0 {
			s.buf = s.buf[:0]
			break
		}
		if start > 0 {
			s.buf = s.buf[start:]
		}

		f, n, err := Decode(s.buf)
		if err == ErrShortFrame {
			// Wait for more data, but never hoard a stuck partial.
			if len(s.buf) > maxScanBuffer {
				s.buf = s.buf[1:]
				continue
			}
			break
		}
		if err != nil {
			// Single-byte resync past the false marker.
			s.buf = s.buf[1:]
			continue
		}

		// Detach the frame from the scan buffer before advancing.
		frames = append(frames, detach(f))
		s.buf = s.buf[n:]
	}
	return frames
}

// detach copies the buffer-aliasing slices so the frame survives buffer
// compaction.
func detach(f *Frame) *Frame {
	g := *f
	g.Payload = append([]byte(nil), f.Payload...)
	if f.Signature != nil {
		g.Signature = append([]byte(nil), f.Signature...)
	}
	return &g
}
