package msp

// Scanner extracts validated response frames from an unbounded byte
// stream. Same resync policy as the MAVLink scanner: on any validation
// failure advance one byte past the candidate marker and rescan.
type Scanner struct {
	buf      []byte
	requests bool
}

// maxScanBuffer bounds the accumulation buffer.
const maxScanBuffer = 8 * (headerLen + MaxPayloadLen + trailerLen)

// NewScanner returns an empty scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// NewRequestScanner returns a scanner for the device side of the link,
// accepting '<' frames instead of '>' / '!'.
func NewRequestScanner() *Scanner {
	return &Scanner{requests: true}
}

// Reset discards all buffered bytes.
func (s *Scanner) Reset() {
	s.buf = nil
}

// Buffered returns the number of pending unconsumed bytes.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// Push appends a chunk and returns every complete valid frame now
// available, in arrival order.
func (s *Scanner) Push(chunk []byte) []*Frame {
	s.buf = append(s.buf, chunk...)

	var frames []*Frame
	for {
		start := -1
		for i, b := range s.buf {
			if b == markerDollar {
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

		f, n, err := decode(s.buf, s.requests)
		if err == ErrShortFrame {
			if len(s.buf) > maxScanBuffer {
				s.buf = s.buf[1:]
				continue
			}
			break
		}
		if err != nil {
			s.buf = s.buf[1:]
			continue
		}

		g := *f
		g.Payload = append([]byte(nil), f.Payload...)
		frames = append(frames, &g)
		s.buf = s.buf[n:]
	}
	return frames
}
