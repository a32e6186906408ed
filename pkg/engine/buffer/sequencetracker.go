package buffer

const (
	// tooOldHorizon is the forward distance from the highest accepted
	// sequence number beyond which an arriving packet is considered stale.
	tooOldHorizon = 100

	// wrap detection thresholds: the space is considered wrapping when the
	// highest sequence number is above wrapHighThreshold and a new one
	// arrives below wrapLowThreshold
	wrapHighThreshold = 65000
	wrapLowThreshold  = 1000
)

// SequenceTracker follows the 16-bit RTP sequence number space for one
// stream, classifying arrivals as in-order, out-of-order or too old.
type SequenceTracker struct {
	initialized bool
	lastSeq     uint16
	highestSeq  uint16
	wrapped     bool
}

// IsInSequence reports whether seq directly follows the last accepted
// sequence number. Around the wrap boundary a jump from the top of the
// space to the bottom is accepted even when packets were lost across it.
func (s *SequenceTracker) IsInSequence(seq uint16) bool {
	if !s.initialized {
		return true
	}
	if seq == s.lastSeq+1 {
		return true
	}
	return s.lastSeq > wrapHighThreshold && seq < wrapLowThreshold
}

// IsTooOld reports whether seq lies outside the acceptance horizon measured
// forward from the highest accepted sequence number. Everything behind the
// highest accepted number is too old, as is a forward jump beyond the
// horizon.
func (s *SequenceTracker) IsTooOld(seq uint16) bool {
	if !s.initialized {
		return false
	}
	return seq-s.highestSeq > tooOldHorizon
}

// Update records an accepted sequence number. The highest sequence number
// only ever advances forward, wrap aware; the last sequence number always
// moves to the most recently accepted one.
func (s *SequenceTracker) Update(seq uint16) {
	if !s.initialized {
		s.initialized = true
		s.lastSeq = seq
		s.highestSeq = seq
		return
	}

	if s.highestSeq > wrapHighThreshold && seq < wrapLowThreshold {
		s.wrapped = true
	}

	if isNewerSeq(seq, s.highestSeq) {
		s.highestSeq = seq
	}

	// the wrap episode ends once the highest number is clear of both
	// boundary regions
	if s.wrapped && s.highestSeq >= wrapLowThreshold && s.highestSeq <= wrapHighThreshold {
		s.wrapped = false
	}

	s.lastSeq = seq
}

func (s *SequenceTracker) LastSeq() uint16 {
	return s.lastSeq
}

func (s *SequenceTracker) HighestSeq() uint16 {
	return s.highestSeq
}

func (s *SequenceTracker) Wrapped() bool {
	return s.wrapped
}

func (s *SequenceTracker) Initialized() bool {
	return s.initialized
}

func (s *SequenceTracker) Reset() {
	*s = SequenceTracker{}
}

// isNewerSeq reports whether a is ahead of b in the wrap aware ordering.
func isNewerSeq(a, b uint16) bool {
	return a != b && a-b < 1<<15
}
