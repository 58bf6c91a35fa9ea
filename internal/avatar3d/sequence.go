package avatar3d

const DefaultFrameRate = 30

// FrameSequence replays remote frames in order and wraps around.
type FrameSequence struct {
	frames    []Frame
	frameRate float64
	next      int
}

func NewFrameSequence(frames []Frame, frameRate float64) *FrameSequence {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &FrameSequence{frames: frames, frameRate: frameRate}
}

func (s *FrameSequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.frames)
}

func (s *FrameSequence) FrameRate() float64 {
	return s.frameRate
}

// Next returns the frame at the cursor and advances it modulo the length.
func (s *FrameSequence) Next() (Frame, bool) {
	if s.Len() == 0 {
		return Frame{}, false
	}
	f := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return f, true
}
