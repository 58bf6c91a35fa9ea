package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// WAVDevice plays a WAV file as if it were a microphone. Each Acquire
// decodes the file again and returns an independent stream.
type WAVDevice struct {
	Path string
	// Loop restarts from the beginning at end of file.
	Loop bool
	// Realtime paces reads to the file's sample rate.
	Realtime bool
}

// NewWAVDevice creates a looping, real-time paced file device
func NewWAVDevice(path string) *WAVDevice {
	return &WAVDevice{Path: path, Loop: true, Realtime: true}
}

func (d *WAVDevice) Name() string {
	return "wav:" + d.Path
}

func (d *WAVDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(d.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, rate, err := decodeMono(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Path, err)
	}

	return &wavStream{
		samples:  samples,
		rate:     rate,
		loop:     d.Loop,
		realtime: d.Realtime,
		closed:   make(chan struct{}),
	}, nil
}

func decodeMono(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidFormat
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.SourceBitDepth == 0 {
		return nil, 0, ErrInvalidFormat
	}

	channels := buf.Format.NumChannels
	scale := float32(int64(1) << (buf.SourceBitDepth - 1))
	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out, buf.Format.SampleRate, nil
}

type wavStream struct {
	samples  []float32
	rate     int
	loop     bool
	realtime bool

	pos       int
	delivered int64
	started   time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *wavStream) SampleRate() int {
	return s.rate
}

func (s *wavStream) Read(buf []float32) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrStreamClosed
	default:
	}

	if len(s.samples) == 0 {
		return 0, io.EOF
	}

	if s.realtime {
		if s.started.IsZero() {
			s.started = time.Now()
		}
		due := s.started.Add(time.Duration(s.delivered) * time.Second / time.Duration(s.rate))
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.closed:
				timer.Stop()
				return 0, ErrStreamClosed
			case <-timer.C:
			}
		}
	}

	n := 0
	for n < len(buf) {
		if s.pos >= len(s.samples) {
			if !s.loop {
				s.delivered += int64(n)
				return n, io.EOF
			}
			s.pos = 0
		}
		c := copy(buf[n:], s.samples[s.pos:])
		n += c
		s.pos += c
	}
	s.delivered += int64(n)
	return n, nil
}

func (s *wavStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
