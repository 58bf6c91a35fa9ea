package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVADHysteresis(t *testing.T) {
	v := NewVAD(nil)

	var edges []bool
	v.OnSpeaking(func(e SpeechEvent) { edges = append(edges, e.Speaking) })
	v.OnStoppedSpeaking(func(e SpeechEvent) { edges = append(edges, e.Speaking) })

	now := time.Unix(0, 0)
	step := func() {
		now = now.Add(50 * time.Millisecond)
		v.Poll(now)
	}

	loud := sine(440, 0.5, 512)
	quiet := make([]float32, 512)

	v.analyser.WriteSamples(loud)
	step()
	step()
	assert.False(t, v.IsSpeaking(), "two loud polls are not enough")
	step()
	assert.True(t, v.IsSpeaking())
	assert.Greater(t, v.LevelDB(), -65.0)

	v.analyser.WriteSamples(quiet)
	for i := 0; i < 3; i++ {
		step()
	}
	assert.True(t, v.IsSpeaking(), "short pause keeps speaking")

	for i := 0; i < 15; i++ {
		step()
	}
	assert.False(t, v.IsSpeaking())
	assert.Equal(t, []bool{true, false}, edges)
}

func TestVADPollInterval(t *testing.T) {
	v := NewVAD(nil)
	v.analyser.WriteSamples(sine(440, 0.5, 512))

	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		v.Poll(now.Add(time.Duration(i) * time.Millisecond))
	}
	assert.False(t, v.IsSpeaking(), "polls inside one interval count once")
}

func TestVADReset(t *testing.T) {
	v := NewVAD(nil)
	v.analyser.WriteSamples(sine(440, 0.5, 512))
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		now = now.Add(50 * time.Millisecond)
		v.Poll(now)
	}
	assert.True(t, v.IsSpeaking())

	v.Reset()
	assert.False(t, v.IsSpeaking())
	assert.True(t, v.LevelDB() < -1e300)
}
