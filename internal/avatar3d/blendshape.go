package avatar3d

import "strings"

type Blendshape int

const (
	JawOpen Blendshape = iota
	MouthOpen
	MouthWide
	MouthPucker
	EyesClosed
	EyeSquintLeft
	EyeSquintRight
	BrowDownLeft
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	BlendshapeCount
)

var BlendshapeNames = [BlendshapeCount]string{
	"jawOpen",
	"mouthOpen",
	"mouthWide",
	"mouthPucker",
	"eyesClosed",
	"eyeSquintLeft",
	"eyeSquintRight",
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
}

// DefaultVendorPrefix is prepended to canonical names by rigs exported from
// the remote inference service.
const DefaultVendorPrefix = "NVIDIA_blendshape_"

func (b Blendshape) String() string {
	if b < 0 || b >= BlendshapeCount {
		return "unknown"
	}
	return BlendshapeNames[b]
}

func BlendshapeFromName(name string) (Blendshape, bool) {
	for i, n := range BlendshapeNames {
		if n == name {
			return Blendshape(i), true
		}
	}
	return -1, false
}

// BlendshapeFromRemoteName accepts bare canonical names and names carrying
// the vendor prefix.
func BlendshapeFromRemoteName(name, prefix string) (Blendshape, bool) {
	if b, ok := BlendshapeFromName(name); ok {
		return b, true
	}
	if prefix != "" && strings.HasPrefix(name, prefix) {
		return BlendshapeFromName(strings.TrimPrefix(name, prefix))
	}
	return -1, false
}

// Frame holds one target weight per canonical blendshape.
type Frame [BlendshapeCount]float32

func (f *Frame) Set(b Blendshape, value float32) {
	f[b] = clamp(value, 0, 1)
}

func (f *Frame) Get(b Blendshape) float32 {
	return f[b]
}

func (f *Frame) Reset() {
	for i := range f {
		f[i] = 0
	}
}

func (f Frame) ToMap() map[string]float32 {
	out := make(map[string]float32, BlendshapeCount)
	for i, v := range f {
		out[BlendshapeNames[i]] = v
	}
	return out
}

// FrameFromWeights converts a name-keyed weight map, keeping only names the
// resolver maps to a canonical blendshape.
func FrameFromWeights(weights map[string]float64, resolve func(string) (Blendshape, bool)) Frame {
	var f Frame
	for name, w := range weights {
		if b, ok := resolve(name); ok {
			f.Set(b, float32(w))
		}
	}
	return f
}

func Lerp(current, target, t float32) float32 {
	return current + (target-current)*t
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
