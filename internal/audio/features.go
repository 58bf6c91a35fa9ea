package audio

// Volume is the mean of byte frequency data normalized to [0,1].
func Volume(freq []byte) float32 {
	if len(freq) == 0 {
		return 0
	}
	var sum int
	for _, v := range freq {
		sum += int(v)
	}
	return float32(sum) / float32(len(freq)) / 255
}

// Pitch is the normalized index of the loudest bin in [0,1). This is a coarse
// spectral-peak proxy and not a fundamental frequency estimate. Ties resolve
// to the lowest bin.
func Pitch(freq []byte) float32 {
	if len(freq) == 0 {
		return 0
	}
	maxIdx := 0
	for i, v := range freq {
		if v > freq[maxIdx] {
			maxIdx = i
		}
	}
	return float32(maxIdx) / float32(len(freq))
}

// PeakDecibels returns the loudest bin below 0 dB, or negative infinity
// when none qualifies.
func PeakDecibels(freq []float64) float64 {
	peak := negInf
	for _, v := range freq {
		if v > peak && v < 0 {
			peak = v
		}
	}
	return peak
}
