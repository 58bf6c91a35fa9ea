package remote

import (
	"fmt"
	"sort"
	"strings"
)

// ModelPreset names a hosted character model
type ModelPreset string

const (
	PresetMark   ModelPreset = "MARK"
	PresetClaire ModelPreset = "CLAIRE"
	PresetJames  ModelPreset = "JAMES"
)

const DefaultPreset = PresetMark

var presetModelIDs = map[ModelPreset]string{
	PresetMark:   "b85c53f3-5d18-4edf-8b12-875a400eb798",
	PresetClaire: "a05a5522-3059-4dfd-90e4-4bc1699ae9d4",
	PresetJames:  "52f51a79-324c-4dbe-90ad-798ab665ad64",
}

// ParsePreset accepts preset names case-insensitively
func ParsePreset(s string) (ModelPreset, error) {
	p := ModelPreset(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := presetModelIDs[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, s)
	}
	return p, nil
}

// ModelID returns the function identifier for the preset
func (p ModelPreset) ModelID() string {
	return presetModelIDs[p]
}

// Presets lists known presets in name order
func Presets() []ModelPreset {
	out := make([]ModelPreset, 0, len(presetModelIDs))
	for p := range presetModelIDs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
