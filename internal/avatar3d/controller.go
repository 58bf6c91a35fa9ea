package avatar3d

// Controller eases registry influences toward target frames.
type Controller struct {
	registry  *Registry
	smoothing float32
	applied   uint64
}

func NewController(smoothing float32) *Controller {
	return &Controller{smoothing: clamp(smoothing, 0, 1)}
}

func (c *Controller) SetRegistry(r *Registry) {
	c.registry = r
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) SetSmoothing(s float32) {
	c.smoothing = clamp(s, 0, 1)
}

func (c *Controller) Smoothing() float32 {
	return c.smoothing
}

func (c *Controller) Applied() uint64 {
	return c.applied
}

// Apply moves every resolved influence a fraction of the way to the target.
// It reports false when there is nothing to animate.
func (c *Controller) Apply(target Frame) bool {
	if c.registry.Empty() {
		return false
	}

	for i := range c.registry.entries {
		e := &c.registry.entries[i]
		for b := Blendshape(0); b < BlendshapeCount; b++ {
			idx := e.Index[b]
			if idx < 0 {
				continue
			}
			e.Influences[idx] = Lerp(e.Influences[idx], target[b], c.smoothing)
		}
	}

	c.applied++
	return true
}
