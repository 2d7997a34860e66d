package components

// Body holds the un-rotated footprint dimensions shared by all agents.
type Body struct {
	Width, Height float64
}
