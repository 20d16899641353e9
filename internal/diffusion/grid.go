package diffusion

import "math"

// Grid is the snapping grid for one protection level, in meters.
type Grid struct {
	Mod int
	Add int
}

// GridFor returns the grid of a protection level. Levels without a grid get
// the identity grid {1, 0}, which only truncates to whole meters.
func GridFor(level int) Grid {
	switch level {
	case 2:
		return Grid{Mod: 1000, Add: 555}
	case 3:
		return Grid{Mod: 5000, Add: 2505}
	case 4:
		return Grid{Mod: 25000, Add: 12505}
	case 5:
		return Grid{Mod: 50000, Add: 25005}
	default:
		return Grid{Mod: 1, Add: 0}
	}
}

// Snap moves a planar coordinate to its cell's representative point:
// floor(v) - (floor(v) mod Mod) + Add, with a non-negative remainder.
func (g Grid) Snap(v float64) float64 {
	mod := float64(g.Mod)
	if mod <= 0 {
		mod = 1
	}
	iv := math.Floor(v)
	r := math.Mod(iv, mod)
	if r < 0 {
		r += mod
	}
	return iv - r + float64(g.Add)
}

// OnGrid reports whether v is a representative point of the grid.
func (g Grid) OnGrid(v float64) bool {
	if g.Mod <= 0 {
		return false
	}
	r := math.Mod(v-float64(g.Add), float64(g.Mod))
	return r == 0
}
