package clustering

import "github.com/paulmach/orb"

// Region describes the part of the tonal plane a point falls in.
type Region struct {
	Name        string
	Description string
}

// RegionOf names the region of p, a point in the normalised plane with pitch
// on x and loudness on y. Uses a 2x2 pitch/loudness quadrant system:
//   - High pitch + Loud  = "Soaring"
//   - High pitch + Quiet = "Airy"
//   - Low pitch  + Loud  = "Driving"
//   - Low pitch  + Quiet = "Brooding"
//
// Points within 0.1 of the plane's middle on both axes get a "(Centred)"
// modifier.
func RegionOf(p orb.Point) Region {
	high := p.X() > 0.5
	loud := p.Y() > 0.5

	var r Region
	switch {
	case high && loud:
		r = Region{"Soaring", "High register at full voice"}
	case high && !loud:
		r = Region{"Airy", "High register played softly"}
	case !high && loud:
		r = Region{"Driving", "Low register pushed hard"}
	default:
		r = Region{"Brooding", "Low register kept quiet"}
	}

	if near(p.X(), 0.5, 0.1) && near(p.Y(), 0.5, 0.1) {
		r.Name += " (Centred)"
	}
	return r
}

// RegionName is shorthand for RegionOf(p).Name.
func RegionName(p orb.Point) string {
	return RegionOf(p).Name
}

func near(v, target, tol float64) bool {
	return v > target-tol && v < target+tol
}
