// Package geocell quantizes geographic coordinates onto a fixed-precision
// grid. Cell identifiers are stable strings: the same coordinate bucket
// always yields the same identifier, and string equality implies the same
// bucket. This is a grid, not a clustering algorithm: two physically
// adjacent points on either side of a bucket boundary land in different
// cells.
package geocell

import (
	"fmt"
	"math"
)

// DefaultPrecision is the default grid step in degrees (~100m at the
// equator).
const DefaultPrecision = 0.001

// Quantize maps a coordinate pair to its cell identifier at the given
// precision. Each axis is floored independently to the nearest lower grid
// line and the pair is formatted to six decimal places, joined with an
// underscore.
//
// Flooring is toward negative infinity on both axes, so negative
// coordinates bucket south/west-ward: -118.2437 at precision 0.001 maps to
// -118.244000, not -118.243000. This keeps boundary behavior symmetric
// across hemispheres at the cost of feeling surprising for negative values.
func Quantize(lat, lon, precision float64) string {
	qlat := math.Floor(lat/precision) * precision
	qlon := math.Floor(lon/precision) * precision
	return fmt.Sprintf("%.6f_%.6f", qlat, qlon)
}
