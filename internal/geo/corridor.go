package geo

import (
	"math"

	"github.com/example/companion-matching/internal/models"
)

const (
	minCellMeters = 10.0
	maxCells      = 200000.0
)

type cell struct{ x, y int32 }

// projection is a local equirectangular plane shared by every path being
// compared, so their rasters line up cell for cell.
type projection struct {
	cosLat float64
	size   float64
}

func (p projection) point(c models.Coord) (float64, float64) {
	return EarthRadiusMeters * toRad(c.Lng) * p.cosLat, EarthRadiusMeters * toRad(c.Lat)
}

// CorridorOverlap buffers both paths by width meters on each side and returns
// area(A∩B) / min(area(A), area(B)). The areas are measured on a raster whose
// cell edge grows with path length (never below 10 m), keeping the cell count
// bounded. Empty paths or disjoint corridors give 0.
func CorridorOverlap(a, b []models.Coord, width float64) float64 {
	if len(a) == 0 || len(b) == 0 || width <= 0 {
		return 0
	}
	p := newProjection(a, b, width)
	ca := p.rasterize(a, width)
	cb := p.rasterize(b, width)
	if len(ca) == 0 || len(cb) == 0 {
		return 0
	}
	small, large := ca, cb
	if len(cb) < len(ca) {
		small, large = cb, ca
	}
	inter := 0
	for c := range small {
		if _, ok := large[c]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(small))
}

// PathLength sums great-circle segment lengths.
func PathLength(path []models.Coord) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

func newProjection(a, b []models.Coord, width float64) projection {
	sum := 0.0
	for _, c := range a {
		sum += c.Lat
	}
	for _, c := range b {
		sum += c.Lat
	}
	lat0 := sum / float64(len(a)+len(b))

	longest := math.Max(PathLength(a), PathLength(b))
	area := 2 * width * (longest + 2*width)
	size := math.Max(minCellMeters, math.Sqrt(area/maxCells))
	return projection{cosLat: math.Cos(toRad(lat0)), size: size}
}

func (p projection) rasterize(path []models.Coord, width float64) map[cell]struct{} {
	out := make(map[cell]struct{})
	xs := make([]float64, len(path))
	ys := make([]float64, len(path))
	for i, c := range path {
		xs[i], ys[i] = p.point(c)
	}
	if len(path) == 1 {
		p.fillSegment(out, xs[0], ys[0], xs[0], ys[0], width)
		return out
	}
	for i := 1; i < len(path); i++ {
		p.fillSegment(out, xs[i-1], ys[i-1], xs[i], ys[i], width)
	}
	return out
}

// fillSegment marks every cell whose center lies within width of the
// segment. Each column is filled from the exact extent of the buffered
// segment on it, so the work tracks the corridor area rather than the
// segment's bounding box.
func (p projection) fillSegment(out map[cell]struct{}, x1, y1, x2, y2, width float64) {
	minX := int32(math.Floor((math.Min(x1, x2) - width) / p.size))
	maxX := int32(math.Floor((math.Max(x1, x2) + width) / p.size))
	for i := minX; i <= maxX; i++ {
		cx := (float64(i) + 0.5) * p.size
		lo, hi, ok := capsuleColumn(cx, x1, y1, x2, y2, width)
		if !ok {
			continue
		}
		jlo := int32(math.Ceil(lo/p.size - 0.5))
		jhi := int32(math.Floor(hi/p.size - 0.5))
		for j := jlo; j <= jhi; j++ {
			out[cell{i, j}] = struct{}{}
		}
	}
}

// capsuleColumn returns the y extent of the vertical line x=cx inside the
// width buffer of segment (x1,y1)-(x2,y2). The buffer is convex, so the
// extent is the hull of its end discs and its rectangle on that line.
func capsuleColumn(cx, x1, y1, x2, y2, width float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	grow := func(a, b float64) {
		lo, hi, ok = math.Min(lo, a), math.Max(hi, b), true
	}
	w2 := width * width
	for _, e := range [2][2]float64{{x1, y1}, {x2, y2}} {
		if dx := cx - e[0]; dx*dx <= w2 {
			h := math.Sqrt(w2 - dx*dx)
			grow(e[1]-h, e[1]+h)
		}
	}

	dx, dy := x2-x1, y2-y1
	l := math.Hypot(dx, dy)
	if l == 0 {
		return lo, hi, ok
	}
	ux, uy := dx/l, dy/l
	// along the segment: (cx-x1)*ux + (y-y1)*uy in [0, l]
	aLo, aHi, aok := between(uy, (cx-x1)*ux-y1*uy, 0, l)
	// across it: (y-y1)*ux - (cx-x1)*uy in [-width, width]
	cLo, cHi, cok := between(ux, -(cx-x1)*uy-y1*ux, -width, width)
	if aok && cok {
		if a, b := math.Max(aLo, cLo), math.Min(aHi, cHi); a <= b {
			grow(a, b)
		}
	}
	return lo, hi, ok
}

// between solves lo <= a*y+b <= hi for y.
func between(a, b, lo, hi float64) (float64, float64, bool) {
	if a == 0 {
		if b >= lo && b <= hi {
			return math.Inf(-1), math.Inf(1), true
		}
		return 0, 0, false
	}
	y1, y2 := (lo-b)/a, (hi-b)/a
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return y1, y2, true
}
