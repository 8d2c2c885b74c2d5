package mlpac

// VersionCoord is a tracked (major, minor) version pair, i.e. a pipeline
// component's (API, Inc) at one position. Values are not clamped; Matrix
// operations ignore coordinates outside the grid [0, M] x [0, N].
type VersionCoord struct {
	Major uint32
	Minor uint32
}

// Matrix is a (M+1) x (N+1) non-negative probability distribution over
// VersionCoord values, stored row-major. Entries always sum to 1.
type Matrix struct {
	M, N int
	data []float64
}

// NewUniformMatrix builds a Matrix over major in [0,M], minor in [0,N],
// every entry initialized to 1/((M+1)(N+1)).
func NewUniformMatrix(m, n int) *Matrix {
	rows, cols := m+1, n+1
	data := make([]float64, rows*cols)
	uniform := 1.0 / float64(rows*cols)
	for i := range data {
		data[i] = uniform
	}
	return &Matrix{M: m, N: n, data: data}
}

func (mx *Matrix) index(major, minor int) int { return major*(mx.N+1) + minor }

func (mx *Matrix) inRange(major, minor int) bool {
	return major >= 0 && major <= mx.M && minor >= 0 && minor <= mx.N
}

// At returns the probability mass at (major, minor); 0 if out of range.
func (mx *Matrix) At(major, minor int) float64 {
	if !mx.inRange(major, minor) {
		return 0
	}
	return mx.data[mx.index(major, minor)]
}

// Sum returns the grand total across all entries, used by callers (mostly
// tests) to verify the sum-to-1 invariant holds within tolerance.
func (mx *Matrix) Sum() float64 {
	var total float64
	for _, v := range mx.data {
		total += v
	}
	return total
}

// ScaleEntry applies VSM[f] <- (1-alpha)*VSM[f] + alpha*E_{m,n}, the
// indicator matrix at (m, n). A no-op if (m, n) is
// out of the tracked range: ScaleEntry clamps by skipping entirely, since
// an out-of-range coordinate cannot be the target of an indicator mass and
// blending toward nothing must leave the distribution's sum at 1.
func (mx *Matrix) ScaleEntry(alpha float64, m, n int) {
	mx.ScaleBatch(alpha, []VersionCoord{{Major: uint32(m), Minor: uint32(n)}})
}

// ScaleBatch applies VSM[f] <- (1-alpha)*VSM[f] + alpha*(1/|V|)*sum E_{m,n}
// for (m,n) in targets. A no-op if targets is empty. Coordinates outside
// the tracked grid are dropped from the batch (and do not count toward
// |V|), so the result still sums to 1.
func (mx *Matrix) ScaleBatch(alpha float64, targets []VersionCoord) {
	if len(targets) == 0 {
		return
	}
	valid := make([]VersionCoord, 0, len(targets))
	for _, t := range targets {
		if mx.inRange(int(t.Major), int(t.Minor)) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return
	}
	share := alpha / float64(len(valid))
	for i := range mx.data {
		mx.data[i] *= 1 - alpha
	}
	for _, t := range valid {
		mx.data[mx.index(int(t.Major), int(t.Minor))] += share
	}
}

// AllCoords enumerates every tracked (major, minor) pair in row-major
// order, the "ALL" grid referenced by the SL/UL update rules.
func (mx *Matrix) AllCoords() []VersionCoord {
	out := make([]VersionCoord, 0, (mx.M+1)*(mx.N+1))
	for m := 0; m <= mx.M; m++ {
		for n := 0; n <= mx.N; n++ {
			out = append(out, VersionCoord{Major: uint32(m), Minor: uint32(n)})
		}
	}
	return out
}

// scoredCoord pairs a coordinate with its current score, used by the
// ascending argsort the eviction sweep walks.
type scoredCoord struct {
	coord VersionCoord
	score float64
}

// ascendingOrder returns every tracked coordinate sorted by ascending
// score (least-probable first), the per-position argsort the eviction
// sweep advances a pointer through.
func (mx *Matrix) ascendingOrder() []scoredCoord {
	coords := mx.AllCoords()
	out := make([]scoredCoord, len(coords))
	for i, c := range coords {
		out[i] = scoredCoord{coord: c, score: mx.At(int(c.Major), int(c.Minor))}
	}
	sortScoredCoordsAscending(out)
	return out
}

func sortScoredCoordsAscending(s []scoredCoord) {
	// Small fixed grids (spec recommends M,N ~ 3), so insertion sort keeps
	// this allocation-free and avoids pulling in sort.Slice's closures.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score < s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
