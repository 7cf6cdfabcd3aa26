// Package linefit implements the straight-line regression model used by
// boundary scenario S3: three parameters (slope m, intercept b, noise
// sigma) fit to a loaded (x, y) data set of 30 rows.
package linefit

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jihwankim/dns-sampler/internal/model/box"
	"github.com/jihwankim/dns-sampler/internal/rng"
)

// NumParams is m, b, sigma.
const NumParams = 3

const (
	slopeLo, slopeHi         = -10.0, 10.0
	interceptLo, interceptHi = -10.0, 10.0
	logSigmaLo, logSigmaHi   = math.Ln10 * -3, math.Ln10 * 1 // sigma in (0.001, 10), log-uniform
)

var paramNames = []string{"m", "b", "sigma"}

// Point is one observed (x, y) row.
type Point struct {
	X, Y float64
}

// LoadCSV reads a headerless two-column CSV of (x, y) rows.
func LoadCSV(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("linefit: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("linefit: parse %s: %w", path, err)
	}

	points := make([]Point, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("linefit: row %d has fewer than 2 columns", i)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("linefit: row %d: %w", i, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("linefit: row %d: %w", i, err)
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points, nil
}

// Model is a 3-parameter uniform-box model (one coordinate per
// parameter) mapped into its physical ranges before evaluating the
// Gaussian likelihood against Data.
type Model struct {
	*box.Box
	Data []Point
}

// New draws a fresh Model from the prior over a fixed data set.
func New(stream *rng.Stream, data []Point) *Model {
	return &Model{Box: box.New(stream, NumParams), Data: data}
}

func lerp(u, lo, hi float64) float64 { return lo + (hi-lo)*u }

// Slope is the current m value.
func (m *Model) Slope() float64 { return lerp(m.Us[0], slopeLo, slopeHi) }

// Intercept is the current b value.
func (m *Model) Intercept() float64 { return lerp(m.Us[1], interceptLo, interceptHi) }

// Sigma is the current noise standard deviation.
func (m *Model) Sigma() float64 { return math.Exp(lerp(m.Us[2], logSigmaLo, logSigmaHi)) }

// LogLikelihood is the sum of Gaussian log densities of the residuals
// y_i - (m*x_i + b) under N(0, sigma^2).
func (m *Model) LogLikelihood() float64 {
	slope, intercept, sigma := m.Slope(), m.Intercept(), m.Sigma()
	logSigma := math.Log(sigma)
	var total float64
	for _, p := range m.Data {
		resid := p.Y - (slope*p.X + intercept)
		total += -0.5*math.Log(2*math.Pi) - logSigma - 0.5*(resid/sigma)*(resid/sigma)
	}
	return total
}

// ParameterNames lists m, b, sigma.
func (m *Model) ParameterNames() []string { return paramNames }

// String renders the physical m, b, sigma values as CSV.
func (m *Model) String() string {
	return fmt.Sprintf("%s,%s,%s",
		strconv.FormatFloat(m.Slope(), 'g', -1, 64),
		strconv.FormatFloat(m.Intercept(), 'g', -1, 64),
		strconv.FormatFloat(m.Sigma(), 'g', -1, 64))
}
