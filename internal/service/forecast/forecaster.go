package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var _ service.Forecaster = (*Forecaster)(nil)

// ridge keeps the normal equations solvable for short or flat series.
const ridge = 1e-8

// Option configures Forecaster.
type Option func(*Forecaster)

// Forecaster fits Models.
type Forecaster struct {
	weeklyOrder int
	z           float64
	now         func() time.Time
}

// New creates a Forecaster with weekly Fourier order 3 and an 80% interval.
func New(opts ...Option) *Forecaster {
	f := &Forecaster{weeklyOrder: 3, z: 1.2816, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithWeeklyOrder sets the number of weekly Fourier pairs.
func WithWeeklyOrder(k int) Option {
	return func(f *Forecaster) {
		if k >= 0 {
			f.weeklyOrder = k
		}
	}
}

// WithIntervalZ sets the z-score of the uncertainty band.
func WithIntervalZ(z float64) Option {
	return func(f *Forecaster) {
		if z > 0 {
			f.z = z
		}
	}
}

// Fit solves the least squares problem for frame. A regressor column with no
// variance is ignored and the model is univariate.
func (f *Forecaster) Fit(ctx context.Context, frame models.Frame) (service.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := frame.Len()
	if len(frame.Y) != n {
		return nil, fmt.Errorf("frame has %d targets for %d dates", len(frame.Y), n)
	}
	if frame.HasRegressor() && len(frame.Regressor) != n {
		return nil, fmt.Errorf("frame has %d regressor values for %d dates", len(frame.Regressor), n)
	}

	m := &Model{
		Format:      artifactFormat,
		WeeklyOrder: f.weeklyOrder,
		Z:           f.z,
		Samples:     n,
		FittedAt:    f.now().UTC(),
		Scale:       1,
	}
	if frame.HasRegressor() {
		mean, std := stat.MeanStdDev(frame.Regressor, nil)
		if std > 0 && !math.IsNaN(std) {
			m.UsesAuxiliary = true
			m.RegressorMean, m.RegressorScale = mean, std
		}
	}
	if p := m.params(); n <= p {
		return nil, fmt.Errorf("need more than %d samples, got %d", p, n)
	}

	m.Origin = epochDays(frame.Dates[0])
	if span := epochDays(frame.Dates[n-1]) - m.Origin; span > 1 {
		m.Scale = span
	}

	x := m.design(frame)
	y := mat.NewVecDense(n, append([]float64(nil), frame.Y...))

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 1; i < m.params(); i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridge)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("solve least squares: %w", err)
	}
	m.Coef = mat.Col(nil, 0, &beta)

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	resid := make([]float64, n)
	floats.SubTo(resid, frame.Y, fitted.RawVector().Data)
	m.Sigma = stat.PopStdDev(resid, nil)
	return m, nil
}

// Unmarshal restores a Model from its artifact bytes.
func (f *Forecaster) Unmarshal(data []byte) (service.Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if m.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported model artifact format %q", m.Format)
	}
	if len(m.Coef) != m.params() {
		return nil, fmt.Errorf("model artifact has %d coefficients, want %d", len(m.Coef), m.params())
	}
	if m.Scale == 0 {
		m.Scale = 1
	}
	return &m, nil
}

// Score compares in-sample predictions against actual values.
func Score(actual []float64, predicted []models.Prediction, usesRegressor bool, horizon int) models.FitMetrics {
	fm := models.FitMetrics{UsesAuxiliaryRegressor: usesRegressor, Horizon: horizon}
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return fm
	}
	var absSum, sqSum, pctSum float64
	pctN := 0
	for i := 0; i < n; i++ {
		e := actual[i] - predicted[i].Point
		absSum += math.Abs(e)
		sqSum += e * e
		if actual[i] != 0 {
			pctSum += math.Abs(e / actual[i])
			pctN++
		}
	}
	fm.Samples = n
	fm.MAE = absSum / float64(n)
	fm.RMSE = math.Sqrt(sqSum / float64(n))
	if pctN > 0 {
		fm.MAPE = 100 * pctSum / float64(pctN)
	}
	return fm
}
