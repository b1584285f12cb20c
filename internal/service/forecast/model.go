// Package forecast implements an additive trend + weekly seasonality model
// with an optional auxiliary regressor, fitted by least squares.
package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/pkg/util"

	"gonum.org/v1/gonum/mat"
)

const (
	artifactFormat = "fincast.additive.v1"
	secondsPerDay  = 86400.0
	weekDays       = 7.0
)

// Model is a fitted additive model. Coef is laid out as
// [intercept, slope, sin_1, cos_1, ..., sin_k, cos_k, regressor?].
type Model struct {
	Format         string    `json:"format"`
	Origin         float64   `json:"origin_days"`
	Scale          float64   `json:"scale_days"`
	WeeklyOrder    int       `json:"weekly_order"`
	Coef           []float64 `json:"coef"`
	UsesAuxiliary  bool      `json:"uses_auxiliary_regressor"`
	RegressorMean  float64   `json:"regressor_mean,omitempty"`
	RegressorScale float64   `json:"regressor_scale,omitempty"`
	Sigma          float64   `json:"sigma"`
	Z              float64   `json:"z"`
	Samples        int       `json:"samples"`
	FittedAt       time.Time `json:"fitted_at"`
}

func (m *Model) UsesRegressor() bool { return m.UsesAuxiliary }

func (m *Model) Marshal() ([]byte, error) { return json.Marshal(m) }

// Predict evaluates the model at every frame date. The frame must carry a
// regressor value per row when the model uses one.
func (m *Model) Predict(frame models.Frame) ([]models.Prediction, error) {
	if err := m.checkFrame(frame); err != nil {
		return nil, err
	}
	x := m.design(frame)
	beta := mat.NewVecDense(len(m.Coef), m.Coef)
	var yhat mat.VecDense
	yhat.MulVec(x, beta)

	band := m.Z * m.Sigma
	out := make([]models.Prediction, frame.Len())
	for i, d := range frame.Dates {
		p := yhat.AtVec(i)
		out[i] = models.Prediction{Timestamp: d, Point: p, Lower: p - band, Upper: p + band}
	}
	return out, nil
}

// Components splits the prediction into its additive parts. Only the trend
// carries an uncertainty band.
func (m *Model) Components(frame models.Frame) (map[string]models.ComponentSeries, error) {
	if err := m.checkFrame(frame); err != nil {
		return nil, err
	}
	x := m.design(frame)
	n := frame.Len()
	band := m.Z * m.Sigma

	trend := newSeries(frame)
	weekly := newSeries(frame)
	var extra models.ComponentSeries
	if m.UsesAuxiliary {
		extra = newSeries(frame)
	}

	for i := 0; i < n; i++ {
		t := m.Coef[0] + m.Coef[1]*x.At(i, 1)
		trend.Values[i], trend.Lower[i], trend.Upper[i] = t, t-band, t+band

		w := 0.0
		for j := 2; j < 2+2*m.WeeklyOrder; j++ {
			w += m.Coef[j] * x.At(i, j)
		}
		weekly.Values[i], weekly.Lower[i], weekly.Upper[i] = w, w, w

		if m.UsesAuxiliary {
			last := len(m.Coef) - 1
			r := m.Coef[last] * x.At(i, last)
			extra.Values[i], extra.Lower[i], extra.Upper[i] = r, r, r
		}
	}

	out := map[string]models.ComponentSeries{
		models.ComponentTrend:  trend,
		models.ComponentWeekly: weekly,
	}
	if m.UsesAuxiliary {
		out[models.ComponentExtraRegressors] = extra
	}
	return out, nil
}

func (m *Model) checkFrame(frame models.Frame) error {
	if frame.Len() == 0 {
		return fmt.Errorf("empty frame")
	}
	if m.UsesAuxiliary && len(frame.Regressor) != frame.Len() {
		return fmt.Errorf("model uses a regressor: frame has %d regressor values for %d rows", len(frame.Regressor), frame.Len())
	}
	return nil
}

// design builds the feature matrix for frame.
func (m *Model) design(frame models.Frame) *mat.Dense {
	p := m.params()
	x := mat.NewDense(frame.Len(), p, nil)
	for i, d := range frame.Dates {
		days := epochDays(d)
		x.Set(i, 0, 1)
		x.Set(i, 1, (days-m.Origin)/m.Scale)
		for k := 1; k <= m.WeeklyOrder; k++ {
			arg := 2 * math.Pi * float64(k) * days / weekDays
			x.Set(i, 2*k, math.Sin(arg))
			x.Set(i, 2*k+1, math.Cos(arg))
		}
		if m.UsesAuxiliary {
			x.Set(i, p-1, (frame.Regressor[i]-m.RegressorMean)/m.RegressorScale)
		}
	}
	return x
}

func (m *Model) params() int {
	p := 2 + 2*m.WeeklyOrder
	if m.UsesAuxiliary {
		p++
	}
	return p
}

func newSeries(frame models.Frame) models.ComponentSeries {
	n := frame.Len()
	s := models.ComponentSeries{
		Dates:  make([]string, n),
		Values: make([]float64, n),
		Lower:  make([]float64, n),
		Upper:  make([]float64, n),
	}
	for i, d := range frame.Dates {
		s.Dates[i] = util.FormatDate(d)
	}
	return s
}

func epochDays(t time.Time) float64 {
	return float64(t.Unix()) / secondsPerDay
}
