package usecase

import (
	"time"

	"FinCast/internal/domain/models"
	"FinCast/pkg/util"
)

// univariateFrame turns ordered history into a fit frame on close prices.
func univariateFrame(history []models.HistoryPoint) models.Frame {
	f := models.Frame{
		Dates: make([]time.Time, len(history)),
		Y:     make([]float64, len(history)),
	}
	for i, p := range history {
		f.Dates[i] = p.Timestamp
		f.Y[i] = p.Close
	}
	return f
}

// joinReference left-joins the reference close onto history by timestamp and
// drops rows without a reference value.
func joinReference(history, reference []models.HistoryPoint) models.Frame {
	ref := make(map[int64]float64, len(reference))
	for _, p := range reference {
		ref[p.Timestamp.UnixNano()] = p.Close
	}
	f := models.Frame{
		Dates:     make([]time.Time, 0, len(history)),
		Y:         make([]float64, 0, len(history)),
		Regressor: make([]float64, 0, len(history)),
	}
	for _, p := range history {
		v, ok := ref[p.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		f.Dates = append(f.Dates, p.Timestamp)
		f.Y = append(f.Y, p.Close)
		f.Regressor = append(f.Regressor, v)
	}
	return f
}

// futureDates returns every fitted date followed by horizon daily periods.
func futureDates(fitted []time.Time, horizon int) []time.Time {
	out := make([]time.Time, 0, len(fitted)+horizon)
	out = append(out, fitted...)
	if len(fitted) == 0 {
		return out
	}
	return append(out, util.DailySeries(fitted[len(fitted)-1], horizon)...)
}

// fillRegressor aligns the reference forecast with dates. Rows are matched
// on exact timestamp first, then on UTC day. Gaps are forward filled, then
// backward filled; if nothing matched every row gets lastKnown, or fallback
// when there is no known reference value either.
func fillRegressor(dates []time.Time, forecast []models.ForecastPoint, lastKnown *float64, fallback float64) []float64 {
	exact := make(map[int64]float64, len(forecast))
	byDay := make(map[int64]float64, len(forecast))
	for _, p := range forecast {
		exact[p.Timestamp.UnixNano()] = p.Point
		byDay[util.DayUTC(p.Timestamp).Unix()] = p.Point
	}

	out := make([]float64, len(dates))
	have := make([]bool, len(dates))
	for i, d := range dates {
		if v, ok := exact[d.UnixNano()]; ok {
			out[i], have[i] = v, true
		} else if v, ok := byDay[util.DayUTC(d).Unix()]; ok {
			out[i], have[i] = v, true
		}
	}

	first := -1
	for i := range out {
		if have[i] {
			if first < 0 {
				first = i
			}
			continue
		}
		if i > 0 && have[i-1] {
			out[i], have[i] = out[i-1], true
		}
	}
	if first > 0 {
		for i := 0; i < first; i++ {
			out[i], have[i] = out[first], true
		}
	}
	if first >= 0 {
		return out
	}

	v := fallback
	if lastKnown != nil {
		v = *lastKnown
	}
	for i := range out {
		out[i] = v
	}
	return out
}
