package returns

import (
	"math"
	"sort"
	"time"
)

// CashFlow is one dated amount. Purchases are negative, proceeds or the
// current value positive.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

const (
	xirrGuess         = 0.1
	xirrMaxIterations = 100
	xirrTolerance     = 1e-7
	xirrMaxResidual   = 1e-3
)

// XIRR solves for the annual rate that zeroes the net present value of flows
// with Newton-Raphson, returning it as a percentage. It reports false when
// the flows cannot have a root (no sign change) or the iteration does not
// converge.
func XIRR(flows []CashFlow) (float64, bool) {
	if len(flows) < 2 {
		return 0, false
	}

	sorted := make([]CashFlow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var hasIn, hasOut bool
	years := make([]float64, len(sorted))
	first := sorted[0].Date
	for i, f := range sorted {
		years[i] = f.Date.Sub(first).Hours() / 24 / 365
		if f.Amount > 0 {
			hasIn = true
		}
		if f.Amount < 0 {
			hasOut = true
		}
	}
	if !hasIn || !hasOut {
		return 0, false
	}

	npv := func(rate float64) float64 {
		var sum float64
		for i, f := range sorted {
			sum += f.Amount / math.Pow(1+rate, years[i])
		}
		return sum
	}
	dnpv := func(rate float64) float64 {
		var sum float64
		for i, f := range sorted {
			sum -= years[i] * f.Amount / math.Pow(1+rate, years[i]+1)
		}
		return sum
	}

	rate := xirrGuess
	for i := 0; i < xirrMaxIterations; i++ {
		deriv := dnpv(rate)
		if math.Abs(deriv) < 1e-12 {
			break
		}
		next := rate - npv(rate)/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		if next <= -1 {
			// keep 1+rate positive
			next = (rate - 1) / 2
		}
		if math.Abs(next-rate) < xirrTolerance {
			rate = next
			break
		}
		rate = next
	}

	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= -1 || math.Abs(npv(rate)) > xirrMaxResidual {
		return 0, false
	}
	return rate * 100, true
}
