package strategy

// emaState is an exponential moving average that counts its warmup.
type emaState struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) Update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *emaState) Ready() bool {
	return e.warmup >= e.period
}

func (e *emaState) Value() float64 { return e.value }

// ema runs a fresh EMA over xs.
func ema(xs []float64, period int) (float64, bool) {
	e := newEMA(period)
	for _, x := range xs {
		e.Update(x)
	}
	return e.Value(), e.Ready()
}

// rsi is Wilder's RSI over xs; ok is false until period changes are seen.
func rsi(xs []float64, period int) (float64, bool) {
	if period <= 0 || len(xs) <= period {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		g, l := change(xs[i-1], xs[i])
		gain += g
		loss += l
	}
	avgGain, avgLoss := gain/float64(period), loss/float64(period)
	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(xs); i++ {
		g, l := change(xs[i-1], xs[i])
		avgGain = (1-alpha)*avgGain + alpha*g
		avgLoss = (1-alpha)*avgLoss + alpha*l
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func maxSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
