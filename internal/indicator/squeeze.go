package indicator

// SqueezeState classifies the Bollinger/Keltner band relationship.
type SqueezeState string

const (
	SqueezeOn   SqueezeState = "ON"
	SqueezeOff  SqueezeState = "OFF"
	SqueezeNone SqueezeState = "NONE"
)

// MomentumColor is the 4-way classification of §4.2.2 step 5.
type MomentumColor string

const (
	MomentumLime   MomentumColor = "LIME"
	MomentumGreen  MomentumColor = "GREEN"
	MomentumRed    MomentumColor = "RED"
	MomentumMaroon MomentumColor = "MAROON"
)

// SqueezeParams are the tunables of §4.2.2.
type SqueezeParams struct {
	BBLength     int
	BBMult       float64
	KCLength     int
	KCMult       float64
	UseTrueRange bool
}

// DefaultSqueezeParams returns the documented default parameters.
func DefaultSqueezeParams() SqueezeParams {
	return SqueezeParams{BBLength: 20, BBMult: 2.0, KCLength: 20, KCMult: 1.5, UseTrueRange: true}
}

type squeezeResult struct {
	state         SqueezeState
	momentum      []float64
	momentumColor MomentumColor
}

// computeSqueeze implements §4.2.2: Bollinger/Keltner squeeze state plus
// an OLS-fitted momentum line and its 4-color classification.
func computeSqueeze(high, low, close []float64, p SqueezeParams) squeezeResult {
	n := len(close)

	basis := make([]float64, n)
	upperBB := make([]float64, n)
	lowerBB := make([]float64, n)
	for i := 0; i < n; i++ {
		b, ok := sma(close, i, p.BBLength)
		if !ok {
			continue
		}
		dev, ok := stdev(close, i, p.BBLength)
		if !ok {
			continue
		}
		basis[i] = b
		upperBB[i] = b + p.BBMult*dev
		lowerBB[i] = b - p.BBMult*dev
	}

	ma := make([]float64, n)
	for i := 0; i < n; i++ {
		if v, ok := sma(close, i, p.KCLength); ok {
			ma[i] = v
		}
	}

	var rangeSeries []float64
	if p.UseTrueRange {
		rangeSeries = trueRange(high, low, close)
	} else {
		rangeSeries = make([]float64, n)
		for i := 0; i < n; i++ {
			rangeSeries[i] = high[i] - low[i]
		}
	}
	rangeMA := make([]float64, n)
	for i := 0; i < n; i++ {
		if v, ok := sma(rangeSeries, i, p.KCLength); ok {
			rangeMA[i] = v
		}
	}

	upperKC := make([]float64, n)
	lowerKC := make([]float64, n)
	for i := 0; i < n; i++ {
		upperKC[i] = ma[i] + rangeMA[i]*p.KCMult
		lowerKC[i] = ma[i] - rangeMA[i]*p.KCMult
	}

	state := SqueezeNone
	if n > 0 {
		last := n - 1
		squeezeOn := lowerBB[last] > lowerKC[last] && upperBB[last] < upperKC[last]
		squeezeOff := lowerBB[last] < lowerKC[last] && upperBB[last] > upperKC[last]
		switch {
		case squeezeOn:
			state = SqueezeOn
		case squeezeOff:
			state = SqueezeOff
		}
	}

	highestHigh := rollingMax(high, p.KCLength)
	lowestLow := rollingMin(low, p.KCLength)
	smaClose := make([]float64, n)
	for i := 0; i < n; i++ {
		if v, ok := sma(close, i, p.KCLength); ok {
			smaClose[i] = v
		}
	}

	momentumSource := make([]float64, n)
	for i := 0; i < n; i++ {
		avgHL := (highestHigh[i] + lowestLow[i]) / 2
		avgBase := (avgHL + smaClose[i]) / 2
		momentumSource[i] = close[i] - avgBase
	}

	momentum := make([]float64, n)
	for i := 0; i < n; i++ {
		if i+1 < p.KCLength {
			continue
		}
		window := momentumSource[i-p.KCLength+1 : i+1]
		slope, intercept := olsSlopeIntercept(window)
		momentum[i] = slope*float64(p.KCLength-1) + intercept
	}

	var momColor MomentumColor
	if n > 0 {
		last := n - 1
		v := momentum[last]
		var prev float64
		if n > 1 {
			prev = momentum[last-1]
		}
		switch {
		case v > 0 && v > prev:
			momColor = MomentumLime
		case v > 0:
			momColor = MomentumGreen
		case v < prev:
			momColor = MomentumRed
		default:
			momColor = MomentumMaroon
		}
	}

	return squeezeResult{state: state, momentum: momentum, momentumColor: momColor}
}
