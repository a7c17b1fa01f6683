package indicators

import (
	"github.com/markcheno/go-talib"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Default lookback periods for the technical indicator catalog.
const (
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
	BollingerPeriod  = 20
	BollingerStdDev  = 2.0
	DonchianPeriod   = 20
	ATRPeriod        = 14
	ROCPeriod        = 10
	MomentumPeriod   = 10
	StochasticPeriod = 14
	StochasticSlowK  = 3
	StochasticSlowD  = 3
	RSIPeriod        = 14
	CCIPeriod        = 14
	WilliamsRPeriod  = 14
	Week52Window     = 252
)

// SMA is the simple moving average of closes over the period.
func SMA(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Sma(closes, period)
}

// EMA is the exponential moving average of closes over the period.
func EMA(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Ema(closes, period)
}

// WMA is the linearly weighted moving average of closes over the period.
func WMA(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Wma(closes, period)
}

// MACD returns the MACD line, signal line and histogram.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	if len(closes) < slow+signal {
		return nil, nil, nil
	}
	return talib.Macd(closes, fast, slow, signal)
}

// BollingerBands returns the upper, middle and lower bands using an SMA
// middle band.
func BollingerBands(closes []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	if len(closes) < period {
		return nil, nil, nil
	}
	return talib.BBands(closes, period, stdDev, stdDev, 0)
}

// DonchianChannel returns the rolling high, midpoint and rolling low.
func DonchianChannel(highs, lows []float64, period int) (upper, middle, lower []float64) {
	if len(highs) < period || len(lows) < period {
		return nil, nil, nil
	}
	upper = talib.Max(highs, period)
	lower = talib.Min(lows, period)
	middle = make([]float64, len(upper))
	for i := range upper {
		middle[i] = (upper[i] + lower[i]) / 2
	}
	return upper, middle, lower
}

// ATR is the average true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Atr(highs, lows, closes, period)
}

// ROC is the rate of change in percent over the period.
func ROC(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Roc(closes, period)
}

// Momentum is the absolute price change over the period.
func Momentum(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Mom(closes, period)
}

// Stochastic returns the slow %K and %D oscillator lines.
func Stochastic(highs, lows, closes []float64, fastK, slowK, slowD int) (k, d []float64) {
	if len(closes) < fastK+slowK+slowD {
		return nil, nil
	}
	return talib.Stoch(highs, lows, closes, fastK, slowK, 0, slowD, 0)
}

// RSI is the relative strength index.
func RSI(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	return talib.Rsi(closes, period)
}

// CCI is the commodity channel index.
func CCI(highs, lows, closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Cci(highs, lows, closes, period)
}

// WilliamsR is the Williams %R oscillator.
func WilliamsR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.WillR(highs, lows, closes, period)
}

// Week52High is the highest close in the trailing window. Shorter histories
// use the whole series.
func Week52High(closes *timeseries.Series, window int) float64 {
	values := closes.Values()
	if len(values) == 0 {
		return 0
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Week52Low is the lowest close in the trailing window.
func Week52Low(closes *timeseries.Series, window int) float64 {
	values := closes.Values()
	if len(values) == 0 {
		return 0
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// DistanceFrom52WeekHigh is the fractional distance of the latest close below
// the trailing high, a negative number unless at the high.
func DistanceFrom52WeekHigh(closes *timeseries.Series, window int) float64 {
	if closes.Empty() {
		return 0
	}
	high := Week52High(closes, window)
	if high == 0 {
		return 0
	}
	_, current := closes.Last()
	return (current - high) / high
}

// TechnicalSnapshot holds the latest value of each catalog indicator for one
// symbol, the shape served by the analysis API.
type TechnicalSnapshot struct {
	SMA20               float64 `json:"sma_20"`
	SMA50               float64 `json:"sma_50"`
	SMA200              float64 `json:"sma_200"`
	EMA12               float64 `json:"ema_12"`
	EMA26               float64 `json:"ema_26"`
	WMA20               float64 `json:"wma_20"`
	MACD                float64 `json:"macd"`
	MACDSignal          float64 `json:"macd_signal"`
	MACDHistogram       float64 `json:"macd_histogram"`
	BollingerUpper      float64 `json:"bollinger_upper"`
	BollingerMiddle     float64 `json:"bollinger_middle"`
	BollingerLower      float64 `json:"bollinger_lower"`
	DonchianUpper       float64 `json:"donchian_upper"`
	DonchianMiddle      float64 `json:"donchian_middle"`
	DonchianLower       float64 `json:"donchian_lower"`
	ATR                 float64 `json:"atr"`
	RSI                 float64 `json:"rsi"`
	ROC                 float64 `json:"roc"`
	Momentum            float64 `json:"momentum"`
	StochasticK         float64 `json:"stochastic_k"`
	StochasticD         float64 `json:"stochastic_d"`
	CCI                 float64 `json:"cci"`
	WilliamsR           float64 `json:"williams_r"`
	Week52High          float64 `json:"week_52_high"`
	Week52Low           float64 `json:"week_52_low"`
	DistanceFrom52WHigh float64 `json:"distance_from_52w_high"`
}

func lastOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// ComputeTechnicalSnapshot evaluates the close-only indicator catalog on one
// symbol's price history. Indicators without enough history report 0.
func ComputeTechnicalSnapshot(closes *timeseries.Series) TechnicalSnapshot {
	values := closes.Values()
	snapshot := TechnicalSnapshot{
		SMA20:               lastOf(SMA(values, 20)),
		SMA50:               lastOf(SMA(values, 50)),
		SMA200:              lastOf(SMA(values, 200)),
		EMA12:               lastOf(EMA(values, 12)),
		EMA26:               lastOf(EMA(values, 26)),
		RSI:                 lastOf(RSI(values, RSIPeriod)),
		ROC:                 lastOf(ROC(values, ROCPeriod)),
		Momentum:            lastOf(Momentum(values, MomentumPeriod)),
		Week52High:          Week52High(closes, Week52Window),
		Week52Low:           Week52Low(closes, Week52Window),
		DistanceFrom52WHigh: DistanceFrom52WeekHigh(closes, Week52Window),
	}

	macd, signal, hist := MACD(values, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
	snapshot.MACD = lastOf(macd)
	snapshot.MACDSignal = lastOf(signal)
	snapshot.MACDHistogram = lastOf(hist)

	upper, middle, lower := BollingerBands(values, BollingerPeriod, BollingerStdDev)
	snapshot.BollingerUpper = lastOf(upper)
	snapshot.BollingerMiddle = lastOf(middle)
	snapshot.BollingerLower = lastOf(lower)

	// Daily closes carry no intraday highs/lows, so the range-based
	// indicators run on closes for all three inputs.
	dUpper, dMiddle, dLower := DonchianChannel(values, values, DonchianPeriod)
	snapshot.DonchianUpper = lastOf(dUpper)
	snapshot.DonchianMiddle = lastOf(dMiddle)
	snapshot.DonchianLower = lastOf(dLower)

	snapshot.WMA20 = lastOf(WMA(values, 20))
	snapshot.ATR = lastOf(ATR(values, values, values, ATRPeriod))
	snapshot.CCI = lastOf(CCI(values, values, values, CCIPeriod))
	snapshot.WilliamsR = lastOf(WilliamsR(values, values, values, WilliamsRPeriod))

	k, d := Stochastic(values, values, values, StochasticPeriod, StochasticSlowK, StochasticSlowD)
	snapshot.StochasticK = lastOf(k)
	snapshot.StochasticD = lastOf(d)

	return snapshot
}
