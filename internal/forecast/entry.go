// Package forecast generates synthetic five-day weather forecasts.
//
// A Generator combines an injected Clock and random Source to produce
// exactly DaysAhead entries dated tomorrow onward. The package holds no
// process-wide state; callers own the Source and share it across requests.
package forecast

// DaysAhead is the number of entries produced per forecast, one per day
// starting tomorrow.
const DaysAhead = 5

// Temperature bounds in degrees Celsius. MaxCelsius is exclusive.
const (
	MinCelsius = -20
	MaxCelsius = 55
)

// fahrenheitDivisor is the approximation of 5/9 used by Fahrenheit.
const fahrenheitDivisor = 0.5556

// Summary is a descriptive weather label.
type Summary string

const (
	SummaryFreezing   Summary = "Freezing"
	SummaryBracing    Summary = "Bracing"
	SummaryChilly     Summary = "Chilly"
	SummaryCool       Summary = "Cool"
	SummaryMild       Summary = "Mild"
	SummaryWarm       Summary = "Warm"
	SummaryBalmy      Summary = "Balmy"
	SummaryHot        Summary = "Hot"
	SummarySweltering Summary = "Sweltering"
	SummaryScorching  Summary = "Scorching"
)

// summaries is the ordered label vocabulary. Index order is part of the
// contract: a Source drawing index i selects summaries[i].
var summaries = [...]Summary{
	SummaryFreezing,
	SummaryBracing,
	SummaryChilly,
	SummaryCool,
	SummaryMild,
	SummaryWarm,
	SummaryBalmy,
	SummaryHot,
	SummarySweltering,
	SummaryScorching,
}

// Summaries returns a copy of the label vocabulary in its fixed order.
func Summaries() []Summary {
	out := make([]Summary, len(summaries))
	copy(out, summaries[:])
	return out
}

// IsValid reports whether s belongs to the label vocabulary.
func (s Summary) IsValid() bool {
	for _, known := range summaries {
		if s == known {
			return true
		}
	}
	return false
}

// Entry is one day's synthetic forecast. Fahrenheit is derived on read and
// never stored.
type Entry struct {
	Date         Date
	TemperatureC int
	// Summary is nil only for entries built outside this package.
	Summary *Summary
}

// TemperatureF returns the entry's temperature in Fahrenheit.
func (e Entry) TemperatureF() int {
	return Fahrenheit(e.TemperatureC)
}

// Fahrenheit converts Celsius using 32 + C/0.5556, truncating toward zero,
// so -1°C yields 31.
func Fahrenheit(celsius int) int {
	return 32 + int(float64(celsius)/fahrenheitDivisor)
}
