package dwt

import (
	"fmt"
	"math"
)

// UWB microsecond (UUS) to device time unit (DTU) conversion factors.
// 1 UUS = 512/499.2 µs and 1 µs = 499.2 * 128 DTU.
const (
	UusToDtuTime = 65536.0
	DtuToUusTime = 1.0 / 65536.0
	UsToDtuTime  = 499.2 * 128.0
	DtuToUsTime  = 1.0 / 128.0 / 499.2
)

// UusToUs converts UWB microseconds to microseconds.
func UusToUs(uus float64) float64 {
	return uus * (512.0 / 499.2)
}

// UsToUus converts microseconds to UWB microseconds.
func UsToUus(us float64) float64 {
	return us * 0.975
}

// UusToTicks converts UWB microseconds to device ticks.
func UusToTicks(uus float64) TimeDiff {
	return toTicks(uus * UusToDtuTime)
}

// TicksToUus converts device ticks to UWB microseconds.
func TicksToUus(ticks TimeDiff) float64 {
	return float64(ticks) / UusToDtuTime
}

// UsToTicks converts microseconds to device ticks.
func UsToTicks(us float64) TimeDiff {
	return toTicks(us * UsToDtuTime)
}

// TicksToUs converts device ticks to microseconds.
func TicksToUs(ticks TimeDiff) float64 {
	return float64(ticks) / UsToDtuTime
}

// SecondsToTicks converts seconds to device ticks.
func SecondsToTicks(s float64) TimeDiff {
	return UsToTicks(s * 1e6)
}

// TicksToSeconds converts device ticks to seconds.
func TicksToSeconds(ticks TimeDiff) float64 {
	return TicksToUs(ticks) * 1e-6
}

// toTicks rounds v to the nearest tick. A value that cannot be represented
// as an int64 is a caller bug and panics.
func toTicks(v float64) TimeDiff {
	r := math.Round(v)
	if math.IsNaN(r) || r < math.MinInt64 || r >= math.MaxInt64 {
		panic(fmt.Sprintf("dwt: %g ticks not representable as TimeDiff", v))
	}
	return TimeDiff(r)
}
