// Package dwt provides device-time arithmetic for UWB transceiver timestamps.
//
// The radio counts time in device time units (DTU, ~15.65 ps) on a 40-bit
// counter that wraps roughly every 17.2 seconds. This package converts between
// DTU ticks, microseconds, UWB microseconds (UUS) and seconds, and computes
// elapsed ticks between two counter samples across a wrap.
package dwt

import "fmt"

// TimestampBits is the number of significant bits in a device timestamp.
const TimestampBits = 40

const (
	// TimestampModulus is the period of the device counter (2^40 ticks).
	TimestampModulus uint64 = 1 << TimestampBits
	// TimestampMask selects the significant bits of a device timestamp.
	TimestampMask = TimestampModulus - 1

	halfModulus = TimestampModulus >> 1
)

// Timestamp is a raw device counter sample. Only the low 40 bits are
// significant; values are compared and differenced modulo 2^40.
type Timestamp uint64

// TimeDiff is a signed, unwrapped number of ticks between two timestamps.
type TimeDiff int64

// WrappedDiff returns t1 - t2 in ticks, treating both as samples of a counter
// that wraps modulo 2^40. The result lies in [-2^39, 2^39) and equals the true
// elapsed ticks whenever the samples were taken less than half a counter
// period apart.
func WrappedDiff(t1, t2 Timestamp) TimeDiff {
	d := (uint64(t1) - uint64(t2)) & TimestampMask
	if d >= halfModulus {
		return TimeDiff(int64(d) - int64(TimestampModulus))
	}
	return TimeDiff(d)
}

// Valid reports whether t fits in the 40-bit counter range.
func (t Timestamp) Valid() bool {
	return uint64(t) <= TimestampMask
}

// Add advances t by d ticks and wraps the result into the counter range.
func (t Timestamp) Add(d TimeDiff) Timestamp {
	return Timestamp((uint64(t) + uint64(d)) & TimestampMask)
}

// Seconds converts the raw counter value to seconds since counter zero.
func (t Timestamp) Seconds() float64 {
	return float64(t) * DtuToUsTime * 1e-6
}

func (t Timestamp) String() string {
	return fmt.Sprintf("0x%010x", uint64(t))
}

// Seconds converts the tick difference to seconds.
func (d TimeDiff) Seconds() float64 {
	return TicksToSeconds(d)
}

// Pair is a single observation: when a frame left the local radio and when
// the peer radio received it, each on its own device clock.
type Pair struct {
	Send    Timestamp
	Receive Timestamp
}
