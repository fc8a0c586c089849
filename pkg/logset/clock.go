package logset

import "time"

// Quantum is the default resolution of log timestamps
const Quantum = 100 * time.Millisecond

// Discretize converts a shared clock reading into a one byte timestamp that
// wraps around every 256 quanta.
func Discretize(clock, quantum time.Duration) uint8 {
	if quantum <= 0 {
		quantum = Quantum
	}
	return uint8(clock / quantum)
}

// Delay returns how long ago a timestamp was taken, assuming less than one
// full wrap has elapsed.
func Delay(clock time.Duration, stamp uint8, quantum time.Duration) time.Duration {
	if quantum <= 0 {
		quantum = Quantum
	}
	return time.Duration(Discretize(clock, quantum)-stamp) * quantum
}
