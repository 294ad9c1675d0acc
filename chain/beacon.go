// Package chain holds the drand beacon data model: the single newest
// verified beacon kept by the middleware, and the arithmetic relating a
// round number to the wall-clock time it is due.
package chain

import "fmt"

// Beacon is the single verified randomness beacon the middleware keeps in
// memory. Unlike a drand node, the middleware never retains a chain of
// beacons — only the newest one, replaced monotonically by round.
type Beacon struct {
	Round      uint64
	Signature  []byte
	Randomness [32]byte
	Timestamp  uint64
}

func (b *Beacon) String() string {
	if b == nil {
		return "<none>"
	}
	return fmt.Sprintf("{round: %d, timestamp: %d, sig: %s}", b.Round, b.Timestamp, shortSigStr(b.Signature))
}

func shortSigStr(sig []byte) string {
	if len(sig) < 4 {
		return fmt.Sprintf("%x", sig)
	}
	return fmt.Sprintf("%x", sig[:4])
}
