package httpapi

import (
	"encoding/hex"
	"encoding/json"
)

// drandBeaconWire mirrors the JSON shape the drand follower wraps a beacon
// in before hex-encoding it as a rollup input payload: {"beacon": {...}}.
type drandBeaconWire struct {
	Beacon struct {
		Round      uint64 `json:"round"`
		Signature  string `json:"signature"`
		Randomness string `json:"randomness"`
	} `json:"beacon"`
}

type decodedBeacon struct {
	Round uint64
	sig   []byte
}

// decodeBeaconPayload attempts to parse raw as a drand beacon envelope. A
// false return means the payload is not shaped like one (it is an ordinary
// opaque advance/inspect input instead), not necessarily an error.
func decodeBeaconPayload(raw []byte) (decodedBeacon, bool) {
	var wire drandBeaconWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return decodedBeacon{}, false
	}
	if wire.Beacon.Signature == "" {
		return decodedBeacon{}, false
	}
	sig, err := hex.DecodeString(wire.Beacon.Signature)
	if err != nil {
		return decodedBeacon{}, false
	}
	return decodedBeacon{Round: wire.Beacon.Round, sig: sig}, true
}
