package errors

import "errors"

// ErrNotABeacon names the case of an advance_state payload that does not
// parse as a drand beacon envelope at all. Nothing in this module returns
// it: httpapi's payload decoder reports that case with a false result.
var ErrNotABeacon = errors.New("payload is not a drand beacon")

// ErrInvalidBeacon is returned when a payload parses as a beacon envelope
// but fails signature verification.
var ErrInvalidBeacon = errors.New("beacon signature verification failed")

// ErrLockContention is returned by try-lock operations when the state
// mutex is already held by another in-flight request.
var ErrLockContention = errors.New("state lock is held by another request")

// ErrRandomnessDeferred is returned when the stored beacon is not yet new
// enough to safely serve randomness for the requested timestamp.
var ErrRandomnessDeferred = errors.New("no beacon is fresh enough yet")
