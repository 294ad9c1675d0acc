// Package rollupio implements the Cartesi rollup host wire protocol shared
// by the middleware and the example application: the finish/report/notice
// HTTP envelope and a driver loop that polls it.
package rollupio

import (
	"encoding/hex"
	"encoding/json"
	"strings"
)

// RequestType values classify a finish response.
const (
	RequestTypeAdvance = "advance_state"
	RequestTypeInspect = "inspect_state"
)

// Status values a handler reports back to the driver loop.
const (
	StatusAccept = "accept"
	StatusReject = "reject"
)

// Metadata accompanies advance_state inputs.
type Metadata struct {
	MsgSender   string `json:"msg_sender"`
	Timestamp   uint64 `json:"timestamp"`
	BlockNumber uint64 `json:"block_number"`
	EpochIndex  uint64 `json:"epoch_index"`
	InputIndex  uint64 `json:"input_index"`
}

// Data is the payload carried by an Envelope.
type Data struct {
	Payload  string    `json:"payload"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Envelope is the JSON body returned by the rollup host's /finish endpoint
// when an input is available.
type Envelope struct {
	RequestType string `json:"request_type"`
	Data        Data   `json:"data"`
}

// DecodeHexPayload strips an optional "0x" prefix and hex-decodes the
// payload into raw bytes.
func (d Data) DecodeHexPayload() ([]byte, error) {
	s := strings.TrimPrefix(d.Payload, "0x")
	return hex.DecodeString(s)
}

// EncodeHexPayload wraps raw bytes as a "0x"-prefixed hex string, the shape
// every report/notice/voucher payload must take.
func EncodeHexPayload(raw []byte) string {
	return "0x" + hex.EncodeToString(raw)
}

// EncodeJSONPayload hex-wraps the JSON encoding of v, matching the
// source's convention of sending structured application data as hex(json).
func EncodeJSONPayload(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return EncodeHexPayload(raw), nil
}
