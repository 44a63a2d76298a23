package bridge

import "sync/atomic"

// Direction names a relay loop.
type Direction string

// Relay directions.
const (
	ToFirmware Direction = "tft_to_firmware"
	ToTFT      Direction = "firmware_to_tft"
)

// directionStats counts relay activity for one direction since process start.
type directionStats struct {
	records     atomic.Uint64
	bytes       atomic.Uint64
	timeouts    atomic.Uint64
	readErrors  atomic.Uint64
	writeErrors atomic.Uint64
}

// DirectionStats is a point-in-time copy of one direction's counters.
type DirectionStats struct {
	Records     uint64 `json:"records"`
	Bytes       uint64 `json:"bytes"`
	Timeouts    uint64 `json:"timeouts"`
	ReadErrors  uint64 `json:"read_errors"`
	WriteErrors uint64 `json:"write_errors"`
}

func (d *directionStats) snapshot() DirectionStats {
	return DirectionStats{
		Records:     d.records.Load(),
		Bytes:       d.bytes.Load(),
		Timeouts:    d.timeouts.Load(),
		ReadErrors:  d.readErrors.Load(),
		WriteErrors: d.writeErrors.Load(),
	}
}
