package pipeline

import "sync/atomic"

// Stats counts what happened to records during a run. Counters are updated
// concurrently by the sequencer and the shard workers.
type Stats struct {
	records        atomic.Uint64
	applied        atomic.Uint64
	decodeFailures atomic.Uint64
	rejected       atomic.Uint64
}

// Summary is a point-in-time copy of Stats.
type Summary struct {
	Records        uint64 `json:"records"`
	Applied        uint64 `json:"applied"`
	DecodeFailures uint64 `json:"decodeFailures"`
	Rejected       uint64 `json:"rejected"`
}

func (s *Stats) Summary() Summary {
	return Summary{
		Records:        s.records.Load(),
		Applied:        s.applied.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		Rejected:       s.rejected.Load(),
	}
}
