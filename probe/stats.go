package probe

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ServerStats accumulates the raw observations of a server run. Buffers are
// append-only: Timestamps and Sequences grow in receipt order, and TickCounts
// gets exactly one entry per tick during which a connection was active.
type ServerStats struct {
	TickCounts []int
	Timestamps []time.Time
	Sequences  []uint64
	TotalTicks uint64
	EchoesSent uint64
}

// RecordMessage appends one received update observation.
func (s *ServerStats) RecordMessage(at time.Time, seq uint64) {
	s.Timestamps = append(s.Timestamps, at)
	s.Sequences = append(s.Sequences, seq)
}

// RecordTick appends the message count of one connected tick.
func (s *ServerStats) RecordTick(count int) {
	s.TickCounts = append(s.TickCounts, count)
	s.TotalTicks++
}

// ClientStats accumulates the raw observations of a client run.
type ClientStats struct {
	TickCounts []int
	TotalTicks uint64
	Sent       uint64
	Received   uint64
}

// RecordTick appends the echo count of one connected tick.
func (s *ClientStats) RecordTick(count int) {
	s.TickCounts = append(s.TickCounts, count)
	s.TotalTicks++
}

// DistributionEntry is one row of the messages-per-tick histogram.
type DistributionEntry struct {
	Count   int     // messages observed in a tick
	Ticks   int     // ticks exhibiting that count
	Percent float64 // share of all connected ticks
}

// ServerReport is the derived, read-only result of a server run.
type ServerReport struct {
	TotalTicks uint64
	Received   int
	EchoesSent uint64

	// NoData is set when no tick ever had an active connection.
	NoData bool

	Distribution []DistributionEntry
	BatchedTicks int
	BatchedPct   float64
	EmptyTicks   int
	EmptyPct     float64
	OutOfOrder   int
	MaxBatch     int

	FirstSeq uint64
	LastSeq  uint64
	Expected int64
	Lost     int64
}

// ClientReport is the derived, read-only result of a client run.
type ClientReport struct {
	Sent       uint64
	Received   uint64
	TotalTicks uint64

	NoData bool

	Distribution []DistributionEntry
	BatchedTicks int
	BatchedPct   float64
	MaxBatch     int

	Lost    uint64
	LostPct float64
}

// distribution builds the per-tick message count histogram, keys ascending.
func distribution(tickCounts []int, totalTicks uint64) []DistributionEntry {
	hist := make(map[int]int)
	for _, c := range tickCounts {
		hist[c]++
	}

	counts := make([]int, 0, len(hist))
	for c := range hist {
		counts = append(counts, c)
	}
	sort.Ints(counts)

	entries := make([]DistributionEntry, 0, len(counts))
	for _, c := range counts {
		entries = append(entries, DistributionEntry{
			Count:   c,
			Ticks:   hist[c],
			Percent: float64(hist[c]) / float64(totalTicks) * 100,
		})
	}
	return entries
}

// countOutOfOrder returns the number of adjacent pairs in receipt order where
// the sequence number fails to strictly increase. Duplicates count.
func countOutOfOrder(seqs []uint64) int {
	n := 0
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			n++
		}
	}
	return n
}

// Derive computes the final server metrics in one pass over the finalized
// buffers. The sender's sequence stream is contiguous by construction, so the
// gap between the observed sequence range and the received count is the loss
// estimate.
func (s *ServerStats) Derive() ServerReport {
	r := ServerReport{
		TotalTicks: s.TotalTicks,
		Received:   len(s.Sequences),
		EchoesSent: s.EchoesSent,
	}

	if len(s.TickCounts) == 0 {
		r.NoData = true
		return r
	}

	r.Distribution = distribution(s.TickCounts, s.TotalTicks)
	for _, c := range s.TickCounts {
		if c > 1 {
			r.BatchedTicks++
		}
		if c == 0 {
			r.EmptyTicks++
		}
		if c > r.MaxBatch {
			r.MaxBatch = c
		}
	}
	r.BatchedPct = float64(r.BatchedTicks) / float64(s.TotalTicks) * 100
	r.EmptyPct = float64(r.EmptyTicks) / float64(s.TotalTicks) * 100

	r.OutOfOrder = countOutOfOrder(s.Sequences)

	if len(s.Sequences) > 0 {
		r.FirstSeq = s.Sequences[0]
		r.LastSeq = s.Sequences[len(s.Sequences)-1]
		r.Expected = int64(r.LastSeq) - int64(r.FirstSeq) + 1
		if lost := r.Expected - int64(len(s.Sequences)); lost > 0 {
			r.Lost = lost
		}
	}

	return r
}

// Derive computes the final client metrics in one pass over the finalized
// buffers. Loss is the sent count minus the echo count floored at zero; the
// client cannot tell on which leg of the round trip a message died.
func (s *ClientStats) Derive() ClientReport {
	r := ClientReport{
		Sent:       s.Sent,
		Received:   s.Received,
		TotalTicks: s.TotalTicks,
	}

	if len(s.TickCounts) == 0 {
		r.NoData = true
	} else {
		r.Distribution = distribution(s.TickCounts, s.TotalTicks)
		for _, c := range s.TickCounts {
			if c > 1 {
				r.BatchedTicks++
			}
			if c > r.MaxBatch {
				r.MaxBatch = c
			}
		}
		r.BatchedPct = float64(r.BatchedTicks) / float64(s.TotalTicks) * 100
	}

	if s.Sent > s.Received {
		r.Lost = s.Sent - s.Received
	}
	if s.Sent > 0 {
		r.LostPct = float64(r.Lost) / float64(s.Sent) * 100
	}

	return r
}

func (r ServerReport) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n========== SERVER RECEIVE STATS ==========\n")
	fmt.Fprintf(&b, "Total ticks: %d\n", r.TotalTicks)
	fmt.Fprintf(&b, "Total messages received: %d\n", r.Received)
	fmt.Fprintf(&b, "EntityMove sent back: %d\n", r.EchoesSent)

	if r.NoData {
		fmt.Fprintf(&b, "No data received.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\nMessages per tick distribution:\n")
	for _, e := range r.Distribution {
		fmt.Fprintf(&b, "  %d msg/tick: %d ticks (%.1f%%)\n", e.Count, e.Ticks, e.Percent)
	}

	fmt.Fprintf(&b, "\nBatched ticks (>1 msg): %d (%.1f%%)\n", r.BatchedTicks, r.BatchedPct)
	fmt.Fprintf(&b, "Empty ticks (0 msg): %d (%.1f%%)\n", r.EmptyTicks, r.EmptyPct)
	fmt.Fprintf(&b, "Out of order messages: %d\n", r.OutOfOrder)

	if r.Received > 0 {
		fmt.Fprintf(&b, "Sequence range: %d .. %d (expected %d, got %d, lost %d)\n",
			r.FirstSeq, r.LastSeq, r.Expected, r.Received, r.Lost)
	}

	fmt.Fprintf(&b, "Max messages in single tick: %d\n", r.MaxBatch)
	fmt.Fprintf(&b, "==========================================\n")

	return b.String()
}

func (r ClientReport) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n========== CLIENT STATS ==========\n")
	fmt.Fprintf(&b, "Total PlayerMove sent: %d\n", r.Sent)
	fmt.Fprintf(&b, "Total EntityMove received: %d\n", r.Received)
	fmt.Fprintf(&b, "Client ticks: %d\n", r.TotalTicks)

	if !r.NoData {
		fmt.Fprintf(&b, "\nEntityMove per tick distribution:\n")
		for _, e := range r.Distribution {
			fmt.Fprintf(&b, "  %d msg/tick: %d ticks (%.1f%%)\n", e.Count, e.Ticks, e.Percent)
		}

		fmt.Fprintf(&b, "\nBatched ticks (>1 msg): %d (%.1f%%)\n", r.BatchedTicks, r.BatchedPct)
		fmt.Fprintf(&b, "Max messages in single tick: %d\n", r.MaxBatch)
	}

	fmt.Fprintf(&b, "\nMessage loss: %d (%.1f%%)\n", r.Lost, r.LostPct)
	fmt.Fprintf(&b, "==================================\n")

	return b.String()
}
