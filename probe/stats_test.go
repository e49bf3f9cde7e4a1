package probe

import (
	"math"
	"strings"
	"testing"
	"time"
)

func serverStatsFrom(tickCounts []int, seqs []uint64) *ServerStats {
	s := &ServerStats{}
	now := time.Now()
	for _, c := range tickCounts {
		s.RecordTick(c)
	}
	for _, seq := range seqs {
		s.RecordMessage(now, seq)
		now = now.Add(time.Millisecond)
	}
	return s
}

func TestServerDeriveNoData(t *testing.T) {
	r := (&ServerStats{}).Derive()

	if !r.NoData {
		t.Fatal("expected NoData for an empty run")
	}
	if !strings.Contains(r.String(), "No data received.") {
		t.Errorf("report should say no data was received:\n%s", r)
	}
}

func TestServerDerive(t *testing.T) {
	tests := []struct {
		name       string
		tickCounts []int
		seqs       []uint64

		wantOutOfOrder int
		wantExpected   int64
		wantLost       int64
		wantBatched    int
		wantEmpty      int
		wantMaxBatch   int
	}{
		{
			name:       "lossless ordered stream",
			tickCounts: []int{1, 1, 1, 1},
			seqs:       []uint64{1, 2, 3, 4},

			wantExpected: 4,
			wantMaxBatch: 1,
		},
		{
			name:       "gap in sequence counts as loss",
			tickCounts: []int{2, 0, 2},
			seqs:       []uint64{1, 2, 5, 6},

			wantExpected: 6,
			wantLost:     2,
			wantBatched:  2,
			wantEmpty:    1,
			wantMaxBatch: 2,
		},
		{
			name:       "duplicates count as out of order",
			tickCounts: []int{5},
			seqs:       []uint64{1, 2, 2, 3, 3},

			wantOutOfOrder: 2,
			wantExpected:   3,
			wantBatched:    1,
			wantMaxBatch:   5,
		},
		{
			name:       "reordered pair",
			tickCounts: []int{3},
			seqs:       []uint64{2, 1, 3},

			wantOutOfOrder: 1,
			wantExpected:   2,
			wantBatched:    1,
			wantMaxBatch:   3,
		},
		{
			name:       "later start offset does not inflate loss",
			tickCounts: []int{1, 1, 1},
			seqs:       []uint64{40, 41, 42},

			wantExpected: 3,
			wantMaxBatch: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := serverStatsFrom(tt.tickCounts, tt.seqs).Derive()

			if r.NoData {
				t.Fatal("unexpected NoData")
			}
			if r.TotalTicks != uint64(len(tt.tickCounts)) {
				t.Errorf("TotalTicks: got %d, want %d", r.TotalTicks, len(tt.tickCounts))
			}
			if r.Received != len(tt.seqs) {
				t.Errorf("Received: got %d, want %d", r.Received, len(tt.seqs))
			}
			if r.OutOfOrder != tt.wantOutOfOrder {
				t.Errorf("OutOfOrder: got %d, want %d", r.OutOfOrder, tt.wantOutOfOrder)
			}
			if r.Expected != tt.wantExpected {
				t.Errorf("Expected: got %d, want %d", r.Expected, tt.wantExpected)
			}
			if r.Lost != tt.wantLost {
				t.Errorf("Lost: got %d, want %d", r.Lost, tt.wantLost)
			}
			if r.Lost < 0 {
				t.Errorf("Lost must never be negative, got %d", r.Lost)
			}
			if r.BatchedTicks != tt.wantBatched {
				t.Errorf("BatchedTicks: got %d, want %d", r.BatchedTicks, tt.wantBatched)
			}
			if r.EmptyTicks != tt.wantEmpty {
				t.Errorf("EmptyTicks: got %d, want %d", r.EmptyTicks, tt.wantEmpty)
			}
			if r.MaxBatch != tt.wantMaxBatch {
				t.Errorf("MaxBatch: got %d, want %d", r.MaxBatch, tt.wantMaxBatch)
			}
		})
	}
}

func TestOutOfOrderZeroIffStrictlyIncreasing(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint64
	}{
		{"strictly increasing", []uint64{1, 2, 3, 10, 11}},
		{"strictly increasing with gaps", []uint64{5, 9, 14, 200}},
		{"single element", []uint64{7}},
		{"duplicate", []uint64{1, 1, 2}},
		{"regression", []uint64{1, 3, 2}},
		{"plateau", []uint64{4, 4, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strict := true
			for i := 1; i < len(tt.seqs); i++ {
				if tt.seqs[i] <= tt.seqs[i-1] {
					strict = false
				}
			}

			got := countOutOfOrder(tt.seqs)
			if strict && got != 0 {
				t.Errorf("strictly increasing stream reported %d out-of-order pairs", got)
			}
			if !strict && got == 0 {
				t.Error("non-monotonic stream reported zero out-of-order pairs")
			}
		})
	}
}

func TestLossMatchesSubsequenceGap(t *testing.T) {
	// For a strictly increasing subsequence of the naturals, loss must be
	// exactly the range size minus the received count.
	streams := [][]uint64{
		{1, 2, 3, 4, 5},
		{1, 3, 5, 7},
		{10, 11, 19},
		{2, 100},
	}

	for _, seqs := range streams {
		r := serverStatsFrom([]int{len(seqs)}, seqs).Derive()

		want := int64(seqs[len(seqs)-1]-seqs[0]+1) - int64(len(seqs))
		if r.Lost != want {
			t.Errorf("seqs %v: Lost = %d, want %d", seqs, r.Lost, want)
		}
	}
}

func TestDistribution(t *testing.T) {
	r := serverStatsFrom([]int{0, 2, 1, 0, 3, 1, 1, 2}, nil).Derive()

	wantRows := []struct {
		count, ticks int
	}{
		{0, 2}, {1, 3}, {2, 2}, {3, 1},
	}
	if len(r.Distribution) != len(wantRows) {
		t.Fatalf("distribution rows: got %d, want %d", len(r.Distribution), len(wantRows))
	}
	for i, want := range wantRows {
		got := r.Distribution[i]
		if got.Count != want.count || got.Ticks != want.ticks {
			t.Errorf("row %d: got (%d msg/tick, %d ticks), want (%d, %d)",
				i, got.Count, got.Ticks, want.count, want.ticks)
		}
		if i > 0 && got.Count <= r.Distribution[i-1].Count {
			t.Errorf("distribution keys not ascending at row %d", i)
		}
	}

	sum := 0.0
	ticks := 0
	for _, e := range r.Distribution {
		sum += e.Percent
		ticks += e.Ticks
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("distribution percentages sum to %v, want 100", sum)
	}
	if uint64(ticks) != r.TotalTicks {
		t.Errorf("distribution covers %d ticks, want %d", ticks, r.TotalTicks)
	}
}

func TestClientDerive(t *testing.T) {
	t.Run("loss floored at zero", func(t *testing.T) {
		s := &ClientStats{Sent: 10, Received: 12}
		s.RecordTick(12)

		r := s.Derive()
		if r.Lost != 0 {
			t.Errorf("Lost: got %d, want 0", r.Lost)
		}
	})

	t.Run("loss percentage relative to sent", func(t *testing.T) {
		s := &ClientStats{Sent: 640, Received: 600}
		for i := 0; i < 4; i++ {
			s.RecordTick(150)
		}

		r := s.Derive()
		if r.Lost != 40 {
			t.Errorf("Lost: got %d, want 40", r.Lost)
		}
		if math.Abs(r.LostPct-6.25) > 1e-9 {
			t.Errorf("LostPct: got %v, want 6.25", r.LostPct)
		}
	})

	t.Run("nothing sent means zero percent", func(t *testing.T) {
		r := (&ClientStats{}).Derive()
		if r.LostPct != 0 {
			t.Errorf("LostPct: got %v, want 0", r.LostPct)
		}
		if !r.NoData {
			t.Error("expected NoData with no connected ticks")
		}
	})

	t.Run("batching", func(t *testing.T) {
		s := &ClientStats{Sent: 6, Received: 6}
		for _, c := range []int{0, 3, 1, 2} {
			s.RecordTick(c)
		}

		r := s.Derive()
		if r.BatchedTicks != 2 {
			t.Errorf("BatchedTicks: got %d, want 2", r.BatchedTicks)
		}
		if r.MaxBatch != 3 {
			t.Errorf("MaxBatch: got %d, want 3", r.MaxBatch)
		}
		if math.Abs(r.BatchedPct-50) > 1e-9 {
			t.Errorf("BatchedPct: got %v, want 50", r.BatchedPct)
		}
	})
}

func TestReportRendering(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		out := serverStatsFrom([]int{1, 2, 0}, []uint64{1, 2, 4}).Derive().String()

		for _, want := range []string{
			"SERVER RECEIVE STATS",
			"Total ticks: 3",
			"Total messages received: 3",
			"1 msg/tick: 1 ticks (33.3%)",
			"Batched ticks (>1 msg): 1 (33.3%)",
			"Empty ticks (0 msg): 1 (33.3%)",
			"Out of order messages: 0",
			"Sequence range: 1 .. 4 (expected 4, got 3, lost 1)",
			"Max messages in single tick: 2",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("server report missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("client", func(t *testing.T) {
		s := &ClientStats{Sent: 4, Received: 3}
		s.RecordTick(1)
		s.RecordTick(2)
		out := s.Derive().String()

		for _, want := range []string{
			"CLIENT STATS",
			"Total PlayerMove sent: 4",
			"Total EntityMove received: 3",
			"Client ticks: 2",
			"Message loss: 1 (25.0%)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("client report missing %q:\n%s", want, out)
			}
		}
	})
}
