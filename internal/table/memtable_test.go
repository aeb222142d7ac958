package table

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInsertOrAssignAndInfo(t *testing.T) {
	tb := NewMemTable("t", 0, 64, 4)
	if err := tb.InsertOrAssign(&Item{ItemKey: 1, Priority: 1.0}); err != nil {
		t.Fatalf("InsertOrAssign: %v", err)
	}
	info := tb.Info()
	if info.CurrentSize != 1 || info.NumEpisodes != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestSampleFlexibleBatchDeadlineExceededOnEmptyTable(t *testing.T) {
	tb := NewMemTable("t", 0, 64, 4)
	_, err := tb.SampleFlexibleBatch(context.Background(), 1, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded on empty table with zero timeout, got %v", err)
	}
}

func TestSampleFlexibleBatchUnblocksOnInsert(t *testing.T) {
	tb := NewMemTable("t", 0, 64, 4)
	done := make(chan []SampledItem, 1)
	errc := make(chan error, 1)
	go func() {
		out, err := tb.SampleFlexibleBatch(context.Background(), 1, -1)
		if err != nil {
			errc <- err
			return
		}
		done <- out
	}()

	time.Sleep(10 * time.Millisecond)
	if err := tb.InsertOrAssign(&Item{ItemKey: 42, Priority: 1.0}); err != nil {
		t.Fatalf("InsertOrAssign: %v", err)
	}

	select {
	case out := <-done:
		if len(out) != 1 || out[0].Item.ItemKey != 42 {
			t.Fatalf("unexpected sample: %+v", out)
		}
	case err := <-errc:
		t.Fatalf("SampleFlexibleBatch: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample")
	}
}

func TestMutateItemsUpdatesAndDeletes(t *testing.T) {
	tb := NewMemTable("t", 0, 64, 4)
	_ = tb.InsertOrAssign(&Item{ItemKey: 1, Priority: 1.0})
	_ = tb.InsertOrAssign(&Item{ItemKey: 2, Priority: 1.0})

	if err := tb.MutateItems([]PriorityUpdate{{ItemKey: 1, Priority: 5.0}}, []uint64{2}); err != nil {
		t.Fatalf("MutateItems: %v", err)
	}
	info := tb.Info()
	if info.CurrentSize != 1 {
		t.Fatalf("want 1 item after delete, got %d", info.CurrentSize)
	}
}

func TestReset(t *testing.T) {
	tb := NewMemTable("t", 0, 64, 4)
	_ = tb.InsertOrAssign(&Item{ItemKey: 1, Priority: 1.0})
	if err := tb.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if tb.Info().CurrentSize != 0 {
		t.Fatalf("want empty table after Reset")
	}
}
