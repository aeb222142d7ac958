package ingest

import (
	"context"
	"io"
	"testing"
)

func TestRunDrainsAllItems(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var processed []int

	q := NewQueue[int]()
	err := Run(context.Background(), q,
		func(ctx context.Context, push func(int) error) error {
			for _, v := range items {
				if err := push(v); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context, v int) error {
			processed = append(processed, v)
			return nil
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(processed) != len(items) {
		t.Fatalf("want %d items processed, got %d: %v", len(items), len(processed), processed)
	}
	for i, v := range items {
		if processed[i] != v {
			t.Fatalf("processed out of order: %v", processed)
		}
	}
}

func TestRunProcessErrorStopsReader(t *testing.T) {
	q := NewQueue[int]()
	wantErr := io.ErrClosedPipe

	err := Run(context.Background(), q,
		func(ctx context.Context, push func(int) error) error {
			for i := 0; i < 100; i++ {
				if err := push(i); err != nil {
					return nil
				}
			}
			return nil
		},
		func(ctx context.Context, v int) error {
			if v == 2 {
				return wantErr
			}
			return nil
		},
	)
	if err != wantErr {
		t.Fatalf("want %v, got %v", wantErr, err)
	}
}
