package chunkstore

import "testing"

func TestInsertDeduplicates(t *testing.T) {
	s := NewStore()

	a, err := s.Insert(7, []byte("A"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	b, err := s.Insert(7, []byte("B"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if string(a.Data) != "A" || string(b.Data) != "A" {
		t.Fatalf("second insert should return original payload, got a=%q b=%q", a.Data, b.Data)
	}
	if s.Len() != 1 {
		t.Fatalf("want 1 resident chunk, got %d", s.Len())
	}
}

func TestEvictionOnLastRelease(t *testing.T) {
	s := NewStore()
	var evicted []uint64
	s.OnEvict(func(key uint64, bytes int) { evicted = append(evicted, key) })

	c1, _ := s.Insert(1, []byte("x"))
	c2 := c1.Ref()

	s.Release(c1)
	if s.Len() != 1 {
		t.Fatalf("chunk should still be resident with one outstanding ref")
	}

	s.Release(c2)
	if s.Len() != 0 {
		t.Fatalf("chunk should be evicted once last ref drops")
	}
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("want eviction callback for key 1, got %v", evicted)
	}
}

func TestInsertAfterCloseFails(t *testing.T) {
	s := NewStore()
	s.Close()

	if !s.Closed() {
		t.Fatalf("Closed() should report true after Close")
	}
	if _, err := s.Insert(1, []byte("x")); err != ErrClosed {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
