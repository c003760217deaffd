package cache

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireReaderRefusedAfterMark(t *testing.T) {
	e := NewEntry("k")
	if err := e.AcquireReader(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	e.ReleaseReader()

	done := make(chan struct{})
	go func() {
		e.MarkAndDrain()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MarkAndDrain did not return with zero readers")
	}

	if err := e.AcquireReader(); err != ErrEvicted {
		t.Fatalf("expected ErrEvicted after mark, got %v", err)
	}
}

func TestMarkAndDrainWaitsForReaders(t *testing.T) {
	e := NewEntry("k")
	if err := e.AcquireReader(); err != nil {
		t.Fatal(err)
	}
	if err := e.AcquireReader(); err != nil {
		t.Fatal(err)
	}

	drained := make(chan struct{})
	go func() {
		e.MarkAndDrain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("MarkAndDrain returned before any reader released")
	case <-time.After(50 * time.Millisecond):
	}

	e.ReleaseReader()
	select {
	case <-drained:
		t.Fatal("MarkAndDrain returned before second reader released")
	case <-time.After(50 * time.Millisecond):
	}

	e.ReleaseReader()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("MarkAndDrain never returned after both readers released")
	}
}

func TestReaderCountNeverNegative(t *testing.T) {
	e := NewEntry("k")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.AcquireReader(); err == nil {
				e.ReleaseReader()
			}
		}()
	}
	wg.Wait()

	e.mu.Lock()
	readers := e.readers
	e.mu.Unlock()
	if readers != 0 {
		t.Fatalf("expected 0 readers after all released, got %d", readers)
	}
}

func TestAppendChunkAndIterOrderPreserved(t *testing.T) {
	e := NewEntry("k")
	want := [][]byte{[]byte("abc"), []byte("def"), []byte("gh")}
	for _, c := range want {
		e.AppendChunk(c)
	}

	got := e.Chunks()
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if string(got[i].Bytes) != string(want[i]) {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], got[i].Bytes)
		}
	}
}
