package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	codeact "github.com/nevindra/codeact"
	"github.com/nevindra/codeact/store/storetest"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestConformance(t *testing.T) {
	storetest.Run(t, testStore(t))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()
	s := New(path)
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	cp := codeact.NewCheckpoint("chat", []codeact.Message{codeact.UserMessage("hi")})
	if err := s.Save(ctx, cp); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2 := New(path)
	defer s2.Close()
	got, err := s2.LoadLatest(ctx, "chat")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != cp.ID {
		t.Errorf("id = %s, want %s", got.ID, cp.ID)
	}
}

func TestConcurrentSave(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Save(ctx, codeact.NewCheckpoint("chat", []codeact.Message{codeact.UserMessage("x")}))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
}
