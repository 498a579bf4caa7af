package mongostore

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Runs only against a live server, e.g. LEDGER_TEST_MONGO_URI=mongodb://localhost:27017
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("LEDGER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LEDGER_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := New(ctx, uri, "ledger_test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = s.coll.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestStoreLoadSave(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	doc, err := s.Load(ctx, "users")
	if err != nil || doc != nil {
		t.Fatalf("expected empty document, got %q err=%v", doc, err)
	}
	if err := s.Save(ctx, "users", []byte(`{"admin":{}}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc, _ = s.Load(ctx, "users")
	if string(doc) != `{"admin":{}}` {
		t.Fatalf("unexpected document %q", doc)
	}

	boom := errors.New("boom")
	if err := s.Update(ctx, "users", func([]byte) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	s := newIntegrationStore(t)
	s.maxRetries = 100
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "counter", func(cur []byte) ([]byte, error) {
				n, _ := strconv.Atoi(string(cur))
				return []byte(strconv.Itoa(n + 1)), nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, _ := s.Load(ctx, "counter")
	if string(doc) != "10" {
		t.Fatalf("lost updates: counter=%s", doc)
	}
}
