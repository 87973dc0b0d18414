package idempotency

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func projectRecord(key string) *Record {
	return &Record{
		Key:            key,
		Method:         "POST",
		Route:          "/projects",
		ResponseStatus: 201,
		ResponseBody:   `{"project_id":7}`,
	}
}

func TestInMemoryRepositoryStoreAndGet(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.Store(projectRecord("k1")); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	got, err := repo.Get("k1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ResponseStatus != 201 || got.ResponseBody != `{"project_id":7}` {
		t.Errorf("Get() = %+v, want the stored response", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Store should fill a zero CreatedAt")
	}
}

func TestInMemoryRepositoryMissingKey(t *testing.T) {
	repo := NewInMemoryRepository()
	if _, err := repo.Get("absent"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(absent) = %v, want ErrKeyNotFound", err)
	}
}

func TestInMemoryRepositoryRejectsDuplicates(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Store(projectRecord("dup")); err != nil {
		t.Fatalf("first Store() failed: %v", err)
	}
	if err := repo.Store(projectRecord("dup")); !errors.Is(err, ErrKeyExists) {
		t.Errorf("second Store() = %v, want ErrKeyExists", err)
	}
}

func TestInMemoryRepositoryValidatesKey(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Store(projectRecord("")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Store(empty key) = %v, want ErrInvalidKey", err)
	}
}

func TestInMemoryRepositoryCopiesRecords(t *testing.T) {
	repo := NewInMemoryRepository()
	rec := projectRecord("copy")
	if err := repo.Store(rec); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	rec.ResponseBody = "mutated after store"

	first, err := repo.Get("copy")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if first.ResponseBody != `{"project_id":7}` {
		t.Error("stored record should not see caller mutations")
	}

	first.ResponseBody = "mutated after get"
	second, err := repo.Get("copy")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if second.ResponseBody != `{"project_id":7}` {
		t.Error("returned record should be a copy")
	}
}

func TestInMemoryRepositoryDeleteOlderThan(t *testing.T) {
	repo := NewInMemoryRepository()

	old := projectRecord("old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := repo.Store(old); err != nil {
		t.Fatalf("Store(old) failed: %v", err)
	}
	if err := repo.Store(projectRecord("fresh")); err != nil {
		t.Fatalf("Store(fresh) failed: %v", err)
	}

	deleted, err := repo.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := repo.Get("old"); !errors.Is(err, ErrKeyNotFound) {
		t.Error("old record should be gone")
	}
	if _, err := repo.Get("fresh"); err != nil {
		t.Errorf("fresh record should survive: %v", err)
	}
}

func TestInMemoryRepositoryConcurrentAccess(t *testing.T) {
	repo := NewInMemoryRepository()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := projectRecord("k")
			key.Key = key.Key + string(rune('a'+i))
			_ = repo.Store(key)
			_, _ = repo.Get(key.Key)
		}(i)
	}
	wg.Wait()
}
