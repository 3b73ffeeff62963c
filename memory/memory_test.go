package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestCollection_NeverExceedsCapacity(t *testing.T) {
	c := NewCollection[int]("events", CollectionConfig{
		Capacity:             1000,
		CleanupThreshold:     0.9,
		CleanupBatchFraction: 0.1,
	}, nil)

	for i := 0; i < 10_000; i++ {
		c.Add(i)
		if n := c.Len(); n > 1000 {
			t.Fatalf("size %d exceeds capacity after %d adds", n, i+1)
		}
	}

	items := c.Items()
	if items[len(items)-1] != 9999 {
		t.Errorf("expected newest item last, got %d", items[len(items)-1])
	}
	for i := 1; i < len(items); i++ {
		if items[i] <= items[i-1] {
			t.Fatalf("insertion order broken at %d", i)
		}
	}
	if c.Evicted() == 0 {
		t.Error("expected evictions to be counted")
	}
	if got := uint64(c.Len()) + c.Evicted(); got != 10_000 {
		t.Errorf("kept+evicted = %d, want 10000", got)
	}
}

func TestCollection_CleanupDropsOldestBatch(t *testing.T) {
	c := NewCollection[int]("c", CollectionConfig{Capacity: 10, CleanupThreshold: 0.9, CleanupBatchFraction: 0.2}, nil)
	for i := 0; i < 9; i++ {
		c.Add(i)
	}
	if c.Len() != 9 || c.Evicted() != 0 {
		t.Fatalf("no cleanup expected below threshold, len=%d evicted=%d", c.Len(), c.Evicted())
	}

	c.Add(9) // 9/10 >= 0.9: drop 2 then append
	if got := fmt.Sprint(c.Items()); got != "[2 3 4 5 6 7 8 9]" {
		t.Errorf("unexpected items %s", got)
	}
	if c.Evicted() != 2 {
		t.Errorf("expected 2 evicted, got %d", c.Evicted())
	}
}

func TestCollection_BatchWidensWhenItRoundsDown(t *testing.T) {
	var evictions []int
	c := NewCollection[string]("tiny", CollectionConfig{
		Capacity:             5,
		CleanupThreshold:     1,
		CleanupBatchFraction: 0.1,
		OnEvict:              func(name string, n int) { evictions = append(evictions, n) },
	}, nil)

	for i := 0; i < 20; i++ {
		c.Add(fmt.Sprint(i))
		if c.Len() > 5 {
			t.Fatalf("capacity exceeded: %d", c.Len())
		}
	}
	if c.Len() != 5 {
		t.Errorf("expected a full collection, got %d", c.Len())
	}
	if len(evictions) != 15 {
		t.Errorf("expected one eviction per overflowing add, got %d", len(evictions))
	}
	for _, n := range evictions {
		if n != 1 {
			t.Errorf("expected single item evictions, got %d", n)
		}
	}
}

func TestCollection_PriorityPolicy(t *testing.T) {
	type job struct {
		id       int
		priority float64
	}
	c := NewCollection[job]("jobs", CollectionConfig{Capacity: 4, CleanupThreshold: 1, CleanupBatchFraction: 0.5},
		Priority[job]{Score: func(j job) float64 { return j.priority }})

	c.Add(job{1, 5})
	c.Add(job{2, 1})
	c.Add(job{3, 9})
	c.Add(job{4, 1})
	c.Add(job{5, 3}) // full: drop the two lowest (2 and 4)

	var ids []int
	for _, j := range c.Items() {
		ids = append(ids, j.id)
	}
	if fmt.Sprint(ids) != "[1 3 5]" {
		t.Errorf("unexpected survivors %v", ids)
	}
}

func TestPriority_TiesEvictOldestFirst(t *testing.T) {
	p := Priority[string]{Score: func(string) float64 { return 0 }}
	got := p.Evict([]string{"a", "b", "c"}, 2)
	if fmt.Sprint(got) != "[c]" {
		t.Errorf("expected oldest to go first, got %v", got)
	}
}

func TestCollection_ConcurrentAdds(t *testing.T) {
	c := NewCollection[int]("concurrent", CollectionConfig{Capacity: 100, CleanupThreshold: 0.9, CleanupBatchFraction: 0.1}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Add(i)
			}
		}()
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("capacity exceeded under concurrency: %d", c.Len())
	}
	if got := uint64(c.Len()) + c.Evicted(); got != 8000 {
		t.Errorf("lost items: kept+evicted = %d", got)
	}
}

func TestCollection_SnapshotAndClear(t *testing.T) {
	c := NewCollection[int]("snap", CollectionConfig{Capacity: 4}, nil)
	c.Add(1)
	c.Add(2)

	s := c.Snapshot()
	if s.Name != "snap" || s.Size != 2 || s.Capacity != 4 || s.UtilizationRatio != 0.5 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	c.Clear()
	if c.Len() != 0 || c.Evicted() != 0 {
		t.Error("clear must empty without counting evictions")
	}
}

func TestCollectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CollectionConfig
		wantErr bool
	}{
		{"defaults", DefaultCollectionConfig(), false},
		{"zero capacity", CollectionConfig{CleanupThreshold: 0.5, CleanupBatchFraction: 0.5}, true},
		{"threshold above one", CollectionConfig{Capacity: 1, CleanupThreshold: 1.5, CleanupBatchFraction: 0.5}, true},
		{"fraction zero", CollectionConfig{Capacity: 1, CleanupThreshold: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBoundedMap_EvictsOldestKey(t *testing.T) {
	var dropped []string
	m := NewBoundedMap[string, int]("buckets", 3, func(k string, _ int) { dropped = append(dropped, k) })

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)
	m.Put("a", 10) // update keeps position
	m.Put("d", 4)

	if _, ok := m.Get("a"); ok {
		t.Error("expected a to be evicted as the oldest key")
	}
	if v, ok := m.Get("d"); !ok || v != 4 {
		t.Errorf("expected d=4, got %v %v", v, ok)
	}
	if m.Len() != 3 {
		t.Errorf("expected 3 keys, got %d", m.Len())
	}
	if fmt.Sprint(dropped) != "[a]" {
		t.Errorf("unexpected evictions %v", dropped)
	}
	if m.Snapshot().Evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", m.Snapshot().Evicted)
	}
}

func TestBoundedMap_GetOrCreate(t *testing.T) {
	m := NewBoundedMap[int, *int]("ptrs", 2, nil)
	calls := 0
	create := func() *int { calls++; v := calls; return &v }

	first := m.GetOrCreate(1, create)
	again := m.GetOrCreate(1, create)
	if first != again || calls != 1 {
		t.Errorf("expected a single creation, got %d", calls)
	}

	m.GetOrCreate(2, create)
	m.GetOrCreate(3, create)
	if _, ok := m.Get(1); ok {
		t.Error("expected key 1 to be evicted")
	}

	m.Delete(2)
	var keys []int
	m.Range(func(k int, _ *int) bool { keys = append(keys, k); return true })
	if fmt.Sprint(keys) != "[3]" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestBoundedMap_ManyDistinctKeysStayBounded(t *testing.T) {
	m := NewBoundedMap[int, struct{}]("keys", 50, nil)
	for i := 0; i < 5000; i++ {
		m.Put(i, struct{}{})
	}
	if m.Len() != 50 {
		t.Errorf("expected 50 keys, got %d", m.Len())
	}
}

func TestSentinel_AddCreatesDefaultCollection(t *testing.T) {
	s := NewSentinel(Config{Default: CollectionConfig{Capacity: 10, CleanupThreshold: 0.9, CleanupBatchFraction: 0.1}})

	for i := 0; i < 100; i++ {
		s.Add("history", i)
	}
	status := s.Status()
	if len(status) != 1 {
		t.Fatalf("expected one collection, got %d", len(status))
	}
	if status[0].Name != "history" || status[0].Size > 10 || status[0].Capacity != 10 {
		t.Errorf("unexpected status %+v", status[0])
	}
	if status[0].Evicted == 0 {
		t.Error("expected evictions")
	}
}

func TestSentinel_TypeMismatchIsDropped(t *testing.T) {
	s := NewSentinel(DefaultConfig())
	ints, err := Track[int](s, "ints", CollectionConfig{Capacity: 5}, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.Add("ints", 1)
	s.Add("ints", "not an int")

	if ints.Len() != 1 {
		t.Errorf("expected only the int to be stored, got %d", ints.Len())
	}
	if s.Dropped() != 1 {
		t.Errorf("expected 1 dropped item, got %d", s.Dropped())
	}

	if _, err := Track[string](s, "ints", CollectionConfig{}, nil); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	again, err := Track[int](s, "ints", CollectionConfig{}, nil)
	if err != nil || again != ints {
		t.Errorf("expected the existing collection, got %v %v", again, err)
	}
}

func TestSentinel_RegistryIsBounded(t *testing.T) {
	s := NewSentinel(Config{MaxCollections: 2})

	s.Add("a", 1)
	s.Add("b", 1)
	s.Add("c", 1)

	if s.Len() != 2 {
		t.Errorf("expected 2 registered collections, got %d", s.Len())
	}
	if s.Dropped() != 1 {
		t.Errorf("expected the overflow item to be dropped, got %d", s.Dropped())
	}
	if err := s.Register(NewBoundedMap[string, int]("d", 1, nil)); !errors.Is(err, ErrRegistryFull) {
		t.Errorf("expected ErrRegistryFull, got %v", err)
	}
	if err := s.Register(NewCollection[int]("a", CollectionConfig{}, nil)); err != nil {
		t.Errorf("replacing an existing name must succeed, got %v", err)
	}

	s.Unregister("b")
	if _, ok := s.Get("b"); ok {
		t.Error("expected b to be unregistered")
	}
}

func TestSentinel_UnderPressure(t *testing.T) {
	s := NewSentinel(Config{DegradedUtilization: 0.9})
	full := NewBoundedMap[int, int]("full", 2, nil)
	full.Put(1, 1)
	full.Put(2, 2)
	_ = s.Register(full)
	_ = s.Register(NewBoundedMap[int, int]("empty", 2, nil))

	hot := s.UnderPressure()
	if len(hot) != 1 || hot[0].Name != "full" {
		t.Errorf("expected only full under pressure, got %+v", hot)
	}
}

func TestSentinel_OnEvictHook(t *testing.T) {
	var mu sync.Mutex
	total := 0
	s := NewSentinel(Config{
		Default: CollectionConfig{Capacity: 10, CleanupThreshold: 1, CleanupBatchFraction: 0.5},
		OnEvict: func(name string, n int) {
			mu.Lock()
			total += n
			mu.Unlock()
		},
	})
	for i := 0; i < 11; i++ {
		s.Add("x", i)
	}
	mu.Lock()
	defer mu.Unlock()
	if total != 5 {
		t.Errorf("expected 5 evicted through the hook, got %d", total)
	}
}
