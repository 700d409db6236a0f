package threadsafe_test

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/xenrt/haoracle/pkg/threadsafe"
)

func TestMapConcurrentWrites(t *testing.T) {
	m := threadsafe.NewMap[string, int]()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set(fmt.Sprintf("host%02d", i), i)
		}()
	}
	wg.Wait()

	keys := m.Keys()
	if len(keys) != 50 {
		t.Fatalf("expected 50 keys, got %d", len(keys))
	}

	slices.Sort(keys)
	if keys[0] != "host00" || keys[49] != "host49" {
		t.Errorf("unexpected keys %v", keys)
	}

	for i := range 40 {
		m.Delete(fmt.Sprintf("host%02d", i))
	}

	keys = m.Keys()
	slices.Sort(keys)
	if len(keys) != 10 || keys[0] != "host40" {
		t.Errorf("expected host40..host49 after deleting, got %v", keys)
	}
}
