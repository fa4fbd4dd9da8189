package messaging

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestPostDeliversInOrder(t *testing.T) {
	target := NewTarget(zerolog.Nop())

	var got []string
	target.AddListener(func(m Message) { got = append(got, "a:"+m.Type) })
	target.AddListener(func(m Message) { got = append(got, "b:"+m.Type) })

	target.Post(Message{Type: "one"})
	target.Post(Message{Type: "two"})

	want := []string{"a:one", "b:one", "a:two", "b:two"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestPanickingListenerIsContained(t *testing.T) {
	target := NewTarget(zerolog.Nop())

	calls := 0
	target.AddListener(func(Message) { panic("boom") })
	target.AddListener(func(Message) { calls++ })

	target.Post(Message{Type: "x"})
	target.Post(Message{Type: "x"})

	if calls != 2 {
		t.Errorf("expected later listener called twice, got %d", calls)
	}
	if target.Listeners() != 2 {
		t.Errorf("panicking listener should stay attached, have %d", target.Listeners())
	}
}

func TestRemoveListener(t *testing.T) {
	target := NewTarget(zerolog.Nop())

	var got []string
	removeA := target.AddListener(func(Message) { got = append(got, "a") })
	target.AddListener(func(Message) { got = append(got, "b") })

	removeA()
	removeA()
	target.Post(Message{Type: "x"})

	if diff := cmp.Diff([]string{"b"}, got); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
	if target.Listeners() != 1 {
		t.Errorf("expected 1 listener, got %d", target.Listeners())
	}
}

func TestPostWithoutListeners(t *testing.T) {
	NewTarget(zerolog.Nop()).Post(Message{Type: "x"})
}

func TestConcurrentPostsAreSerialized(t *testing.T) {
	target := NewTarget(zerolog.Nop())

	var inside, maxInside, total int
	var mu sync.Mutex
	target.AddListener(func(Message) {
		mu.Lock()
		inside++
		if inside > maxInside {
			maxInside = inside
		}
		mu.Unlock()

		mu.Lock()
		inside--
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target.Post(Message{Type: "x"})
		}()
	}
	wg.Wait()

	if maxInside != 1 || total != 20 {
		t.Errorf("expected serialized delivery of 20 messages, max concurrent %d total %d", maxInside, total)
	}
}
