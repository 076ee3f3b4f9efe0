package fixture

import "sync"

// lazy holds a value resolved on first use. A failed resolution leaves the
// cell empty so the next call tries again.
type lazy[H any] struct {
	mu    sync.Mutex
	value H
	ok    bool
}

func (l *lazy[H]) get(resolve func() (H, error)) (H, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ok {
		return l.value, nil
	}
	v, err := resolve()
	if err != nil {
		var zero H
		return zero, err
	}
	l.value, l.ok = v, true
	return v, nil
}

func (l *lazy[H]) cached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ok
}
