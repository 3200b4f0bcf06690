package connectivity

import "sync"

// Manual is a Source driven by explicit Set calls. It backs loopback mode
// and tests; a deployment with a real transport wires its own Source.
type Manual struct {
	mu     sync.Mutex
	online bool
	err    error
	subs   map[int]func(bool)
	nextID int
}

// NewManual builds a manual source starting in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: make(map[int]func(bool))}
}

// Online implements Source.
func (s *Manual) Online() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.online, nil
}

// Subscribe implements Source.
func (s *Manual) Subscribe(fn func(online bool)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

// Set flips the link state and notifies subscribers on change.
func (s *Manual) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// SetErr makes Online and Subscribe fail with err until cleared with nil.
func (s *Manual) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
