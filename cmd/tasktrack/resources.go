package main

import "github.com/platinummonkey/tasktrack/pkg/observability"

// startupResources closes what run opened when it returns before serving.
type startupResources struct {
	logger    *observability.Logger
	closers   []func() error
	handedOff bool
}

func (s *startupResources) add(closer func() error) {
	s.closers = append(s.closers, closer)
}

// handOff leaves the resources to the shutdown manager.
func (s *startupResources) handOff() {
	s.handedOff = true
}

// release closes in reverse order of opening. Errors are logged and the
// remaining closers still run.
func (s *startupResources) release() {
	if s.handedOff {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Warn("cleanup after failed start")
		}
	}
	s.closers = nil
}
