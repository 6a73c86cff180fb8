package service

import (
	"sync/atomic"
	"time"
)

// State is what the probes report about the running bot.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	streaming   atomic.Bool
	lastBarUnix atomic.Int64 // unix seconds
	mode        atomic.Value // string
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	s.mode.Store("")
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetStreaming(v bool) { s.streaming.Store(v) }
func (s *State) Streaming() bool     { return s.streaming.Load() }

func (s *State) SetMode(m string) { s.mode.Store(m) }
func (s *State) Mode() string     { return s.mode.Load().(string) }

func (s *State) TouchBar(t time.Time) { s.lastBarUnix.Store(t.Unix()) }
func (s *State) LastBar() time.Time {
	u := s.lastBarUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
