package poster

import (
	"sync/atomic"
	"time"
)

// Status is a point-in-time view of the scheduler for status surfaces.
type Status struct {
	State        string       `json:"state"` // disabled | scheduled
	IntervalSecs int          `json:"interval_s,omitempty"`
	NextFire     time.Time    `json:"next_fire"`
	CyclesRun    uint64       `json:"cycles_run"`
	Coalesced    uint64       `json:"coalesced"`
	LastCycle    *CycleReport `json:"last_cycle,omitempty"`
}

func (s *Service) Status() Status {
	st := Status{
		State:     "disabled",
		CyclesRun: atomic.LoadUint64(&s.cyclesRun),
		Coalesced: atomic.LoadUint64(&s.coalesced),
	}

	s.mu.Lock()
	if s.schedOn {
		st.State = "scheduled"
		st.IntervalSecs = s.schedSecs
	}
	if s.hasEntry && s.c != nil {
		st.NextFire = s.c.Entry(s.entryID).Next
	}
	s.mu.Unlock()

	s.lastMu.Lock()
	st.LastCycle = s.lastReport
	s.lastMu.Unlock()
	return st
}
