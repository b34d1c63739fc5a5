package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	eng := s.engine
	now := s.now()
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{ID: d.id, Name: d.name, Kind: d.kind.String(), Spec: d.spec, Period: d.every, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		if it.Next.IsZero() && d.kind == kindPeriodic {
			// not started yet; report when it would fire
			it.Next = periodicSchedule{first: d.first, period: d.every}.Next(now.In(loc))
		}
		items = append(items, it)
	}

	snap := Snapshot{
		Enabled:   enabled,
		Running:   c != nil,
		Timezone:  tz,
		Schedules: items,
		History:   []HistoryItem{},
	}
	if eng != nil {
		es := eng.Snapshot()
		snap.Workers = es.Workers
		snap.InFlight = es.InFlight
		snap.QueueLen = es.QueueLen
		snap.QueueCap = es.QueueCap
		snap.Dropped = es.Dropped
		snap.RetryMax = es.RetryMax
		snap.History = es.History
	}
	return snap
}

// Next returns the next fire time of the named schedule. It reports false
// while the scheduler is disabled since nothing will fire.
func (s *Service) Next(name string) (time.Time, bool) {
	snap := s.Snapshot()
	if !snap.Enabled {
		return time.Time{}, false
	}
	for _, it := range snap.Schedules {
		if it.Name == name {
			return it.Next, !it.Next.IsZero()
		}
	}
	return time.Time{}, false
}
