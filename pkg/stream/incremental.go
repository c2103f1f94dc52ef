package stream

// effectiveStart computes the lower bound sent upstream for an
// incremental read: the later of the configured start date and the
// persisted cursor, minus the lookback window. The lookback
// compensates for backdated upstream writes and never applies to a
// first sync (zero start).
func (s *Stream) effectiveStart(state State) int64 {
	start := s.opts.StartDate
	if cursor, ok := state[s.cfg.CursorField]; ok && cursor > start {
		start = cursor
	}

	if start > 0 && s.opts.LookbackWindowDays > 0 {
		s.logger.Debug().
			Int("lookback_days", s.opts.LookbackWindowDays).
			Msg("Applying lookback window")
		start -= int64(s.opts.LookbackWindowDays) * 86400
	}

	return start
}

// UpdateState returns the cursor state after observing rec: the
// maximum of the prior cursor value (absent treated as 0) and the
// record's cursor field. Stripe returns most-recent-first, so the
// result must not be persisted until the full read completes.
func (s *Stream) UpdateState(old State, rec Record) State {
	cursor := old[s.cfg.CursorField]
	if value, ok := cursorValue(rec, s.cfg.CursorField); ok && value > cursor {
		cursor = value
	}
	return State{s.cfg.CursorField: cursor}
}

// Incremental reports whether the stream tracks a cursor.
func (s *Stream) Incremental() bool { return s.cfg.CursorField != "" }
