// Package navigator is the only writer of navigation state. Components
// request commits; history navigation is diffed field-by-field so each step
// does the minimal required work instead of a full reload.
package navigator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/null-order/localbooru-sub000/internal/domain/navigation"
	"github.com/null-order/localbooru-sub000/internal/domain/probe"
)

// Service owns the history stack and the last committed state.
type Service struct {
	driver Resetter
	anchor Restorer
	detail DetailOpener
	logger *zap.Logger

	mu      sync.Mutex
	history *navigation.History
	last    navigation.State
}

// New creates a navigator with an empty initial state.
func New(driver Resetter, anchor Restorer, detail DetailOpener, logger *zap.Logger) *Service {
	initial := navigation.State{DetailID: navigation.NoDetail}
	return &Service{
		driver:  driver,
		anchor:  anchor,
		detail:  detail,
		logger:  logger,
		history: navigation.NewHistory(initial),
		last:    initial,
	}
}

// Commit writes a state to history, pushing a new entry or replacing the
// current one. Committing an unchanged state is a no-op either way, so
// redundant commits never grow or churn the stack.
func (s *Service) Commit(st navigation.State, replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Equal(s.last) {
		return
	}
	if replace {
		s.history.Replace(st)
	} else {
		s.history.Push(st)
	}
	s.last = st
	s.logger.Debug("navigation committed",
		zap.String("state", st.Encode()),
		zap.Bool("replace", replace),
	)
}

// Current returns the last committed state.
func (s *Service) Current() navigation.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// EncodeCurrent renders the last committed state for the address bar.
func (s *Service) EncodeCurrent() string {
	return s.Current().Encode()
}

// HistoryLen returns the number of history entries.
func (s *Service) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// Back steps the history cursor back and applies the landed-on state.
func (s *Service) Back(ctx context.Context) error {
	s.mu.Lock()
	st, ok := s.history.Back()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.apply(ctx, st)
}

// Forward steps the history cursor forward and applies the landed-on state.
func (s *Service) Forward(ctx context.Context) error {
	s.mu.Lock()
	st, ok := s.history.Forward()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.apply(ctx, st)
}

// RestoreRaw decodes an address-bar query string (reload, shared link) and
// applies it as a fresh navigation: full fetch, then detail and anchor.
func (s *Service) RestoreRaw(ctx context.Context, raw string) error {
	st := navigation.Decode(raw)
	s.mu.Lock()
	s.history.Replace(st)
	// Force a full reset by diffing against a state that matches nothing.
	s.last = navigation.State{Query: "\x00", DetailID: navigation.NoDetail}
	s.mu.Unlock()
	return s.apply(ctx, st)
}

// apply dispatches the minimal work a restored state requires. A query or
// probe-token change forces a full reset fetch; a detail change alone only
// moves the panel; an anchor change alone only restores scroll.
func (s *Service) apply(ctx context.Context, st navigation.State) error {
	s.mu.Lock()
	prev := s.last
	s.last = st
	s.mu.Unlock()

	queryChanged := st.Query != prev.Query || st.ProbeToken != prev.ProbeToken

	if queryChanged {
		if err := s.resetFor(ctx, st); err != nil {
			return err
		}
	}

	if st.DetailID != prev.DetailID {
		if st.DetailID == navigation.NoDetail {
			s.detail.CloseDetail()
		} else {
			s.detail.OpenDetail(st.DetailID)
		}
	}

	if queryChanged || st.Anchor != prev.Anchor {
		if err := s.anchor.Restore(ctx, st.Anchor); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
	}
	return nil
}

func (s *Service) resetFor(ctx context.Context, st navigation.State) error {
	if st.ProbeToken != "" {
		p, ok := probe.ParseToken(st.ProbeToken)
		if ok {
			if err := s.driver.StartProbe(ctx, p, st.Query); err != nil {
				return fmt.Errorf("navigate: restore probe: %w", err)
			}
			return nil
		}
		// Decode already rejects bad tokens; an unparsable one here means
		// a stale history entry. Fall back to the plain query.
		s.logger.Warn("unparsable probe token in history", zap.String("token", st.ProbeToken))
	}
	if err := s.driver.SetQuery(ctx, st.Query); err != nil {
		return fmt.Errorf("navigate: restore query: %w", err)
	}
	return nil
}
