// Package anchor computes and restores the "first visible result" index so
// reloads and history navigation land on the same scroll position, loading
// further pages when the target is beyond the loaded window.
package anchor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Service restores scroll anchors for one session.
type Service struct {
	pager   Pager
	view    Viewport
	logger  *zap.Logger
	padding int

	mu        sync.Mutex
	restoring bool
}

// New creates a scroll-anchor service. padding is the fixed allowance under
// the sticky header when deciding which result counts as "visible".
func New(pager Pager, view Viewport, padding int, logger *zap.Logger) *Service {
	return &Service{pager: pager, view: view, logger: logger, padding: padding}
}

// ComputeAnchor returns the index of the last loaded result whose top offset
// is at or above the scroll threshold, 0 if nothing qualifies.
func (s *Service) ComputeAnchor(scrollOffset int) int {
	threshold := scrollOffset + s.view.StickyHeight() + s.padding
	anchor := 0
	for i := 0; i < s.pager.ResultCount(); i++ {
		top, ok := s.view.ResultTop(i)
		if !ok {
			break
		}
		if top > threshold {
			break
		}
		anchor = i
	}
	return anchor
}

// Restoring reports whether a restore is pending. While true, anchor saves
// must be suppressed: a transient scroll position mid-restore would
// otherwise overwrite the very anchor being restored.
func (s *Service) Restoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoring
}

// Restore scrolls the viewport to the result at target, loading pages until
// the index is reachable. When the session ends before the index exists, the
// target clamps to the last loaded result.
func (s *Service) Restore(ctx context.Context, target int) error {
	s.mu.Lock()
	s.restoring = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.restoring = false
		s.mu.Unlock()
	}()

	for {
		count := s.pager.ResultCount()
		done := s.pager.Done()

		if target <= 0 || (done && count == 0) {
			s.view.ScrollTo(0)
			return nil
		}
		if target >= count {
			if !done {
				if err := s.pager.RequestPage(ctx); err != nil {
					return fmt.Errorf("anchor: load page for index %d: %w", target, err)
				}
				if s.pager.ResultCount() == count && s.pager.Done() == done {
					// No progress; the session was likely reset under us.
					s.logger.Warn("anchor restore made no progress", zap.Int("target", target))
					return nil
				}
				continue
			}
			target = count - 1
			continue
		}

		top, ok := s.view.ResultTop(target)
		if !ok {
			// The view has not laid the result out yet; land at the top
			// rather than guessing.
			s.view.ScrollTo(0)
			return nil
		}
		s.view.ScrollTo(top - s.view.StickyHeight())
		return nil
	}
}
