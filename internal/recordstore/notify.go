package recordstore

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
)

// Subscribe registers o for change notifications and returns a function
// that removes it. Observers run synchronously, in subscription order,
// after the mutation has committed.
func (s *Store) Subscribe(o media.Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.order = append(s.order, id)

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		if _, ok := s.observers[id]; !ok {
			return
		}
		delete(s.observers, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) snapshot() []media.Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	out := make([]media.Observer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.observers[id])
	}
	return out
}

// dispatch calls fn on every observer. Every observer runs even when an
// earlier one fails; failures are joined into one ERR_506 error.
func (s *Store) dispatch(ctx context.Context, fn func(media.Observer) error) error {
	var errs []error
	for _, o := range s.snapshot() {
		if err := fn(o); err != nil {
			s.logger.WarnContext(ctx, "observer_failed", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeEventDispatch, "change committed but an observer failed", stderrors.Join(errs...))
}
