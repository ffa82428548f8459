package watch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Supervisor owns the per-video watcher goroutines. One video's failure
// never touches the others; shutdown is propagated through the context and
// Run returns once every loop has exited.
type Supervisor struct {
	watchers []*Watcher
}

// NewSupervisor creates a supervisor over the given watchers.
func NewSupervisor(watchers ...*Watcher) *Supervisor {
	return &Supervisor{watchers: watchers}
}

// Run starts every watcher and blocks until all of them have exited. A
// watcher that terminates on error is logged and left down until the next
// process start; its video's state is rebuilt by replay then.
func (s *Supervisor) Run(ctx context.Context) {
	log.Info().Int("videos", len(s.watchers)).Msg("Starting watchers")

	var wg sync.WaitGroup
	for _, w := range s.watchers {
		wg.Add(1)
		go func(w *Watcher) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Str("video_id", w.VideoID()).
					Msg("Watcher exited with error")
			}
		}(w)
	}

	wg.Wait()
	log.Info().Msg("All watchers stopped")
}
