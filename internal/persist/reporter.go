package persist

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Error classes reported by the cache.
const (
	ClassRead    = "read"
	ClassWrite   = "write"
	ClassCorrupt = "corrupt"
)

// Reporter logs persistence failures at most once per error class per
// window.
type Reporter struct {
	mu      sync.Mutex
	log     zerolog.Logger
	window  time.Duration
	classes map[string]zerolog.Logger
}

func NewReporter(log zerolog.Logger, window time.Duration) *Reporter {
	return &Reporter{log: log, window: window, classes: make(map[string]zerolog.Logger)}
}

func (r *Reporter) logger(class string) zerolog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.classes[class]
	if !ok {
		l = r.log.Sample(&zerolog.BurstSampler{Burst: 1, Period: r.window})
		r.classes[class] = l
	}
	return l
}

// Report logs err for key unless class was reported within the window.
func (r *Reporter) Report(class string, key Key, err error) {
	l := r.logger(class)
	l.Warn().
		Err(err).
		Str("class", class).
		Stringer("key", key).
		Msg("invalidation cache entry ignored")
}
