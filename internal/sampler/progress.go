package sampler

import (
	"time"

	"github.com/jihwankim/dns-sampler/internal/logging"
)

// progressReporter logs one status line per interval, so a long run
// narrates itself the way the teacher's ProgressReporter narrates
// orchestrator state transitions instead of staying silent throughout.
type progressReporter struct {
	log      *logging.Logger
	interval time.Duration
	last     time.Time
}

func newProgressReporter(log *logging.Logger, interval time.Duration) *progressReporter {
	return &progressReporter{log: log, interval: interval}
}

// maybeReport logs the current ladder state if interval has elapsed
// since the last report.
func (p *progressReporter) maybeReport(level, numLevels int, logX, acceptRate float64) {
	if !p.last.IsZero() && time.Since(p.last) < p.interval {
		return
	}
	p.last = time.Now()
	p.log.Progress(level, numLevels, logX, acceptRate)
}
