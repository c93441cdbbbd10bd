package main

import (
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

// pacer decides how long the relay rests between batches. A full batch runs
// again at once, an idle one waits the poll interval, and a failed one
// doubles the previous wait up to ceiling.
type pacer struct {
	idle    time.Duration
	ceiling time.Duration
	current time.Duration
}

func newPacer(idle, ceiling time.Duration) *pacer {
	return &pacer{idle: idle, ceiling: max(ceiling, idle), current: idle}
}

func (p *pacer) next(report batchReport, err error) time.Duration {
	if err != nil {
		p.current = min(max(p.current, p.idle)*2, p.ceiling)
		return p.current + jitter()
	}
	p.current = p.idle
	if report.Claimed > 0 {
		return 0
	}
	return p.idle + jitter()
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}
