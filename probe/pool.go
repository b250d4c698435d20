package probe

import (
	"context"
	"sync"
	"time"

	"github.com/emunet/ribscan/fleet"
)

// Pool drives one probe per router over a fixed set of workers.
// Each attempt runs under its own timeout; indeterminate attempts are
// retried with a fixed backoff until MaxAttempts is spent. One
// router's failure never cancels another's probe.
type Pool struct {
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Prober      Prober
	Log         Logger
}

// ProbeAll returns one final Result per router, in router order. It
// returns only after every router has settled (join barrier); partial
// completion is not possible. Workers write disjoint pre-allocated
// slots, so results are never lost or duplicated under concurrency.
func (p *Pool) ProbeAll(ctx context.Context, routers []fleet.Router, target *Matcher) []Result {
	results := make([]Result, len(routers))
	if len(routers) == 0 {
		return results
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(routers) {
		workers = len(routers)
	}

	if p.Log != nil {
		p.Log.Infof("probing %d routers for %s (workers: %d)", len(routers), target.Prefix(), workers)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = p.probeRouter(ctx, routers[i], target)
			}
		}()
	}
	for i := range routers {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}

func (p *Pool) probeRouter(ctx context.Context, router fleet.Router, target *Matcher) Result {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		actx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		res = p.Prober.Probe(actx, router, target)
		if cancel != nil {
			cancel()
		}
		res.Attempts = attempt

		if res.State != STATE_INDETERMINATE {
			return res
		}
		if p.Log != nil {
			p.Log.Debugf("probe of %s failed (attempt %d/%d): %s", router.Name, attempt, maxAttempts, res.LastErr)
		}
		if attempt < maxAttempts && p.Backoff > 0 {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
			}
		}
	}

	if p.Log != nil {
		p.Log.Errorf("probe of %s (AS%d) exhausted after %d attempts: %s", router.Name, router.ASN, res.Attempts, res.LastErr)
	}
	return res
}
