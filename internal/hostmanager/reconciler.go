// Package hostmanager consumes scale intents from the bus, maintains a
// desired container set bounded by [Min, Max], drives lifecycle
// transitions through a container runtime, and republishes completion
// events.
package hostmanager

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/soft40051/storagelb/internal/bus"
	"github.com/soft40051/storagelb/internal/containerrt"
	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/observability"
)

type LifecycleState string

const (
	Requested LifecycleState = "Requested"
	Starting  LifecycleState = "Starting"
	Running   LifecycleState = "Running"
	Stopping  LifecycleState = "Stopping"
	Stopped   LifecycleState = "Stopped"
)

const maxStartAttempts = 3

type containerEntry struct {
	index    int
	name     string
	port     int
	state    LifecycleState
	attempts int
	nextTry  time.Time

	unhealthyTicks int
}

type Config struct {
	Min            int
	Max            int
	Prefix         string
	BasePort       int
	Image          string
	UnhealthyReset int
	Tick           time.Duration
}

func DefaultConfig() Config {
	return Config{
		Min:            1,
		Max:            4,
		Prefix:         "soft40051-files-container",
		BasePort:       4848,
		Image:          "soft40051/aggregator:latest",
		UnhealthyReset: 3,
		Tick:           10 * time.Second,
	}
}

// Reconciler is single-threaded cooperative: HandleIntent enqueues a
// closure onto an internal work channel, drained by the one Run goroutine
// that also drives the periodic tick, so bus callbacks and the tick never
// interleave. Bootstrap and ActiveCount read and write state directly on
// the caller's goroutine.
type Reconciler struct {
	cfg     Config
	runtime containerrt.Runtime
	events  bus.Publisher

	work chan func()

	desired  map[int]*containerEntry // index -> entry: Requested/Starting/Running, and Stopping until the stop succeeds
	observed map[string]*containerEntry
	seen     *seqSet
}

func New(cfg Config, runtime containerrt.Runtime, events bus.Publisher) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		runtime:  runtime,
		events:   events,
		work:     make(chan func(), 256),
		desired:  make(map[int]*containerEntry),
		observed: make(map[string]*containerEntry),
		seen:     newSeqSet(4096),
	}
}

func (r *Reconciler) name(i int) string { return fmt.Sprintf("%s%d", r.cfg.Prefix, i) }
func (r *Reconciler) port(i int) int    { return r.cfg.BasePort + i - 1 }

// Bootstrap rebuilds the desired/observed sets from the runtime's reality
// at startup, so a restart adopts already-running containers instead of
// starting duplicates.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	names, err := r.runtime.List(ctx, r.cfg.Prefix)
	if err != nil {
		return fmt.Errorf("hostmanager: bootstrap list failed: %w", err)
	}
	for _, n := range names {
		idx := indexFromName(n, r.cfg.Prefix)
		if idx <= 0 {
			continue
		}
		entry := &containerEntry{index: idx, name: n, port: r.port(idx), state: Running}
		r.desired[idx] = entry
		r.observed[n] = entry
	}
	return nil
}

// Run drains the work channel until stop fires, also driving the periodic
// reconcile tick.
func (r *Reconciler) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case fn := <-r.work:
			fn()
		case <-ticker.C:
			r.reconcileTick(context.Background())
		case <-stop:
			return
		}
	}
}

// HandleIntent is called from the bus subscription callback; it hands the
// intent to the single reconciler goroutine via the work channel.
func (r *Reconciler) HandleIntent(intent model.ScaleIntent) {
	done := make(chan struct{})
	r.work <- func() {
		defer close(done)
		r.applyIntent(intent)
	}
	<-done
}

func (r *Reconciler) applyIntent(intent model.ScaleIntent) {
	if r.seen.Add(intent.Seq) {
		observability.ReconcilerIntentsIgnoredDuplicate.Inc()
		log.Printf("hostmanager: ignoring duplicate intent seq=%d", intent.Seq)
		return
	}

	switch intent.Direction {
	case model.ScaleUp:
		r.scaleUp(intent.Count)
	case model.ScaleDown:
		r.scaleDown(intent.Count)
	}
	observability.ReconcilerDesiredCount.Set(float64(len(r.desired)))
}

func (r *Reconciler) scaleUp(n int) {
	headroom := r.cfg.Max - len(r.desired)
	if headroom <= 0 {
		return
	}
	if n > headroom {
		n = headroom
	}

	var avail []int
	for i := 1; i <= r.cfg.Max && len(avail) < n; i++ {
		if _, taken := r.desired[i]; !taken {
			avail = append(avail, i)
		}
	}

	for _, idx := range avail {
		entry := &containerEntry{index: idx, name: r.name(idx), port: r.port(idx), state: Requested}
		r.desired[idx] = entry
		r.observed[entry.name] = entry
		log.Printf("hostmanager: scale-up added %s (index %d)", entry.name, idx)
	}
}

func (r *Reconciler) scaleDown(n int) {
	floor := r.cfg.Min
	removable := len(r.desired) - floor
	if removable <= 0 {
		return
	}
	if n > removable {
		n = removable
	}

	var indices []int
	for i := range r.desired {
		indices = append(indices, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	for i := 0; i < n; i++ {
		idx := indices[i]
		entry := r.desired[idx]
		entry.state = Stopping
		log.Printf("hostmanager: scale-down marked %s (index %d) for stop", entry.name, idx)
	}
}

// reconcileTick drives the lifecycle state machine forward one step for
// every tracked container.
func (r *Reconciler) reconcileTick(ctx context.Context) {
	now := time.Now()

	for idx, entry := range r.desired {
		switch entry.state {
		case Requested:
			r.tryStart(ctx, idx, entry, now)
		case Starting:
			if insp, err := r.runtime.Inspect(ctx, entry.name); err == nil && insp.Success() && insp.Running {
				entry.state = Running
				entry.attempts = 0
				r.publishEvent("up", entry.name)
			}
		case Stopping:
			r.tryStop(ctx, idx, entry)
		case Running:
			r.inspectRunning(ctx, entry)
		}
	}
}

func (r *Reconciler) tryStart(ctx context.Context, idx int, entry *containerEntry, now time.Time) {
	if now.Before(entry.nextTry) {
		return
	}

	res, err := r.runtime.Start(ctx, entry.name, entry.port, r.cfg.Image)
	if err != nil || !res.Success() {
		entry.attempts++
		observability.ReconcilerRuntimeFailures.WithLabelValues("start").Inc()

		if entry.attempts >= maxStartAttempts {
			log.Printf("hostmanager: %s failed to start after %d attempts, giving up", entry.name, entry.attempts)
			entry.state = Stopped
			delete(r.desired, idx)
			delete(r.observed, entry.name)
			return
		}

		backoff := time.Duration(1<<entry.attempts) * time.Second
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
		entry.nextTry = now.Add(backoff)
		log.Printf("hostmanager: %s start failed (attempt %d), retrying in %s", entry.name, entry.attempts, backoff)
		return
	}

	entry.state = Starting
	log.Printf("hostmanager: %s started, awaiting confirmation", entry.name)

	insp, err := r.runtime.Inspect(ctx, entry.name)
	if err == nil && insp.Success() && insp.Running {
		entry.state = Running
		entry.attempts = 0
		r.publishEvent("up", entry.name)
	}
}

func (r *Reconciler) tryStop(ctx context.Context, idx int, entry *containerEntry) {
	res, err := r.runtime.Stop(ctx, entry.name)
	if err != nil || !res.Success() {
		observability.ReconcilerRuntimeFailures.WithLabelValues("stop").Inc()
		log.Printf("hostmanager: %s stop failed, will retry next tick", entry.name)
		return
	}

	entry.state = Stopped
	delete(r.desired, idx)
	delete(r.observed, entry.name)
	r.publishEvent("down", entry.name)
}

func (r *Reconciler) inspectRunning(ctx context.Context, entry *containerEntry) {
	res, err := r.runtime.Inspect(ctx, entry.name)
	observability.ReconcilerContainerState.WithLabelValues(entry.name, "Running").Set(0)

	if err != nil || !res.Success() || !res.Running {
		entry.unhealthyTicks++
		log.Printf("hostmanager: %s inspect failed (%d/%d)", entry.name, entry.unhealthyTicks, r.cfg.UnhealthyReset)
		if entry.unhealthyTicks >= r.cfg.UnhealthyReset {
			log.Printf("hostmanager: %s unhealthy for %d ticks, restarting", entry.name, entry.unhealthyTicks)
			entry.state = Requested
			entry.unhealthyTicks = 0
			entry.attempts = 0
		}
		return
	}

	entry.unhealthyTicks = 0
	observability.ReconcilerContainerState.WithLabelValues(entry.name, "Running").Set(1)
}

func (r *Reconciler) publishEvent(action, container string) {
	ev := model.ScaleEvent{Action: action, Container: container, TimestampMS: time.Now().UnixMilli()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.events.Publish(ctx, model.TopicScaleEvents, ev); err != nil {
		log.Printf("hostmanager: failed to publish event for %s: %v", container, err)
		return
	}
	observability.ReconcilerEventsPublished.WithLabelValues(action).Inc()
}

// ActiveCount returns the number of containers in Requested, Starting, or
// Running — the quantity bounded by [MIN, MAX].
func (r *Reconciler) ActiveCount() int {
	count := 0
	for _, e := range r.desired {
		if e.state == Requested || e.state == Starting || e.state == Running {
			count++
		}
	}
	return count
}

func indexFromName(name, prefix string) int {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0
	}
	var idx int
	_, err := fmt.Sscanf(name[len(prefix):], "%d", &idx)
	if err != nil {
		return 0
	}
	return idx
}
