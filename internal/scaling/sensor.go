// Package scaling implements the ScalingSensor (C7): it periodically samples
// queue pressure and publishes scale-up/scale-down intents to the bus.
package scaling

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/soft40051/storagelb/internal/bus"
	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/observability"
)

// QueueStats is the subset of queue.Queue the sensor needs; narrowed to an
// interface so tests don't need a real queue.
type QueueStats interface {
	Size() int
}

// NodeCounter is the subset of registry.Registry the sensor needs.
type NodeCounter interface {
	CountHealthy() int
}

type Config struct {
	Tick            time.Duration
	Cooldown        time.Duration
	UpThreshold     int
	PerNodeCapacity int
	DownGrace       int
	Min             int
	Max             int
}

func DefaultConfig() Config {
	return Config{
		Tick:            10 * time.Second,
		Cooldown:        30 * time.Second,
		UpThreshold:     20,
		PerNodeCapacity: 10,
		DownGrace:       3,
		Min:             1,
		Max:             4,
	}
}

// Sensor samples queue depth and healthy node count on every tick and
// publishes ScaleIntents. lastUp/lastDown enforce a per-direction cooldown
// so a single pressure spike cannot trigger repeated scale events before
// the cluster has had a chance to respond.
type Sensor struct {
	cfg   Config
	queue QueueStats
	nodes NodeCounter
	pub   bus.Publisher

	seq          atomic.Int64
	lastUp       time.Time
	lastDown     time.Time
	zeroStreak   int
}

func New(cfg Config, queue QueueStats, nodes NodeCounter, pub bus.Publisher) *Sensor {
	return &Sensor{cfg: cfg, queue: queue, nodes: nodes, pub: pub}
}

// Run samples on every tick until stop fires.
func (s *Sensor) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stop:
			return
		}
	}
}

func (s *Sensor) tick() {
	q := s.queue.Size()
	n := s.nodes.CountHealthy()
	observability.QueueDepth.Set(float64(q))

	now := time.Now()

	if q > s.cfg.UpThreshold && now.Sub(s.lastUp) >= s.cfg.Cooldown {
		headroom := s.cfg.Max - n
		if headroom > 0 {
			count := int(math.Ceil(float64(q-s.cfg.UpThreshold) / float64(s.cfg.PerNodeCapacity)))
			if count > headroom {
				count = headroom
			}
			if count > 0 {
				s.publish(model.ScaleUp, count)
				s.lastUp = now
			}
		}
		s.zeroStreak = 0
		return
	}

	if q == 0 {
		s.zeroStreak++
	} else {
		s.zeroStreak = 0
	}

	if s.zeroStreak >= s.cfg.DownGrace && n > s.cfg.Min && now.Sub(s.lastDown) >= s.cfg.Cooldown {
		s.publish(model.ScaleDown, 1)
		s.lastDown = now
		s.zeroStreak = 0
	}
}

func (s *Sensor) publish(dir model.ScaleDirection, count int) {
	seq := s.seq.Add(1)
	intent := model.ScaleIntent{Direction: dir, Count: count, Seq: seq}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.pub.Publish(ctx, model.TopicScaleRequests, intent); err != nil {
		log.Printf("scaling: bus unavailable, dropping intent seq=%d dir=%s: %v", seq, dir, err)
		observability.ScaleIntentsDropped.WithLabelValues(string(dir)).Inc()
		return
	}

	log.Printf("scaling: published %s count=%d seq=%d", dir, count, seq)
	observability.ScaleIntentsPublished.WithLabelValues(string(dir)).Inc()
}
