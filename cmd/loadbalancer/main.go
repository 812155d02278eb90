// Command loadbalancer runs the request-routing side of the cluster: the
// node registry, health probe, priority queue, scheduler, worker pool,
// scaling sensor, and the public HTTP surface in front of them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soft40051/storagelb/internal/accesslog"
	"github.com/soft40051/storagelb/internal/api"
	"github.com/soft40051/storagelb/internal/bus"
	"github.com/soft40051/storagelb/internal/config"
	"github.com/soft40051/storagelb/internal/dashboard"
	"github.com/soft40051/storagelb/internal/health"
	"github.com/soft40051/storagelb/internal/idempotency"
	"github.com/soft40051/storagelb/internal/middleware"
	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/queue"
	"github.com/soft40051/storagelb/internal/registry"
	"github.com/soft40051/storagelb/internal/scaling"
	"github.com/soft40051/storagelb/internal/scheduler"
	"github.com/soft40051/storagelb/internal/timeline"
	"github.com/soft40051/storagelb/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	reg := registry.New()
	for _, addr := range cfg.StorageNodes {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			log.Fatalf("loadbalancer: invalid STORAGE_NODES entry %q: %v", addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Fatalf("loadbalancer: invalid port in STORAGE_NODES entry %q: %v", addr, err)
		}
		nodeID := host + "-" + portStr
		if err := reg.Register(nodeID, host, port); err != nil {
			log.Fatalf("loadbalancer: registering node %s: %v", nodeID, err)
		}
	}
	log.Printf("loadbalancer: registered %d storage nodes", reg.Count())

	prober, err := health.New(reg, cfg.ProbeInterval(), cfg.ProbeTimeout())
	if err != nil {
		log.Fatalf("health: %v", err)
	}

	q := queue.New(queue.WithCapacity(cfg.QueueCapacity))

	policyName := scheduler.PolicyName(cfg.SchedulerType)
	policy, err := scheduler.New(policyName)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	tl := timeline.NewStore(500)
	failures := scheduler.NewFailureLimiter(1, 3)

	accessCtx, accessCancel := context.WithTimeout(context.Background(), 5*time.Second)
	accessStore, err := accesslog.New(accessCtx, cfg.DatabaseURL)
	accessCancel()
	if err != nil {
		log.Printf("loadbalancer: access log store unavailable, durable logging disabled: %v", err)
		accessStore = nil
	} else if accessStore != nil {
		log.Println("loadbalancer: durable access logging enabled")
		defer accessStore.Close()
	}

	workerCfg := worker.DefaultConfig()
	workerCfg.PoolSize = cfg.ThreadPoolSize
	workerCfg.DelayMin = time.Duration(cfg.LBDelayMSMin) * time.Millisecond
	workerCfg.DelayMax = time.Duration(cfg.LBDelayMSMax) * time.Millisecond
	workerCfg.PolicyName = string(policyName)
	if cfg.WorkerNoHealthyNodePolicy == "requeue" {
		workerCfg.NoHealthyPolicy = worker.Requeue
	}
	pool := worker.New(workerCfg, q, reg, policy, worker.NewHTTPForwarder(), failures, tl, accessStore)

	// Idempotency: Redis if configured, in-memory otherwise.
	var idemBackend idempotency.Backend
	if cfg.RedisAddr != "" {
		redisBackend, err := idempotency.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("loadbalancer: redis unavailable (%v), falling back to in-memory idempotency", err)
		} else {
			idemBackend = redisBackend
			log.Println("loadbalancer: using Redis-backed idempotency store")
		}
	}
	idemStore := idempotency.NewStore(idemBackend)

	// Bus: MQTT if a broker is reachable, log-only fallback otherwise.
	var busImpl bus.PubSub
	mqttBus, err := bus.NewMQTTBus(cfg.MQTTBrokerHost, cfg.MQTTBrokerPort, "loadbalancer")
	if err != nil {
		log.Printf("loadbalancer: mqtt broker unavailable (%v), publishing scale intents to the log bus only", err)
		busImpl = bus.NewLogBus()
	} else {
		log.Printf("loadbalancer: connected to mqtt broker %s:%d", cfg.MQTTBrokerHost, cfg.MQTTBrokerPort)
		busImpl = mqttBus
		defer mqttBus.Close()
	}
	var publisher bus.Publisher = busImpl

	if err := busImpl.Subscribe(model.TopicScaleEvents, func(ev bus.Event) {
		var scaleEv model.ScaleEvent
		if err := json.Unmarshal(ev.Payload, &scaleEv); err != nil {
			log.Printf("loadbalancer: failed to decode scale event: %v", err)
			return
		}

		idx := indexFromContainerName(scaleEv.Container, cfg.ContainerPrefix)
		port := cfg.BaseContainerPort + idx - 1
		nodeID := scaleEv.Container

		switch scaleEv.Action {
		case "up":
			if err := reg.Register(nodeID, cfg.ContainerHost, port); err != nil && err != registry.ErrAlreadyExists {
				log.Printf("loadbalancer: registering scaled-up node %s: %v", nodeID, err)
			} else {
				log.Printf("loadbalancer: node %s registered from scale event (%s:%d)", nodeID, cfg.ContainerHost, port)
			}
		case "down":
			if err := reg.Unregister(nodeID); err != nil && err != registry.ErrNotFound {
				log.Printf("loadbalancer: unregistering scaled-down node %s: %v", nodeID, err)
			} else {
				log.Printf("loadbalancer: node %s unregistered from scale event", nodeID)
			}
		default:
			log.Printf("loadbalancer: ignoring scale event with unknown action %q for %s", scaleEv.Action, nodeID)
		}
	}); err != nil {
		log.Fatalf("loadbalancer: failed to subscribe to %s: %v", model.TopicScaleEvents, err)
	}

	sensorCfg := scaling.DefaultConfig()
	sensorCfg.Tick = time.Duration(cfg.ScaleTickSeconds) * time.Second
	sensorCfg.Cooldown = time.Duration(cfg.ScaleCooldownSeconds) * time.Second
	sensorCfg.UpThreshold = cfg.UpThreshold
	sensorCfg.PerNodeCapacity = cfg.PerNodeCapacity
	sensorCfg.DownGrace = cfg.DownGraceTicks
	sensorCfg.Min = cfg.MinContainers
	sensorCfg.Max = cfg.MaxContainers
	sensor := scaling.New(sensorCfg, q, reg, publisher)

	syncDownloader := api.NewSyncDownloader(reg, policy)
	publicAPI := api.New(q, reg, policyName, idemStore, syncDownloader)

	hub := dashboard.NewHub(func() dashboard.Snapshot {
		var recent []json.RawMessage
		for _, ev := range tl.Snapshot() {
			if raw, err := json.Marshal(ev); err == nil {
				recent = append(recent, raw)
			}
		}
		return dashboard.Snapshot{
			QueueDepth:   q.Size(),
			HealthyNodes: reg.CountHealthy(),
			TotalNodes:   reg.Count(),
			Scheduler:    string(policyName),
			RecentEvents: recent,
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/", publicAPI.Routes())
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/dashboard/stream", hub)

	handler := middleware.CORS(middleware.RequestID(middleware.AccessLog(mux)))

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.ServerPort),
		Handler: handler,
	}

	stop := make(chan struct{})
	runCtx, runCancel := context.WithCancel(context.Background())

	go prober.Run(stop)
	pool.Start(stop)
	go sensor.Run(stop)
	go hub.Run(runCtx)

	go func() {
		log.Printf("loadbalancer: listening on :%d (scheduler=%s pool_size=%d)", cfg.ServerPort, cfg.SchedulerType, cfg.ThreadPoolSize)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("loadbalancer: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("loadbalancer: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("loadbalancer: http shutdown error: %v", err)
	}

	close(stop)
	runCancel()
	q.Shutdown()
	pool.Wait()
	log.Println("loadbalancer: stopped")
}

// indexFromContainerName recovers the numeric suffix the host manager
// assigns each container name (prefix + index), mirroring how it derives
// the container's host port from that same index.
func indexFromContainerName(name, prefix string) int {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0
	}
	var idx int
	if _, err := fmt.Sscanf(name[len(prefix):], "%d", &idx); err != nil {
		return 0
	}
	return idx
}

