// Package config centralizes environment-driven configuration for both
// cmd/loadbalancer and cmd/hostmanager.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven setting for both binaries. Not every
// field is used by every binary; cmd/loadbalancer and cmd/hostmanager each
// read the subset relevant to them.
type Config struct {
	ServerPort      int
	HostManagerPort int

	SchedulerType string

	LBDelayMSMin int
	LBDelayMSMax int

	ThreadPoolSize int

	ProbeIntervalMS int
	ProbeTimeoutMS  int

	StorageNodes []string // host:port

	MQTTBrokerHost string
	MQTTBrokerPort int

	MaxContainers int
	MinContainers int

	ContainerPrefix     string
	BaseContainerPort   int
	ContainerImage      string
	ContainerRuntimeBin string
	ContainerHost       string

	QueueCapacity int

	DatabaseURL string
	RedisAddr   string
	RedisPassword string
	RedisDB     int

	WorkerNoHealthyNodePolicy string

	ScaleTickSeconds    int
	ScaleCooldownSeconds int
	UpThreshold         int
	PerNodeCapacity     int
	DownGraceTicks      int

	UnhealthyResetTicks int
}

func Load() (*Config, error) {
	c := &Config{
		ServerPort:               getInt("SERVER_PORT", 6869),
		HostManagerPort:          getInt("HOSTMANAGER_PORT", 6870),
		SchedulerType:             getString("SCHEDULER_TYPE", "ROUNDROBIN"),
		LBDelayMSMin:              getInt("LB_DELAY_MS_MIN", 1000),
		LBDelayMSMax:              getInt("LB_DELAY_MS_MAX", 5000),
		ThreadPoolSize:            getInt("THREAD_POOL_SIZE", 10),
		ProbeIntervalMS:           getInt("PROBE_INTERVAL_MS", 5000),
		ProbeTimeoutMS:            getInt("PROBE_TIMEOUT_MS", 3000),
		StorageNodes:              getList("STORAGE_NODES"),
		MQTTBrokerHost:            getString("MQTT_BROKER_HOST", "mqtt-broker"),
		MQTTBrokerPort:            getInt("MQTT_BROKER_PORT", 1883),
		MaxContainers:             getInt("MAX_CONTAINERS", 4),
		MinContainers:             getInt("MIN_CONTAINERS", 1),
		ContainerPrefix:           getString("CONTAINER_PREFIX", "soft40051-files-container"),
		BaseContainerPort:         getInt("BASE_CONTAINER_PORT", 4848),
		ContainerImage:            getString("CONTAINER_IMAGE", "soft40051/aggregator:latest"),
		ContainerRuntimeBin:       getString("CONTAINER_RUNTIME_BIN", "docker"),
		ContainerHost:             getString("CONTAINER_HOST", "localhost"),
		QueueCapacity:             getInt("QUEUE_CAPACITY", 10000),
		DatabaseURL:               getString("DATABASE_URL", ""),
		RedisAddr:                 getString("REDIS_ADDR", ""),
		RedisPassword:             getString("REDIS_PASSWORD", ""),
		RedisDB:                   getInt("REDIS_DB", 0),
		WorkerNoHealthyNodePolicy: getString("WORKER_NO_HEALTHY_NODE_POLICY", "drop"),
		ScaleTickSeconds:          getInt("SCALE_TICK", 10),
		ScaleCooldownSeconds:      getInt("SCALE_COOLDOWN", 30),
		UpThreshold:               getInt("UP_THRESHOLD", 20),
		PerNodeCapacity:           getInt("PER_NODE_CAPACITY", 10),
		DownGraceTicks:            getInt("DOWN_GRACE", 3),
		UnhealthyResetTicks:       getInt("UNHEALTHY_RESET", 3),
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.LBDelayMSMax < c.LBDelayMSMin {
		return fmt.Errorf("config: LB_DELAY_MS_MAX (%d) must be >= LB_DELAY_MS_MIN (%d)", c.LBDelayMSMax, c.LBDelayMSMin)
	}
	if c.ProbeIntervalMS < c.ProbeTimeoutMS {
		return fmt.Errorf("config: PROBE_INTERVAL_MS (%d) must be >= PROBE_TIMEOUT_MS (%d)", c.ProbeIntervalMS, c.ProbeTimeoutMS)
	}
	if c.MinContainers < 1 {
		return fmt.Errorf("config: MIN_CONTAINERS must be >= 1, got %d", c.MinContainers)
	}
	if c.MaxContainers < c.MinContainers {
		return fmt.Errorf("config: MAX_CONTAINERS (%d) must be >= MIN_CONTAINERS (%d)", c.MaxContainers, c.MinContainers)
	}
	switch strings.ToUpper(c.SchedulerType) {
	case "FCFS", "SJN", "ROUNDROBIN":
	default:
		return fmt.Errorf("config: unknown SCHEDULER_TYPE %q", c.SchedulerType)
	}
	return nil
}

func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMS) * time.Millisecond
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
