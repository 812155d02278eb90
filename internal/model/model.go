// Package model holds the data types shared across the load balancer and
// host-manager processes: requests, nodes, and scale intents.
package model

import (
	"strconv"
	"time"
)

// RequestType identifies the kind of operation a Request represents.
type RequestType string

const (
	Upload   RequestType = "upload"
	Download RequestType = "download"
	Delete   RequestType = "delete"
)

// Request is immutable after construction. The queue carries only a
// reference to the opaque payload; the payload itself lives with the caller
// (typically an io.ReadCloser on the HTTP request body).
type Request struct {
	ID          string
	Type        RequestType
	FileName    string
	SizeBytes   int64
	BasePriority int
	ArrivalTime time.Time

	// Payload is opaque to every component except the final HTTP forward.
	Payload interface{}
}

// Node is a registered backend aggregator endpoint. Health and load are
// mutated only through NodeRegistry; callers borrow a Node value (a copy)
// for the duration of a forward call.
type Node struct {
	ID      string
	Host    string
	Port    int
	Healthy bool
	Load    int
}

// Addr returns the host:port dial target for this node.
func (n Node) Addr() string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

// ScaleDirection distinguishes the two ScaleIntent variants.
type ScaleDirection string

const (
	ScaleUp   ScaleDirection = "up"
	ScaleDown ScaleDirection = "down"
)

// ScaleIntent is published by the scaling sensor and consumed exactly-once
// (by Seq) by the host-manager reconciler.
type ScaleIntent struct {
	Direction ScaleDirection `json:"action"`
	Count     int            `json:"count"`
	Seq       int64          `json:"seq"`
}

// ScaleEvent is published by the host-manager after a container lifecycle
// transition completes.
type ScaleEvent struct {
	Action    string `json:"action"` // "up" | "down"
	Container string `json:"container"`
	TimestampMS int64 `json:"ts"`
}

const (
	// TopicScaleRequests carries ScaleIntent from the load balancer to the
	// host-manager.
	TopicScaleRequests = "loadbalancer/scaling/requests"
	// TopicScaleEvents carries ScaleEvent from the host-manager to any
	// subscriber (including the load balancer's node registry wiring).
	TopicScaleEvents = "hostmanager/events"
)
