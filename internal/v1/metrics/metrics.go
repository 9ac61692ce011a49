package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat-room and social-network services.
//
// Naming convention: namespace_subsystem_name
// - namespace: chatnet (application-level grouping)
// - subsystem: room, control, sns, timeline (feature-level grouping)
// - name: specific metric (rooms_active, posts_total, etc.)
//
// Metric Types:
// - Gauge: current state (rooms, members, streams)
// - Counter: cumulative events (messages, commands, posts)
// - Histogram: latency distributions (RPC handling time)

var (
	// ActiveRooms tracks the current number of live chat rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatnet",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live chat rooms",
	})

	// RoomMembers tracks the number of connected members per room
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatnet",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of connected members in each room",
	}, []string{"room"})

	// ChatMessages counts messages fanned out by room dispatchers
	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatnet",
		Subsystem: "room",
		Name:      "chat_messages_total",
		Help:      "Total chat messages fanned out",
	})

	// ChatBytes counts chat payload bytes fanned out by room dispatchers
	ChatBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatnet",
		Subsystem: "room",
		Name:      "chat_bytes_total",
		Help:      "Total chat payload bytes fanned out",
	})

	// ControlCommands counts control-plane commands by command and status
	ControlCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatnet",
		Subsystem: "control",
		Name:      "commands_total",
		Help:      "Total control commands processed",
	}, []string{"command", "status"})

	// RegisteredUsers tracks the number of known social-network accounts
	RegisteredUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatnet",
		Subsystem: "sns",
		Name:      "users_total",
		Help:      "Number of registered social-network users",
	})

	// Posts counts timeline posts accepted from clients
	Posts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatnet",
		Subsystem: "timeline",
		Name:      "posts_total",
		Help:      "Total timeline posts accepted",
	})

	// ActiveTimelineStreams tracks attached timeline streams
	ActiveTimelineStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatnet",
		Subsystem: "timeline",
		Name:      "streams_active",
		Help:      "Current number of attached timeline streams",
	})

	// RPCDuration tracks the time spent handling social-network RPCs
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatnet",
		Subsystem: "sns",
		Name:      "rpc_duration_seconds",
		Help:      "Time spent handling social-network RPCs",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method"})
)
