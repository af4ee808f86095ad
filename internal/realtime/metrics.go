package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "realtime",
	Name:      "connection_state",
	Help:      "Realtime channel state (0=disconnected, 1=connecting, 2=connected).",
})

var reconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "realtime",
	Name:      "reconnect_attempts_total",
	Help:      "Reconnection attempts scheduled after unexpected closes.",
})

var reconnectExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "realtime",
	Name:      "reconnect_exhausted_total",
	Help:      "Times the reconnection budget was exhausted.",
})

var framesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "realtime",
	Name:      "frames_received_total",
	Help:      "Inbound frames dispatched, by frame type.",
}, []string{"type"})

var framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "realtime",
	Name:      "frames_dropped_total",
	Help:      "Inbound frames dropped, by reason.",
}, []string{"reason"})

var handlerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "realtime",
	Name:      "handler_panics_total",
	Help:      "Local listeners that panicked, by event.",
}, []string{"event"})
