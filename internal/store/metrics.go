package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "store",
	Name:      "dispatch_total",
	Help:      "Actions applied to a store, by store and action.",
}, []string{"store", "action"})

var actionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clinic_roomsync",
	Subsystem: "store",
	Name:      "action_errors_total",
	Help:      "Failed store actions, by store and operation.",
}, []string{"store", "op"})
