package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsCreatedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campusride", Name: "trips_created_total", Help: "Total number of trips published"})
	TripsExpiredTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campusride", Name: "trips_expired_total", Help: "Total number of trips auto-expired"})
	TripsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campusride", Name: "trips_completed_total", Help: "Total number of trips completed"})
	TripsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campusride", Name: "trips_cancelled_total", Help: "Total number of trips cancelled by their driver"})

	BookingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campusride", Name: "booking_decisions_total", Help: "Booking requests decided by drivers"},
		[]string{"decision"},
	)

	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campusride", Name: "chat_messages_total", Help: "Chat messages accepted into trip logs"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "campusride", Name: "ws_sessions", Help: "Currently connected realtime sessions"})
)
