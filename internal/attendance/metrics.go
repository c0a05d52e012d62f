package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_opened_total",
		Help: "Sessions opened.",
	})
	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_sessions_closed_total",
		Help: "Sessions transitioned to closed, by trigger.",
	}, []string{"trigger"})
	checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkins_total",
		Help: "Successful check-ins, by recorded status.",
	}, []string{"status"})
	checkinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkin_rejections_total",
		Help: "Rejected check-ins, by reason.",
	}, []string{"reason"})
	absencesBackfilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_absences_backfilled_total",
		Help: "Absent records written by reconciliation.",
	})
)
