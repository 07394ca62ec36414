package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_submitted_total",
		Help: "Total number of jobs accepted by the notification dispatcher",
	}, []string{"job"})

	jobsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_rejected_total",
		Help: "Total number of jobs refused because the queue was full or stopped",
	}, []string{"job", "reason"})

	jobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_completed_total",
		Help: "Total number of finished notification jobs, by result",
	}, []string{"job", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_job_duration_seconds",
		Help:    "Time spent running a notification job",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"job"})

	queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Jobs waiting in the notification queue",
	})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Total number of notification deliveries, by outcome",
	}, []string{"result"})
)

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
