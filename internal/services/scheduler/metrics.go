package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomogator_sweep_runs_total",
		Help: "Количество запусков задач сверки.",
	}, []string{"task"})

	sweepSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomogator_sweep_skipped_total",
		Help: "Количество пропусков из-за ещё идущего предыдущего запуска.",
	}, []string{"task"})

	jobsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomogator_notification_jobs_published_total",
		Help: "Количество заданий на уведомления, опубликованных в очередь.",
	}, []string{"task"})
)
