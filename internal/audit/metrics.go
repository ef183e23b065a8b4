package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PublishedTotal - опубликованные записи аудита по ключу
var PublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "audit",
		Name:      "published_total",
		Help:      "Total number of audit records published by routing key",
	},
	[]string{"routing_key"},
)

// PublishFailures - неудачные публикации по ключу
var PublishFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "balancer",
		Subsystem: "audit",
		Name:      "publish_failures_total",
		Help:      "Total number of failed audit publishes by routing key",
	},
	[]string{"routing_key"},
)
