package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FanoutTotal 扇出结果计数 result=completed|retryable|fatal
	FanoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsfeed_fanout_total",
		Help: "Total number of fanout operations by result",
	}, []string{"result"})

	FanoutRecipients = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsfeed_fanout_recipients",
		Help:    "Number of timelines a single fanout writes to",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	FanoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsfeed_fanout_duration_seconds",
		Help:    "Duration of fanout operations",
		Buckets: prometheus.DefBuckets,
	})

	// FanoutTaskLag 从推文入 outbox 到扇出完成的延迟（async 模式）
	FanoutTaskLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsfeed_fanout_task_lag_seconds",
		Help:    "Delay between tweet creation and completed asynchronous fanout",
		Buckets: prometheus.DefBuckets,
	})

	FanoutTasksDead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsfeed_fanout_tasks_dead_total",
		Help: "Fanout tasks moved to dead after exhausting retries or failing fatally",
	})

	// CacheRequests 缓存命中统计 cache=followers|profile result=hit|miss
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsfeed_cache_requests_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// CacheResult 记录一次缓存查询
func CacheResult(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(cache, result).Inc()
}
