package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 上游调用结果标签取值。
const (
	UpstreamOK      = "ok"
	UpstreamErrCode = "errcode"
	UpstreamError   = "error"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP 请求计数（按路径/方法/状态）"},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP 请求耗时（秒）", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wechat_upstream_requests_total", Help: "微信接口调用次数（按操作/结果）"},
		[]string{"op", "result"},
	)
	CounterOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "counter_operations_total", Help: "计数器操作次数"},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPLatency, UpstreamRequests, CounterOperations)
}

// Handler 返回记录基础 HTTP 指标的中间件。
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPLatency.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
		HTTPRequests.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Exposer 返回标准 Prometheus 暴露处理器。
func Exposer() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
