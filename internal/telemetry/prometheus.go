package telemetry

import "github.com/prometheus/client_golang/prometheus"

const webinarNamespace string = "webinar"

var (
	promRoomTotal           prometheus.Gauge
	promPeerTotal           prometheus.Gauge
	ServiceOperationCounter *prometheus.CounterVec
)

func init() {
	promRoomTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: webinarNamespace,
		Subsystem: "room",
		Name:      "total",
	})

	promPeerTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: webinarNamespace,
		Subsystem: "peer",
		Name:      "total",
	})

	ServiceOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   webinarNamespace,
			Subsystem:   "node",
			Name:        "service_operation",
			ConstLabels: prometheus.Labels{"node_id": "1"},
		},
		[]string{"type", "status", "error_type"},
	)

	prometheus.MustRegister(promRoomTotal)
	prometheus.MustRegister(promPeerTotal)
	prometheus.MustRegister(ServiceOperationCounter)
}

func RoomStarted() {
	promRoomTotal.Inc()
}

func RoomClosed() {
	promRoomTotal.Dec()
}

func PeerJoined() {
	promPeerTotal.Inc()
}

func PeerLeft() {
	promPeerTotal.Dec()
}
