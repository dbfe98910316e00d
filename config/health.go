package config

import (
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
)

type realtimeState interface {
	ConnectionState() domain.ConnectionState
}

type HealthChecker struct {
	realtime realtimeState
	amqpConn *amqp.Connection
	mqtt     mqtt.Client
}

func NewHealthChecker(realtime realtimeState, amqpConn *amqp.Connection, mqttClient mqtt.Client) *HealthChecker {
	return &HealthChecker{realtime: realtime, amqpConn: amqpConn, mqtt: mqttClient}
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

// Handle reports 503 when a broker is down. A realtime session that is still
// reconnecting is reported as degraded without failing the check.
func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	switch state := h.realtime.ConnectionState(); state {
	case domain.ConnectionConnected:
		deps["realtime"] = gin.H{"status": "up", "state": state}
	default:
		deps["realtime"] = gin.H{"status": "degraded", "state": state}
	}

	if h.amqpConn == nil || h.amqpConn.IsClosed() {
		deps["rabbitmq"] = gin.H{"status": "down", "error": "connection closed"}
		status = http.StatusServiceUnavailable
	} else {
		deps["rabbitmq"] = gin.H{"status": "up"}
	}

	if h.mqtt == nil || !h.mqtt.IsConnected() {
		deps["mqtt"] = gin.H{"status": "down", "error": "not connected"}
		status = http.StatusServiceUnavailable
	} else {
		deps["mqtt"] = gin.H{"status": "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
