package config

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type check func(ctx context.Context) error

// HealthChecker reports every configured dependency. Dependencies left nil
// are not reported.
type HealthChecker struct {
	names  []string
	checks map[string]check
}

func NewHealthChecker(db *sql.DB, amqpConn *amqp.Connection, mqttClient mqtt.Client, rdb *redis.Client) *HealthChecker {
	h := &HealthChecker{checks: make(map[string]check)}

	if db != nil {
		h.add("postgres", db.PingContext)
	}
	if amqpConn != nil {
		h.add("rabbitmq", func(context.Context) error {
			if amqpConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		})
	}
	if mqttClient != nil {
		h.add("mqtt", func(context.Context) error {
			if !mqttClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	}
	if rdb != nil {
		h.add("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return h
}

func (h *HealthChecker) add(name string, fn check) {
	h.names = append(h.names, name)
	h.checks[name] = fn
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	for _, name := range h.names {
		if err := h.checks[name](c.Request.Context()); err != nil {
			deps[name] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = gin.H{"status": "up"}
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
