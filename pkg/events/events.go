// Package events publishes alert and geofence lifecycle notifications so
// that dashboards and downstream consumers do not have to poll.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
)

const (
	SubjectPrefix = "geoalert"
	SubjectAll    = "geoalert.>"

	SubjectAlertCreated      = "geoalert.alerts.created"
	SubjectAlertAcknowledged = "geoalert.alerts.acknowledged"
	SubjectAlertResolved     = "geoalert.alerts.resolved"

	SubjectGeofenceCreated = "geoalert.geofences.created"
	SubjectGeofenceDeleted = "geoalert.geofences.deleted"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Envelope is the JSON document sent on every subject.
type Envelope struct {
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error {
	return nil
}

type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(url string, opts ...nats.Option) (*NatsPublisher, error) {
	logger := common.GetCategoryLogger(common.LoggerNameEvents, common.LoggerCategoryPublishing)

	opts = append([]nats.Option{
		nats.Name("geoalert"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}, opts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}

	msg, err := json.Marshal(Envelope{
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", subject, err)
	}

	return p.nc.Publish(subject, msg)
}

func (p *NatsPublisher) Flush() error {
	return p.nc.Flush()
}

func (p *NatsPublisher) Close() error {
	return p.nc.Drain()
}
