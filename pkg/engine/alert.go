package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/metrics"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

const (
	DefaultAlertLimit = 50
	MaxAlertLimit     = 200
)

type AlertInput struct {
	UserID     string
	GeofenceID uint
	Severity   models.RiskLevel
	Lat        float64
	Lng        float64
	Source     models.LocationSource
}

// AlertFilter narrows ListAlerts; zero values match everything.
type AlertFilter struct {
	Status    models.AlertStatus
	RiskLevel models.RiskLevel
}

func dedupKey(userID string, geofenceID *uint) string {
	if geofenceID == nil {
		return userID + "|-"
	}
	return fmt.Sprintf("%s|%d", userID, *geofenceID)
}

func (e *Engine) createOrDedup(ctx context.Context, input *AlertInput) (*models.Alert, bool, error) {
	logger := common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryAlert)

	if strings.TrimSpace(input.UserID) == "" {
		return nil, false, validationError("user_id is required")
	}
	if !input.Severity.Valid() {
		return nil, false, validationError("unknown severity %q", input.Severity)
	}
	source, err := models.ParseLocationSource(string(input.Source))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	geofenceID := input.GeofenceID
	unlock := e.alertKeys.Lock(dedupKey(input.UserID, &geofenceID))
	defer unlock()

	var alert models.Alert
	created := false

	err = e.Db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("user_id = ? AND geofence_id = ? AND status = ?", input.UserID, geofenceID, models.AlertStatusNew).
			Order("created_at desc, id desc").
			First(&alert).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		alert = models.Alert{
			UserID:     input.UserID,
			GeofenceID: &geofenceID,
			Type:       models.AlertTypeZoneEntry,
			Severity:   input.Severity,
			Status:     models.AlertStatusNew,
			Lat:        input.Lat,
			Lng:        input.Lng,
			Source:     source,
		}
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create alert: %w", err)
	}

	if !created {
		metrics.AlertsDeduplicatedTotal.Inc()
		logger.Debug("Alert deduplicated",
			zap.Uint("id", alert.ID),
			zap.String("user_id", alert.UserID),
			zap.Uint("geofence_id", geofenceID))
		return &alert, false, nil
	}

	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Severity)).Inc()
	logger.Info("Alert saved", zap.Reflect("alert", alert))
	e.publish(ctx, events.SubjectAlertCreated, alert)

	return &alert, true, nil
}

func (e *Engine) listAlerts(ctx context.Context, filter AlertFilter, offset, limit int) ([]models.Alert, error) {
	if offset < 0 {
		return nil, validationError("offset must be >= 0")
	}
	if limit == 0 {
		limit = DefaultAlertLimit
	}
	if limit < 1 || limit > MaxAlertLimit {
		return nil, validationError("limit must be between 1 and %d", MaxAlertLimit)
	}

	q := e.Db.Conn.WithContext(ctx).Model(&models.Alert{})
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, validationError("unknown alert status %q", filter.Status)
		}
		q = q.Where("status = ?", filter.Status)
	}
	if filter.RiskLevel != "" {
		if !filter.RiskLevel.Valid() {
			return nil, validationError("unknown risk level %q", filter.RiskLevel)
		}
		q = q.Where("severity = ?", filter.RiskLevel)
	}

	alerts := []models.Alert{}
	err := q.Order("created_at desc").Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (e *Engine) getAlert(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	err := e.Db.Conn.WithContext(ctx).First(&alert, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: alert %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load alert %d: %w", id, err)
	}
	return &alert, nil
}

// transition moves alert id to status `to` when its current status is one of
// `from`. The UPDATE is conditional so concurrent transitions cannot both win.
func (e *Engine) transition(ctx context.Context, id uint, to models.AlertStatus, from []models.AlertStatus) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{"status": to}
	switch to {
	case models.AlertStatusAck:
		updates["acknowledged_at"] = now
	case models.AlertStatusResolved:
		updates["resolved_at"] = now
	}

	res := e.Db.Conn.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update alert %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (e *Engine) acknowledge(ctx context.Context, id uint) (*models.Alert, error) {
	changed, err := e.transition(ctx, id, models.AlertStatusAck, []models.AlertStatus{models.AlertStatusNew})
	if err != nil {
		return nil, err
	}

	alert, err := e.getAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if !changed {
		if alert.Status == models.AlertStatusAck {
			return alert, nil
		}
		return nil, fmt.Errorf("%w: alert %d is %s", ErrInvalidTransition, id, alert.Status)
	}

	e.afterTransition(ctx, alert, events.SubjectAlertAcknowledged)
	return alert, nil
}

func (e *Engine) resolve(ctx context.Context, id uint) (*models.Alert, error) {
	changed, err := e.transition(ctx, id, models.AlertStatusResolved,
		[]models.AlertStatus{models.AlertStatusNew, models.AlertStatusAck})
	if err != nil {
		return nil, err
	}

	alert, err := e.getAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if !changed {
		return nil, fmt.Errorf("%w: alert %d is %s", ErrInvalidTransition, id, alert.Status)
	}

	e.afterTransition(ctx, alert, events.SubjectAlertResolved)
	return alert, nil
}

func (e *Engine) afterTransition(ctx context.Context, alert *models.Alert, subject string) {
	metrics.AlertTransitionsTotal.WithLabelValues(string(alert.Status)).Inc()
	common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryAlert).
		Info("Alert transitioned", zap.Uint("id", alert.ID), zap.String("status", string(alert.Status)))
	e.publish(ctx, subject, alert)
}

// sweepDuplicates walks one page of new alerts in list order. Per
// (user_id, geofence_id) the first alert seen stays new and every later one
// is acknowledged. Running it again on the same page changes nothing.
func (e *Engine) sweepDuplicates(ctx context.Context, offset, limit int) (int, error) {
	page, err := e.listAlerts(ctx, AlertFilter{Status: models.AlertStatusNew}, offset, limit)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(page))
	acknowledged := 0
	for _, alert := range page {
		key := dedupKey(alert.UserID, alert.GeofenceID)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			continue
		}

		changed, err := e.transition(ctx, alert.ID, models.AlertStatusAck, []models.AlertStatus{models.AlertStatusNew})
		if err != nil {
			return acknowledged, err
		}
		if changed {
			acknowledged++
			alert.Status = models.AlertStatusAck
			e.afterTransition(ctx, &alert, events.SubjectAlertAcknowledged)
		}
	}

	if acknowledged > 0 {
		common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryAlert).
			Info("Duplicate alerts acknowledged", zap.Int("count", acknowledged), zap.Int("page_size", len(page)))
	}
	return acknowledged, nil
}

type IAlertImpl struct {
	engine *Engine
}

func (ia *IAlertImpl) CreateOrDedup(ctx context.Context, input *AlertInput) (*models.Alert, bool, error) {
	return ia.engine.createOrDedup(ctx, input)
}

func (ia *IAlertImpl) ListAlerts(ctx context.Context, filter AlertFilter, offset, limit int) ([]models.Alert, error) {
	return ia.engine.listAlerts(ctx, filter, offset, limit)
}

func (ia *IAlertImpl) GetAlert(ctx context.Context, id uint) (*models.Alert, error) {
	return ia.engine.getAlert(ctx, id)
}

func (ia *IAlertImpl) Acknowledge(ctx context.Context, id uint) (*models.Alert, error) {
	return ia.engine.acknowledge(ctx, id)
}

func (ia *IAlertImpl) Resolve(ctx context.Context, id uint) (*models.Alert, error) {
	return ia.engine.resolve(ctx, id)
}

func (ia *IAlertImpl) SweepDuplicates(ctx context.Context, offset, limit int) (int, error) {
	return ia.engine.sweepDuplicates(ctx, offset, limit)
}

func (e *Engine) GetIAlert() IAlert {
	return &IAlertImpl{engine: e}
}
