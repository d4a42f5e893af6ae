package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/geo"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/metrics"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type IngestResult struct {
	ObservedAt   time.Time      `json:"observed_at"`
	Matched      []uint         `json:"matched_geofence_ids"`
	Alerts       []models.Alert `json:"alerts"`
	Created      int            `json:"created"`
	Deduplicated int            `json:"deduplicated"`
}

func validateReport(report *models.LocationReport) error {
	if strings.TrimSpace(report.UserID) == "" {
		return validationError("user_id is required")
	}
	if err := geo.ValidatePoint(report.Lat, report.Lng); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if report.Speed < 0 || math.IsNaN(report.Speed) || math.IsInf(report.Speed, 0) {
		return validationError("speed must be a non-negative number")
	}
	source, err := models.ParseLocationSource(string(report.Source))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	report.Source = source
	return nil
}

func (e *Engine) ingest(ctx context.Context, report *models.LocationReport) (*IngestResult, error) {
	timer := prometheus.NewTimer(metrics.IngestDuration)
	defer timer.ObserveDuration()

	logger := common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryLocation)

	if err := validateReport(report); err != nil {
		metrics.LocationReportsTotal.WithLabelValues("invalid").Inc()
		logger.Warn("Rejected location report", zap.String("user_id", report.UserID), zap.Error(err))
		return nil, err
	}
	if report.ObservedAt.IsZero() {
		report.ObservedAt = time.Now().UTC()
	}

	if e.Geofence == nil || e.Alert == nil {
		metrics.LocationReportsTotal.WithLabelValues("error").Inc()
		return nil, errors.New("geofence or alert service not available")
	}

	matched, err := e.Geofence.Evaluate(ctx, geo.NewPoint(report.Lat, report.Lng))
	if err != nil {
		metrics.LocationReportsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("evaluate location: %w", err)
	}

	result := &IngestResult{
		ObservedAt: report.ObservedAt,
		Matched:    make([]uint, 0, len(matched)),
		Alerts:     make([]models.Alert, 0, len(matched)),
	}

	for _, g := range matched {
		result.Matched = append(result.Matched, g.ID)

		alert, created, err := e.Alert.CreateOrDedup(ctx, &AlertInput{
			UserID:     report.UserID,
			GeofenceID: g.ID,
			Severity:   models.SeverityFromRisk(g.RiskLevel),
			Lat:        report.Lat,
			Lng:        report.Lng,
			Source:     report.Source,
		})
		if err != nil {
			metrics.LocationReportsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("raise alert for geofence %d: %w", g.ID, err)
		}

		result.Alerts = append(result.Alerts, *alert)
		if created {
			result.Created++
		} else {
			result.Deduplicated++
		}
	}

	label := "unmatched"
	if len(matched) > 0 {
		label = "matched"
	}
	metrics.LocationReportsTotal.WithLabelValues(label).Inc()

	logger.Debug("Location report evaluated",
		zap.String("user_id", report.UserID),
		zap.Float64("lat", report.Lat),
		zap.Float64("lng", report.Lng),
		zap.Uints("matched", result.Matched),
		zap.Int("created", result.Created),
		zap.Int("deduplicated", result.Deduplicated))

	return result, nil
}

type ILocationImpl struct {
	engine *Engine
}

func (il *ILocationImpl) Ingest(ctx context.Context, report *models.LocationReport) (*IngestResult, error) {
	return il.engine.ingest(ctx, report)
}

func (e *Engine) GetILocation() ILocation {
	return &ILocationImpl{engine: e}
}
