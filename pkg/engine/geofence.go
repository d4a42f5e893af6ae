package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/geo"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/metrics"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type GeofenceInput struct {
	Name      string
	RiskLevel models.RiskLevel
	Polygon   orb.Polygon
}

// geofenceSnapshot is immutable once stored; writers build a new one.
type geofenceSnapshot struct {
	fences []models.Geofence
	bounds []orb.Bound
}

func newGeofenceSnapshot(fences []models.Geofence) *geofenceSnapshot {
	s := &geofenceSnapshot{
		fences: fences,
		bounds: make([]orb.Bound, len(fences)),
	}
	for i := range fences {
		s.bounds[i] = fences[i].Polygon().Bound()
	}
	return s
}

func (s *geofenceSnapshot) with(g models.Geofence) *geofenceSnapshot {
	fences := make([]models.Geofence, 0, len(s.fences)+1)
	fences = append(fences, s.fences...)
	fences = append(fences, g)
	return newGeofenceSnapshot(fences)
}

func (s *geofenceSnapshot) without(id uint) *geofenceSnapshot {
	fences := make([]models.Geofence, 0, len(s.fences))
	for _, g := range s.fences {
		if g.ID != id {
			fences = append(fences, g)
		}
	}
	return newGeofenceSnapshot(fences)
}

func (e *Engine) queryActiveGeofences(ctx context.Context) ([]models.Geofence, error) {
	var fences []models.Geofence
	err := e.Db.Conn.WithContext(ctx).
		Where("active = ?", true).
		Order("id asc").
		Find(&fences).Error
	return fences, err
}

// loadedSnapshot returns the current snapshot, loading it on first use.
func (e *Engine) loadedSnapshot(ctx context.Context) (*geofenceSnapshot, error) {
	if s := e.snapshot.Load(); s != nil {
		return s, nil
	}

	e.geofenceMu.Lock()
	defer e.geofenceMu.Unlock()
	return e.snapshotLocked(ctx)
}

// snapshotLocked must be called with geofenceMu held.
func (e *Engine) snapshotLocked(ctx context.Context) (*geofenceSnapshot, error) {
	if s := e.snapshot.Load(); s != nil {
		return s, nil
	}
	fences, err := e.queryActiveGeofences(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active geofences: %w", err)
	}
	s := newGeofenceSnapshot(fences)
	e.snapshot.Store(s)
	return s, nil
}

func (e *Engine) reloadGeofences(ctx context.Context) error {
	e.geofenceMu.Lock()
	defer e.geofenceMu.Unlock()

	fences, err := e.queryActiveGeofences(ctx)
	if err != nil {
		return fmt.Errorf("load active geofences: %w", err)
	}
	e.snapshot.Store(newGeofenceSnapshot(fences))

	common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryGeofence).
		Info("Geofence snapshot reloaded", zap.Int("active", len(fences)))
	return nil
}

func (e *Engine) createGeofence(ctx context.Context, input *GeofenceInput) (*models.Geofence, error) {
	logger := common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryGeofence)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("geofence name is required")
	}

	risk := input.RiskLevel
	if risk == "" {
		risk = models.RiskLevelLow
	}
	if !risk.Valid() {
		return nil, validationError("unknown risk level %q", risk)
	}

	if err := geo.ValidatePolygon(input.Polygon); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	geofence := models.Geofence{
		Name:      name,
		RiskLevel: risk,
		Area:      datatypes.NewJSONType(input.Polygon.Clone()),
		Active:    true,
	}

	logger.Info("Received geofence",
		zap.String("name", name),
		zap.String("risk_level", string(risk)),
		zap.Int("rings", len(input.Polygon)))

	e.geofenceMu.Lock()
	defer e.geofenceMu.Unlock()

	current, err := e.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.Db.Conn.WithContext(ctx).Create(&geofence).Error; err != nil {
		return nil, fmt.Errorf("store geofence: %w", err)
	}
	e.snapshot.Store(current.with(geofence))

	metrics.GeofenceMutationsTotal.WithLabelValues("create").Inc()
	logger.Info("Geofence created", zap.Uint("id", geofence.ID), zap.String("name", name))
	e.publish(ctx, events.SubjectGeofenceCreated, geofence)

	return &geofence, nil
}

// deleteGeofence deactivates the geofence; alert history keeps pointing at it.
func (e *Engine) deleteGeofence(ctx context.Context, id uint) error {
	logger := common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryGeofence)

	e.geofenceMu.Lock()
	defer e.geofenceMu.Unlock()

	current, err := e.snapshotLocked(ctx)
	if err != nil {
		return err
	}

	var geofence models.Geofence
	err = e.Db.Conn.WithContext(ctx).First(&geofence, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: geofence %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load geofence %d: %w", id, err)
	}

	if !geofence.Active {
		return nil
	}

	if err := e.Db.Conn.WithContext(ctx).Model(&geofence).Update("active", false).Error; err != nil {
		return fmt.Errorf("deactivate geofence %d: %w", id, err)
	}
	e.snapshot.Store(current.without(id))

	metrics.GeofenceMutationsTotal.WithLabelValues("delete").Inc()
	logger.Info("Geofence deactivated", zap.Uint("id", id))
	e.publish(ctx, events.SubjectGeofenceDeleted, map[string]any{"id": id})

	return nil
}

func (e *Engine) listGeofences(ctx context.Context, includeInactive bool) ([]models.Geofence, error) {
	if includeInactive {
		fences := []models.Geofence{}
		err := e.Db.Conn.WithContext(ctx).Order("id asc").Find(&fences).Error
		return fences, err
	}

	s, err := e.loadedSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	fences := make([]models.Geofence, len(s.fences))
	copy(fences, s.fences)
	return fences, nil
}

func (e *Engine) exportOverlay(ctx context.Context) (*geojson.FeatureCollection, error) {
	s, err := e.loadedSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, g := range s.fences {
		f := geojson.NewFeature(g.Polygon())
		f.ID = g.ID
		f.Properties["id"] = g.ID
		f.Properties["name"] = g.Name
		f.Properties["risk_level"] = string(g.RiskLevel)
		fc.Append(f)
	}
	return fc, nil
}

// evaluate scans the active snapshot; the bounding box check only skips
// work and never changes the answer.
func (e *Engine) evaluate(ctx context.Context, point orb.Point) ([]models.Geofence, error) {
	s, err := e.loadedSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var matched []models.Geofence
	for i := range s.fences {
		if !s.bounds[i].Contains(point) {
			continue
		}
		if geo.Contains(point, s.fences[i].Polygon()) {
			matched = append(matched, s.fences[i])
		}
	}
	return matched, nil
}

type IGeofenceImpl struct {
	engine *Engine
}

func (ig *IGeofenceImpl) CreateGeofence(ctx context.Context, input *GeofenceInput) (*models.Geofence, error) {
	return ig.engine.createGeofence(ctx, input)
}

func (ig *IGeofenceImpl) DeleteGeofence(ctx context.Context, id uint) error {
	return ig.engine.deleteGeofence(ctx, id)
}

func (ig *IGeofenceImpl) ListGeofences(ctx context.Context, includeInactive bool) ([]models.Geofence, error) {
	return ig.engine.listGeofences(ctx, includeInactive)
}

func (ig *IGeofenceImpl) ExportOverlay(ctx context.Context) (*geojson.FeatureCollection, error) {
	return ig.engine.exportOverlay(ctx)
}

func (ig *IGeofenceImpl) Evaluate(ctx context.Context, point orb.Point) ([]models.Geofence, error) {
	return ig.engine.evaluate(ctx, point)
}

func (ig *IGeofenceImpl) Reload(ctx context.Context) error {
	return ig.engine.reloadGeofences(ctx)
}

func (e *Engine) GetIGeofence() IGeofence {
	return &IGeofenceImpl{engine: e}
}
