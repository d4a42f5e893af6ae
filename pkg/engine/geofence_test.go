package engine_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zapcore"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events"
	eventmocks "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events/mocks"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/geo"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
	_ "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/testing"
)

func TestCreateGeofence(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelHigh))
	require.NoError(t, err)
	assert.NotZero(t, g.ID)
	assert.True(t, g.Active)
	assert.Equal(t, "Zone A", g.Name)
	assert.Equal(t, models.RiskLevelHigh, g.RiskLevel)

	var stored models.Geofence
	require.NoError(t, e.Db.Conn.First(&stored, g.ID).Error)
	assert.Equal(t, zoneA("").Polygon, stored.Polygon())

	fences, err := e.Geofence.ListGeofences(ctx, false)
	require.NoError(t, err)
	require.Len(t, fences, 1)
	assert.Equal(t, g.ID, fences[0].ID)
}

func TestCreateGeofenceDefaultsRiskToLow(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()

	g, err := e.Geofence.CreateGeofence(context.Background(), zoneA(""))
	require.NoError(t, err)
	assert.Equal(t, models.RiskLevelLow, g.RiskLevel)
}

func TestCreateGeofenceValidation(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	tests := []struct {
		name  string
		input *engine.GeofenceInput
	}{
		{"blank name", &engine.GeofenceInput{Name: "  ", Polygon: zoneA("").Polygon}},
		{"unknown risk", &engine.GeofenceInput{Name: "x", RiskLevel: "extreme", Polygon: zoneA("").Polygon}},
		{"no rings", &engine.GeofenceInput{Name: "x"}},
		{"unclosed ring", &engine.GeofenceInput{Name: "x", Polygon: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}}},
		{"bow tie", &engine.GeofenceInput{Name: "x", Polygon: orb.Polygon{{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}}}},
		{"out of range", &engine.GeofenceInput{Name: "x", Polygon: orb.Polygon{{{0, 0}, {181, 0}, {181, 1}, {0, 0}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Geofence.CreateGeofence(ctx, tt.input)
			assert.ErrorIs(t, err, engine.ErrValidation)
		})
	}

	var count int64
	// direct table writes stay invisible until Reload
	require.NoError(t, e.Db.Conn.Model(&models.Geofence{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteGeofence(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelMedium))
	require.NoError(t, err)

	inside := geo.NewPoint(28.615, 77.21)
	matched, err := e.Geofence.Evaluate(ctx, inside)
	require.NoError(t, err)
	assert.Len(t, matched, 1)

	require.NoError(t, e.Geofence.DeleteGeofence(ctx, g.ID))

	matched, err = e.Geofence.Evaluate(ctx, inside)
	require.NoError(t, err)
	assert.Empty(t, matched)

	overlay, err := e.Geofence.ExportOverlay(ctx)
	require.NoError(t, err)
	assert.Empty(t, overlay.Features)

	// already inactive
	assert.NoError(t, e.Geofence.DeleteGeofence(ctx, g.ID))

	all, err := e.Geofence.ListGeofences(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	assert.ErrorIs(t, e.Geofence.DeleteGeofence(ctx, 9999), engine.ErrNotFound)
}

func TestDeleteGeofenceKeepsAlerts(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelHigh))
	require.NoError(t, err)

	_, err = e.Location.Ingest(ctx, &models.LocationReport{UserID: "u1", Lat: 28.615, Lng: 77.21})
	require.NoError(t, err)

	require.NoError(t, e.Geofence.DeleteGeofence(ctx, g.ID))

	alerts, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].GeofenceID)
	assert.Equal(t, g.ID, *alerts[0].GeofenceID)
	assert.Equal(t, models.RiskLevelHigh, alerts[0].Severity)
}

func TestEvaluate(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	a, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelHigh))
	require.NoError(t, err)

	// overlaps the east half of zone A and has a hole around (28.62, 77.215)
	b, err := e.Geofence.CreateGeofence(ctx, &engine.GeofenceInput{
		Name:      "Zone B",
		RiskLevel: models.RiskLevelLow,
		Polygon: orb.Polygon{
			{{77.21, 28.60}, {77.25, 28.60}, {77.25, 28.64}, {77.21, 28.64}, {77.21, 28.60}},
			{{77.214, 28.618}, {77.216, 28.618}, {77.216, 28.622}, {77.214, 28.622}, {77.214, 28.618}},
		},
	})
	require.NoError(t, err)

	ids := func(fences []models.Geofence) []uint {
		return common.Mapper(fences, func(g models.Geofence) uint { return g.ID })
	}

	tests := []struct {
		name     string
		lat, lng float64
		want     []uint
	}{
		{"only A", 28.615, 77.205, []uint{a.ID}},
		{"A and B", 28.615, 77.215, []uint{a.ID, b.ID}},
		{"A and the hole of B", 28.62, 77.215, []uint{a.ID}},
		{"only B", 28.635, 77.24, []uint{b.ID}},
		{"on shared edge", 28.61, 77.21, []uint{a.ID, b.ID}},
		{"outside", 10, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, err := e.Geofence.Evaluate(ctx, geo.NewPoint(tt.lat, tt.lng))
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(matched))
		})
	}
}

func TestExportOverlay(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelHigh))
	require.NoError(t, err)

	fc, err := e.Geofence.ExportOverlay(ctx)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "Polygon", f.Geometry.GeoJSONType())
	assert.Equal(t, g.ID, f.Properties["id"])
	assert.Equal(t, "Zone A", f.Properties["name"])
	assert.Equal(t, "high", f.Properties["risk_level"])

	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"FeatureCollection"`)
	assert.Contains(t, string(data), `[77.2,28.6]`)
}

func TestReloadPicksUpExternalRows(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	fences, err := e.Geofence.ListGeofences(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, fences)

	row, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelLow))
	require.NoError(t, err)
	// direct table writes stay invisible until Reload
	require.NoError(t, e.Db.Conn.Model(&models.Geofence{}).Where("id = ?", row.ID).Update("name", "Renamed").Error)

	fences, err = e.Geofence.ListGeofences(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "Zone A", fences[0].Name)

	require.NoError(t, e.Geofence.Reload(ctx))

	fences, err = e.Geofence.ListGeofences(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fences[0].Name)
}

func TestConcurrentEvaluateDuringMutations(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	_, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelHigh))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				matched, err := e.Geofence.Evaluate(ctx, geo.NewPoint(28.615, 77.21))
				assert.NoError(t, err)
				assert.NotEmpty(t, matched)
			}
		}()
	}

	for i := 0; i < 5; i++ {
		g, err := e.Geofence.CreateGeofence(ctx, zoneA(models.RiskLevelLow))
		require.NoError(t, err)
		require.NoError(t, e.Geofence.DeleteGeofence(ctx, g.ID))
	}
	wg.Wait()
}

func TestCreateGeofencePublishesEvent(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()

	publisher := eventmocks.NewMockPublisher(ctrl)
	e.WithPublisher(publisher)

	publisher.EXPECT().
		Publish(gomock.Any(), events.SubjectGeofenceCreated, gomock.AssignableToTypeOf(models.Geofence{})).
		Return(nil)
	publisher.EXPECT().
		Publish(gomock.Any(), events.SubjectGeofenceDeleted, gomock.Any()).
		Return(nil)

	g, err := e.Geofence.CreateGeofence(context.Background(), zoneA(models.RiskLevelHigh))
	require.NoError(t, err)
	require.NoError(t, e.Geofence.DeleteGeofence(context.Background(), g.ID))
}

func TestCreateGeofence_WithLog(t *testing.T) {
	var buf = &bytes.Buffer{}
	common.SetTestCaptureLogger(buf, zapcore.InfoLevel)

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()

	g, err := e.Geofence.CreateGeofence(context.Background(), zoneA(models.RiskLevelHigh))
	require.NoError(t, err)

	logs := ParseLogs(buf)
	entry := findLog(logs, "Geofence created")
	require.NotNil(t, entry)
	assert.Equal(t, common.LoggerNameEngine, entry["logger"])
	assert.Equal(t, common.LoggerCategoryGeofence, entry[common.LoggerFieldCategory])
	assert.EqualValues(t, g.ID, entry["id"])
}
