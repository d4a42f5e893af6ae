package engine_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zapcore"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events"
	eventmocks "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events/mocks"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
	_ "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/testing"
)

// seedAlert writes a row directly, bypassing dedup.
func seedAlert(t *testing.T, e *engine.Engine, userID string, geofenceID uint, severity models.RiskLevel, status models.AlertStatus, createdAt time.Time) models.Alert {
	t.Helper()
	alert := models.Alert{
		UserID:     userID,
		GeofenceID: &geofenceID,
		Type:       models.AlertTypeZoneEntry,
		Severity:   severity,
		Status:     status,
		Source:     models.LocationSourceWeb,
		CreatedAt:  createdAt,
	}
	require.NoError(t, e.Db.Conn.Create(&alert).Error)
	return alert
}

func seedGeofence(t *testing.T, e *engine.Engine, risk models.RiskLevel) models.Geofence {
	t.Helper()
	g, err := e.Geofence.CreateGeofence(context.Background(), zoneA(risk))
	require.NoError(t, err)
	return *g
}

func TestCreateOrDedup(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelHigh)
	input := &engine.AlertInput{UserID: "u", GeofenceID: g.ID, Severity: models.RiskLevelHigh, Lat: 1, Lng: 2}

	first, created, err := e.Alert.CreateOrDedup(ctx, input)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.AlertStatusNew, first.Status)
	assert.Equal(t, models.LocationSourceWeb, first.Source)

	second, created, err := e.Alert.CreateOrDedup(ctx, input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// another user in the same zone is a different key
	other, created, err := e.Alert.CreateOrDedup(ctx, &engine.AlertInput{UserID: "v", GeofenceID: g.ID, Severity: models.RiskLevelHigh})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	_, _, err = e.Alert.CreateOrDedup(ctx, &engine.AlertInput{GeofenceID: g.ID, Severity: models.RiskLevelHigh})
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, _, err = e.Alert.CreateOrDedup(ctx, &engine.AlertInput{UserID: "u", GeofenceID: g.ID, Severity: "critical"})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestConcurrentCreateOrDedup(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelLow)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uint]struct{}{}
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alert, c, err := e.Alert.CreateOrDedup(ctx, &engine.AlertInput{UserID: "u", GeofenceID: g.ID, Severity: models.RiskLevelLow})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[alert.ID] = struct{}{}
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

func TestAlertTransitions(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelHigh)
	now := time.Now().UTC()

	t.Run("acknowledge is idempotent", func(t *testing.T) {
		a := seedAlert(t, e, "ack", g.ID, models.RiskLevelHigh, models.AlertStatusNew, now)

		acked, err := e.Alert.Acknowledge(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AlertStatusAck, acked.Status)
		require.NotNil(t, acked.AcknowledgedAt)

		again, err := e.Alert.Acknowledge(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AlertStatusAck, again.Status)
		assert.True(t, acked.AcknowledgedAt.Equal(*again.AcknowledgedAt))
	})

	t.Run("resolve straight from new", func(t *testing.T) {
		a := seedAlert(t, e, "direct", g.ID, models.RiskLevelHigh, models.AlertStatusNew, now)

		resolved, err := e.Alert.Resolve(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AlertStatusResolved, resolved.Status)
		assert.NotNil(t, resolved.ResolvedAt)
		assert.Nil(t, resolved.AcknowledgedAt)
	})

	t.Run("resolved is terminal", func(t *testing.T) {
		a := seedAlert(t, e, "done", g.ID, models.RiskLevelHigh, models.AlertStatusResolved, now)

		_, err := e.Alert.Acknowledge(ctx, a.ID)
		assert.ErrorIs(t, err, engine.ErrInvalidTransition)
		_, err = e.Alert.Resolve(ctx, a.ID)
		assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := e.Alert.Acknowledge(ctx, 424242)
		assert.ErrorIs(t, err, engine.ErrNotFound)
		_, err = e.Alert.Resolve(ctx, 424242)
		assert.ErrorIs(t, err, engine.ErrNotFound)
		_, err = e.Alert.GetAlert(ctx, 424242)
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func TestConcurrentResolveHasOneWinner(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelHigh)
	a := seedAlert(t, e, "u", g.ID, models.RiskLevelHigh, models.AlertStatusNew, time.Now())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Alert.Resolve(ctx, a.ID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, engine.ErrInvalidTransition)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestListAlerts(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelHigh)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	oldest := seedAlert(t, e, "a", g.ID, models.RiskLevelLow, models.AlertStatusNew, base)
	middle := seedAlert(t, e, "b", g.ID, models.RiskLevelHigh, models.AlertStatusAck, base.Add(time.Minute))
	tieLow := seedAlert(t, e, "c", g.ID, models.RiskLevelHigh, models.AlertStatusNew, base.Add(2*time.Minute))
	tieHigh := seedAlert(t, e, "d", g.ID, models.RiskLevelMedium, models.AlertStatusNew, base.Add(2*time.Minute))

	ids := func(alerts []models.Alert) []uint {
		return common.Mapper(alerts, func(a models.Alert) uint { return a.ID })
	}

	all, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{tieHigh.ID, tieLow.ID, middle.ID, oldest.ID}, ids(all))

	page, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{tieLow.ID, middle.ID}, ids(page))

	beyond, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, beyond)
	assert.NotNil(t, beyond)

	onlyNew, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{Status: models.AlertStatusNew}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{tieHigh.ID, tieLow.ID, oldest.ID}, ids(onlyNew))

	high, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{RiskLevel: models.RiskLevelHigh}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{tieLow.ID, middle.ID}, ids(high))

	both, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{Status: models.AlertStatusNew, RiskLevel: models.RiskLevelHigh}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{tieLow.ID}, ids(both))
}

func TestListAlertsValidation(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	_, err := e.Alert.ListAlerts(ctx, engine.AlertFilter{}, -1, 10)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 0, engine.MaxAlertLimit+1)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 0, -5)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = e.Alert.ListAlerts(ctx, engine.AlertFilter{Status: "open"}, 0, 10)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = e.Alert.ListAlerts(ctx, engine.AlertFilter{RiskLevel: "severe"}, 0, 10)
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = e.Alert.ListAlerts(ctx, engine.AlertFilter{}, 0, engine.MaxAlertLimit)
	assert.NoError(t, err)
}

func TestListAlertsDefaultLimit(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()

	g := seedGeofence(t, e, models.RiskLevelLow)
	base := time.Now().UTC()
	for i := 0; i < engine.DefaultAlertLimit+5; i++ {
		seedAlert(t, e, "u", g.ID, models.RiskLevelLow, models.AlertStatusAck, base.Add(time.Duration(i)*time.Second))
	}

	alerts, err := e.Alert.ListAlerts(context.Background(), engine.AlertFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, engine.DefaultAlertLimit)
}

func TestSweepDuplicates(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g1 := seedGeofence(t, e, models.RiskLevelHigh)
	g2 := seedGeofence(t, e, models.RiskLevelLow)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	olderDup := seedAlert(t, e, "u", g1.ID, models.RiskLevelHigh, models.AlertStatusNew, base)
	newest := seedAlert(t, e, "u", g1.ID, models.RiskLevelHigh, models.AlertStatusNew, base.Add(2*time.Minute))
	middleDup := seedAlert(t, e, "u", g1.ID, models.RiskLevelHigh, models.AlertStatusNew, base.Add(time.Minute))
	otherZone := seedAlert(t, e, "u", g2.ID, models.RiskLevelLow, models.AlertStatusNew, base)
	otherUser := seedAlert(t, e, "v", g1.ID, models.RiskLevelHigh, models.AlertStatusNew, base)

	n, err := e.Alert.SweepDuplicates(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	status := func(id uint) models.AlertStatus {
		a, err := e.Alert.GetAlert(ctx, id)
		require.NoError(t, err)
		return a.Status
	}
	assert.Equal(t, models.AlertStatusNew, status(newest.ID))
	assert.Equal(t, models.AlertStatusAck, status(middleDup.ID))
	assert.Equal(t, models.AlertStatusAck, status(olderDup.ID))
	assert.Equal(t, models.AlertStatusNew, status(otherZone.ID))
	assert.Equal(t, models.AlertStatusNew, status(otherUser.ID))

	n, err = e.Alert.SweepDuplicates(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepDuplicatesOnlyTouchesPage(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelHigh)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	newest := seedAlert(t, e, "u", g.ID, models.RiskLevelHigh, models.AlertStatusNew, base.Add(time.Minute))
	older := seedAlert(t, e, "u", g.ID, models.RiskLevelHigh, models.AlertStatusNew, base)

	// a page of one holds no duplicates
	n, err := e.Alert.SweepDuplicates(ctx, 0, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.Alert.SweepDuplicates(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := e.Alert.GetAlert(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAck, a.Status)
	a, err = e.Alert.GetAlert(ctx, newest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusNew, a.Status)
}

func TestAlertEventsArePublished(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()
	ctx := context.Background()

	g := seedGeofence(t, e, models.RiskLevelHigh)

	publisher := eventmocks.NewMockPublisher(ctrl)
	e.WithPublisher(publisher)

	gomock.InOrder(
		publisher.EXPECT().Publish(gomock.Any(), events.SubjectAlertCreated, gomock.Any()).Return(nil),
		publisher.EXPECT().Publish(gomock.Any(), events.SubjectAlertAcknowledged, gomock.Any()).Return(nil),
		publisher.EXPECT().Publish(gomock.Any(), events.SubjectAlertResolved, gomock.Any()).Return(assert.AnError),
	)

	alert, _, err := e.Alert.CreateOrDedup(ctx, &engine.AlertInput{UserID: "u", GeofenceID: g.ID, Severity: models.RiskLevelHigh})
	require.NoError(t, err)

	// dedup publishes nothing
	_, created, err := e.Alert.CreateOrDedup(ctx, &engine.AlertInput{UserID: "u", GeofenceID: g.ID, Severity: models.RiskLevelHigh})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = e.Alert.Acknowledge(ctx, alert.ID)
	require.NoError(t, err)

	// a failed publish is not a failed resolve
	resolved, err := e.Alert.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
}

func TestCreateOrDedup_WithLog(t *testing.T) {
	var buf = &bytes.Buffer{}
	common.SetTestCaptureLogger(buf, zapcore.InfoLevel)

	ctrl, e, _ := GetMockEngineWithMemorySqliteDialector(t, useMocks{})
	defer ctrl.Finish()

	g := seedGeofence(t, e, models.RiskLevelMedium)
	_, _, err := e.Alert.CreateOrDedup(context.Background(), &engine.AlertInput{UserID: "u", GeofenceID: g.ID, Severity: models.RiskLevelMedium})
	require.NoError(t, err)

	entry := findLog(ParseLogs(buf), "Alert saved")
	require.NotNil(t, entry)
	assert.Equal(t, common.LoggerCategoryAlert, entry[common.LoggerFieldCategory])

	alert, ok := entry["alert"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u", alert["user_id"])
	assert.Equal(t, "medium", alert["severity"])
	assert.Equal(t, "new", alert["status"])
}
