package engine_test

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/db"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine/mocks"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

var testSettings = engine.Settings{
	JWTSecret:  []byte("test-secret-test-secret-test-secret"),
	BcryptCost: bcrypt.MinCost,
}

type mockServices struct {
	Geofence *mocks.MockIGeofence
	Location *mocks.MockILocation
	Alert    *mocks.MockIAlert
	Auth     *mocks.MockIAuth
}

type useMocks struct {
	Geofence bool
	Location bool
	Alert    bool
	Auth     bool
}

// GetMockEngineWithMemorySqliteDialector returns an engine over a private
// in-memory database with the selected services replaced by mocks.
func GetMockEngineWithMemorySqliteDialector(t *testing.T, use useMocks) (*gomock.Controller, *engine.Engine, mockServices) {
	ctrl := gomock.NewController(t)

	dbInstance, err := db.Open(db.UseIsolatedMemorySqliteDialector())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := dbInstance.Conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	e := engine.New(*dbInstance, testSettings)

	m := mockServices{
		Geofence: mocks.NewMockIGeofence(ctrl),
		Location: mocks.NewMockILocation(ctrl),
		Alert:    mocks.NewMockIAlert(ctrl),
		Auth:     mocks.NewMockIAuth(ctrl),
	}

	opts := engine.ServiceOpts{}
	if use.Geofence {
		opts.Geofence = m.Geofence
	}
	if use.Location {
		opts.Location = m.Location
	}
	if use.Alert {
		opts.Alert = m.Alert
	}
	if use.Auth {
		opts.Auth = m.Auth
	}
	e.WithServices(opts)

	return ctrl, e, m
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}

func findLog(logs []any, msg string) map[string]any {
	for _, l := range logs {
		entry, ok := l.(map[string]any)
		if ok && entry["msg"] == msg {
			return entry
		}
	}
	return nil
}

// zoneA is the 0.02 x 0.03 degree box used across the engine tests.
func zoneA(risk models.RiskLevel) *engine.GeofenceInput {
	return &engine.GeofenceInput{
		Name:      "Zone A",
		RiskLevel: risk,
		Polygon: orb.Polygon{{
			{77.20, 28.60}, {77.22, 28.60}, {77.22, 28.63}, {77.20, 28.63}, {77.20, 28.60},
		}},
	}
}
