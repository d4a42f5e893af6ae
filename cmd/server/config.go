package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/db"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events"
)

const (
	defaultHttpHostPort = ":1080"
	limiterIdleTimeout  = 30 * time.Minute
)

func openDatabase() (*db.DB, error) {
	dbType := common.EnvString(common.EnvKeyDBType, "file")
	switch dbType {
	case "file":
		return db.Open(db.UseSqliteDialector())
	case "memory":
		return db.Open(db.UseMemorySqliteDialector())
	case "postgres":
		if strings.TrimSpace(os.Getenv(common.EnvKeyDbDSN)) == "" {
			return nil, fmt.Errorf("%s must be set when %s=postgres", common.EnvKeyDbDSN, common.EnvKeyDBType)
		}
		return db.Open(db.UsePostgresDialector())
	default:
		return nil, fmt.Errorf("unknown %s: %q", common.EnvKeyDBType, dbType)
	}
}

func loadSettings() (engine.Settings, error) {
	settings := engine.Settings{}

	secret := strings.TrimSpace(os.Getenv(common.EnvKeyJWTSecret))
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return settings, fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		common.GetLogger().Warn("No JWT secret configured, generated one for this process; tokens will not survive a restart",
			zap.String("env", common.EnvKeyJWTSecret))
	}
	settings.JWTSecret = []byte(secret)

	if raw := strings.TrimSpace(os.Getenv(common.EnvKeyTokenTTL)); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return settings, fmt.Errorf("invalid %s %q, should be a positive duration like 1h", common.EnvKeyTokenTTL, raw)
		}
		settings.TokenTTL = ttl
	}

	return settings, nil
}

func loadLimiterDefaults() (rate.Limit, int, error) {
	defaultRate := 5.0
	if raw := strings.TrimSpace(os.Getenv(common.EnvKeyDefaultRate)); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid %s, should be a float64 value", common.EnvKeyDefaultRate)
		}
		defaultRate = v
	}

	defaultBurst := 10
	if raw := strings.TrimSpace(os.Getenv(common.EnvKeyDefaultBurst)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid %s, should be an int value", common.EnvKeyDefaultBurst)
		}
		defaultBurst = v
	}

	return rate.Limit(defaultRate), defaultBurst, nil
}

// allowOrigins splits the comma separated CORS origin list.
func allowOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(os.Getenv(common.EnvKeyAllowOrigins), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// newPublisher connects to NATS when a URL is configured. The returned
// close func is always safe to call.
func newPublisher() (events.Publisher, func(), error) {
	url := strings.TrimSpace(os.Getenv(common.EnvKeyNatsURL))
	if url == "" {
		return events.NopPublisher{}, func() {}, nil
	}

	publisher, err := events.NewNatsPublisher(url)
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() { _ = publisher.Close() }, nil
}

// buildEngine wires the database, settings and publisher into an engine
// with a loaded geofence snapshot.
func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	dbInstance, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}

	settings, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}

	publisher, closePublisher, err := newPublisher()
	if err != nil {
		return nil, nil, err
	}

	core := engine.New(*dbInstance, settings).WithPublisher(publisher)
	if err := core.Geofence.Reload(ctx); err != nil {
		closePublisher()
		return nil, nil, err
	}
	return core, closePublisher, nil
}
