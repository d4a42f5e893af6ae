package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/db"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/events"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type IGeofence interface {
	CreateGeofence(ctx context.Context, input *GeofenceInput) (*models.Geofence, error)
	DeleteGeofence(ctx context.Context, id uint) error
	ListGeofences(ctx context.Context, includeInactive bool) ([]models.Geofence, error)
	ExportOverlay(ctx context.Context) (*geojson.FeatureCollection, error)
	Evaluate(ctx context.Context, point orb.Point) ([]models.Geofence, error)
	Reload(ctx context.Context) error
}

type ILocation interface {
	Ingest(ctx context.Context, report *models.LocationReport) (*IngestResult, error)
}

type IAlert interface {
	CreateOrDedup(ctx context.Context, input *AlertInput) (*models.Alert, bool, error)
	ListAlerts(ctx context.Context, filter AlertFilter, offset, limit int) ([]models.Alert, error)
	GetAlert(ctx context.Context, id uint) (*models.Alert, error)
	Acknowledge(ctx context.Context, id uint) (*models.Alert, error)
	Resolve(ctx context.Context, id uint) (*models.Alert, error)
	SweepDuplicates(ctx context.Context, offset, limit int) (int, error)
}

type IAuth interface {
	Register(ctx context.Context, email, password string, role models.Role) (*models.User, error)
	Login(ctx context.Context, email, password string) (*Token, error)
	Authenticate(ctx context.Context, token string) (*Principal, error)
	EnsureUser(ctx context.Context, email, password string, role models.Role) (*models.User, bool, error)
}

type Settings struct {
	JWTSecret  []byte
	TokenTTL   time.Duration
	BcryptCost int
}

func (s Settings) withDefaults() Settings {
	if s.TokenTTL <= 0 {
		s.TokenTTL = time.Hour
	}
	if s.BcryptCost == 0 {
		s.BcryptCost = bcrypt.DefaultCost
	}
	return s
}

type Engine struct {
	Db        db.DB
	Geofence  IGeofence
	Location  ILocation
	Alert     IAlert
	Auth      IAuth
	Publisher events.Publisher
	Settings  Settings

	// writers hold geofenceMu; readers only load the snapshot
	geofenceMu sync.Mutex
	snapshot   atomic.Pointer[geofenceSnapshot]

	alertKeys *KeyLock
}

type ServiceOpts struct {
	Geofence IGeofence
	Location ILocation
	Alert    IAlert
	Auth     IAuth
}

// New wires the default implementations of every service around database.
func New(database db.DB, settings Settings) *Engine {
	e := &Engine{
		Db:        database,
		Publisher: events.NopPublisher{},
		Settings:  settings.withDefaults(),
		alertKeys: NewKeyLock(),
	}
	return e.WithServices(ServiceOpts{
		Geofence: e.GetIGeofence(),
		Location: e.GetILocation(),
		Alert:    e.GetIAlert(),
		Auth:     e.GetIAuth(),
	})
}

func (e *Engine) WithServices(opts ServiceOpts) *Engine {
	if opts.Geofence != nil {
		e.Geofence = opts.Geofence
	}
	if opts.Location != nil {
		e.Location = opts.Location
	}
	if opts.Alert != nil {
		e.Alert = opts.Alert
	}
	if opts.Auth != nil {
		e.Auth = opts.Auth
	}
	return e
}

func (e *Engine) WithPublisher(p events.Publisher) *Engine {
	e.Publisher = p
	return e
}

// publish runs after the commit; delivery problems never fail the request.
func (e *Engine) publish(ctx context.Context, subject string, payload any) {
	if e.Publisher == nil {
		return
	}
	if err := e.Publisher.Publish(ctx, subject, payload); err != nil {
		common.GetCategoryLogger(common.LoggerNameEvents, common.LoggerCategoryPublishing).
			Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
