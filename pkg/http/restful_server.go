package http

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/importer"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type RestfulServer struct {
	Server           *gin.Engine
	Engine           *engine.Engine
	Importer         *importer.Importer
	RateLimiterStore *engine.RateLimiterStore

	// AllowOrigins lists the browser origins allowed by CORS; empty or "*"
	// allows any origin.
	AllowOrigins []string
}

func (rs *RestfulServer) GetLimiter(userID string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	} else {
		return rs.RateLimiterStore.GetLimiter(userID)
	}
}

func (rs *RestfulServer) CheckUserLimiter(userID string) bool {
	limiter := rs.GetLimiter(userID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (rs *RestfulServer) SetLimiter(userID string, userRate float64, userBurst int) bool {
	if rs.RateLimiterStore == nil {
		return false
	}
	rs.RateLimiterStore.SetLimiter(userID, rate.Limit(userRate), userBurst)
	return true
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"WWW-Authenticate"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return config
}

func (rs *RestfulServer) Setup() {
	if rs.Importer == nil {
		rs.Importer = importer.New(rs.Engine.Geofence, rs.Engine.Auth)
	}

	// global middleware must be installed before any route is registered
	rs.Server.Use(cors.New(corsConfig(rs.AllowOrigins)))

	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := rs.Server.Group("/auth")
	{
		auth.POST("/login", rs.Login)
		auth.POST("/register", rs.RequireRoles(models.Admins...), rs.Register)
	}

	geofences := rs.Server.Group("/geofences")
	{
		geofences.GET("/", rs.ListGeofences)
		geofences.GET("/geojson", rs.GeofenceOverlay)
		geofences.POST("/", rs.RequireRoles(models.GeofenceEditors...), rs.CreateGeofence)
		geofences.DELETE("/:id", rs.RequireRoles(models.GeofenceEditors...), rs.DeleteGeofence)
	}

	imports := rs.Server.Group("/imports")
	{
		imports.POST("/geofences", rs.RequireRoles(models.GeofenceEditors...), rs.ImportGeofences)
		imports.POST("/users", rs.RequireRoles(models.Admins...), rs.ImportUsers)
	}

	locations := rs.Server.Group("/locations")
	{
		locations.POST("/ingest", rs.OptionalAuth(), rs.IngestLocation)
		locations.PUT("/limiter/:user_id", rs.RequireRoles(models.Admins...), rs.PutLimiter)
	}

	alerts := rs.Server.Group("/alerts")
	{
		alerts.GET("/", rs.ListAlerts)
		alerts.GET("/:id", rs.GetAlert)
		alerts.POST("/:id/acknowledge", rs.RequireRoles(models.AlertHandlers...), rs.AcknowledgeAlert)
		alerts.POST("/:id/resolve", rs.RequireRoles(models.AlertHandlers...), rs.ResolveAlert)
		alerts.POST("/sweep-duplicates", rs.RequireRoles(models.AlertHandlers...), rs.SweepDuplicates)
	}
}
