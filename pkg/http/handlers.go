package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/geo"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/importer"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid id %q", c.Param("id"))
		return 0, false
	}
	return uint(id), true
}

type LoginRequest struct {
	Email    string `json:"email" form:"username"`
	Password string `json:"password" form:"password"`
}

var loginRequestSchema = z.Struct(z.Shape{
	"Email":    z.String().Required(),
	"Password": z.String().Required(),
})

// Login accepts a JSON body or the username/password form used by OAuth2
// password clients.
func (rs *RestfulServer) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if issues := loginRequestSchema.Validate(&req); len(issues) > 0 {
		badRequest(c, "%s", issuesMessage(issues))
		return
	}

	token, err := rs.Engine.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

var registerRequestSchema = z.Struct(z.Shape{
	"Email":    z.String().Email().Required(),
	"Password": z.String().Min(engine.MinPasswordLength).Required(),
})

func (rs *RestfulServer) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if issues := registerRequestSchema.Validate(&req); len(issues) > 0 {
		badRequest(c, "%s", issuesMessage(issues))
		return
	}

	user, err := rs.Engine.Auth.Register(c.Request.Context(), req.Email, req.Password, models.Role(req.Role))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (rs *RestfulServer) ListGeofences(c *gin.Context) {
	includeInactive := false
	if v := c.Query("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "include_inactive must be a boolean")
			return
		}
		includeInactive = b
	}

	fences, err := rs.Engine.Geofence.ListGeofences(c.Request.Context(), includeInactive)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fences)
}

func (rs *RestfulServer) GeofenceOverlay(c *gin.Context) {
	fc, err := rs.Engine.Geofence.ExportOverlay(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, fc)
}

type GeofenceRequest struct {
	Name        string          `json:"name"`
	RiskLevel   string          `json:"risk_level"`
	Coordinates json.RawMessage `json:"coordinates"`
}

var geofenceRequestSchema = z.Struct(z.Shape{
	"Name": z.String().Required(),
})

func (rs *RestfulServer) CreateGeofence(c *gin.Context) {
	var req GeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if issues := geofenceRequestSchema.Validate(&req); len(issues) > 0 {
		badRequest(c, "%s", issuesMessage(issues))
		return
	}

	risk, err := models.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	polygon, err := geo.ParseCoordinates(req.Coordinates)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	g, err := rs.Engine.Geofence.CreateGeofence(c.Request.Context(), &engine.GeofenceInput{
		Name:      req.Name,
		RiskLevel: risk,
		Polygon:   polygon,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, g)
}

func (rs *RestfulServer) DeleteGeofence(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := rs.Engine.Geofence.DeleteGeofence(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (rs *RestfulServer) ImportGeofences(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer file.Close()

	result, err := rs.Importer.ImportFile(c.Request.Context(), header.Filename, file)
	if errors.Is(err, importer.ErrUnsupportedFormat) {
		badRequest(c, "%v", err)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ImportUsers accepts a multipart "file" field holding a users CSV.
func (rs *RestfulServer) ImportUsers(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		badRequest(c, "upload a .csv file")
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer file.Close()

	result, err := rs.Importer.ImportUsersCSV(c.Request.Context(), file)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type IngestRequest struct {
	UserID     string     `json:"user_id"`
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	Speed      float64    `json:"speed"`
	Source     string     `json:"source"`
	ObservedAt *time.Time `json:"observed_at"`
}

var ingestRequestSchema = z.Struct(z.Shape{
	"UserID": z.String().Required(),
	"Lat":    z.Ptr(z.Float64().GTE(-90).LTE(90)).NotNil(),
	"Lng":    z.Ptr(z.Float64().GTE(-180).LTE(180)).NotNil(),
	"Speed":  z.Float64().GTE(0),
})

func (rs *RestfulServer) IngestLocation(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if issues := ingestRequestSchema.Validate(&req); len(issues) > 0 {
		badRequest(c, "%s", issuesMessage(issues))
		return
	}

	if !rs.CheckUserLimiter(req.UserID) {
		writeError(c, fmt.Errorf("%w for user %s", errRateLimited, req.UserID))
		return
	}
	if caller := principalFrom(c); caller != nil {
		common.GetLoggerWith(common.LoggerNameRestfulServer).Debug("Location report from authenticated caller",
			zap.String("user_id", req.UserID), zap.Uint("caller_id", caller.UserID), zap.String("caller_role", string(caller.Role)))
	}

	report := &models.LocationReport{
		UserID: req.UserID,
		Lat:    *req.Lat,
		Lng:    *req.Lng,
		Speed:  req.Speed,
		Source: models.LocationSource(req.Source),
	}
	if req.ObservedAt != nil {
		report.ObservedAt = req.ObservedAt.UTC()
	}

	result, err := rs.Engine.Location.Ingest(c.Request.Context(), report)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"Rate":  z.Float64().Required().GT(0),
	"Burst": z.Int().Required().GTE(1),
})

func (rs *RestfulServer) PutLimiter(c *gin.Context) {
	userID := c.Param("user_id")

	var req LimiterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%v", err)
		return
	}
	if issues := limiterRequestSchema.Validate(&req); len(issues) > 0 {
		badRequest(c, "%s", issuesMessage(issues))
		return
	}

	// without a limiter store the call succeeds with no effect
	applied := rs.SetLimiter(userID, req.Rate, req.Burst)

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "rate": req.Rate, "burst": req.Burst, "applied": applied})
}

type PageQuery struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit"`
}

type AlertQuery struct {
	PageQuery
	Status string `form:"status"`
	Risk   string `form:"risk"`
}

var pageQuerySchema = z.Struct(z.Shape{
	"Offset": z.Int().GTE(0),
	"Limit":  z.Int().GTE(1).LTE(engine.MaxAlertLimit),
})

// bindPage binds the query into target and validates its paging fields.
func bindPage(c *gin.Context, target any, page *PageQuery) bool {
	if err := c.ShouldBindQuery(target); err != nil {
		badRequest(c, "offset and limit must be integers")
		return false
	}
	if issues := pageQuerySchema.Validate(page); len(issues) > 0 {
		badRequest(c, "%s", issuesMessage(issues))
		return false
	}
	// an explicit limit=0 is not the same as leaving it out
	if _, ok := c.GetQuery("limit"); ok && page.Limit == 0 {
		badRequest(c, "limit must be between 1 and %d", engine.MaxAlertLimit)
		return false
	}
	return true
}

func (rs *RestfulServer) ListAlerts(c *gin.Context) {
	var q AlertQuery
	if !bindPage(c, &q, &q.PageQuery) {
		return
	}

	filter := engine.AlertFilter{
		Status:    models.AlertStatus(q.Status),
		RiskLevel: models.RiskLevel(q.Risk),
	}

	alerts, err := rs.Engine.Alert.ListAlerts(c.Request.Context(), filter, q.Offset, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

func (rs *RestfulServer) GetAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	alert, err := rs.Engine.Alert.GetAlert(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

func (rs *RestfulServer) AcknowledgeAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	alert, err := rs.Engine.Alert.Acknowledge(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

func (rs *RestfulServer) ResolveAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	alert, err := rs.Engine.Alert.Resolve(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

func (rs *RestfulServer) SweepDuplicates(c *gin.Context) {
	var q PageQuery
	if !bindPage(c, &q, &q) {
		return
	}

	n, err := rs.Engine.Alert.SweepDuplicates(c.Request.Context(), q.Offset, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": n})
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
