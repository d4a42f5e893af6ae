package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, engine.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, engine.ErrConflict):
		return codes.FailedPrecondition
	case errors.Is(err, engine.ErrAuth):
		return codes.Unauthenticated
	case errors.Is(err, engine.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, engine.ErrAuthUnavailable):
		return codes.Unavailable
	}
	return codes.Internal
}

func toStatus(method string, err error) error {
	code := codeOf(err)
	if code == codes.Internal {
		common.GetLoggerWith(common.LoggerNameGrpcServer).
			Error("Call failed", zap.String("method", method), zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func validationStatus(issues any) error {
	return status.Errorf(codes.InvalidArgument, "validation error: %v", issues)
}

type ingestRequest struct {
	UserID     string     `json:"user_id"`
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	Speed      float64    `json:"speed"`
	Source     string     `json:"source"`
	ObservedAt *time.Time `json:"observed_at"`
}

var ingestValidator = z.Struct(z.Shape{
	"UserID": z.String().Min(1).Required(),
	"Lat":    z.Ptr(z.Float64().GTE(-90).LTE(90)).NotNil(),
	"Lng":    z.Ptr(z.Float64().GTE(-180).LTE(180)).NotNil(),
	"Speed":  z.Float64().GTE(0),
})

func (s *GeoAlertServer) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ingestRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(FullMethodIngest, err)
	}
	if issues := ingestValidator.Validate(&req); len(issues) > 0 {
		return nil, validationStatus(issues)
	}

	if caller := PrincipalFrom(ctx); caller != nil {
		common.GetLoggerWith(common.LoggerNameGrpcServer).Debug("Location report from authenticated caller",
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

	result, err := s.Engine.Location.Ingest(ctx, report)
	if err != nil {
		return nil, toStatus(FullMethodIngest, err)
	}
	return respond(FullMethodIngest, result)
}

type listGeofencesRequest struct {
	IncludeInactive bool `json:"include_inactive"`
}

func (s *GeoAlertServer) ListGeofences(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listGeofencesRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(FullMethodListGeofences, err)
	}

	fences, err := s.Engine.Geofence.ListGeofences(ctx, req.IncludeInactive)
	if err != nil {
		return nil, toStatus(FullMethodListGeofences, err)
	}
	return respond(FullMethodListGeofences, map[string]any{"geofences": fences})
}

type listAlertsRequest struct {
	Status string `json:"status"`
	Risk   string `json:"risk"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

var listAlertsValidator = z.Struct(z.Shape{
	"Offset": z.Int().GTE(0),
	"Limit":  z.Int().GTE(0).LTE(engine.MaxAlertLimit),
})

func (s *GeoAlertServer) ListAlerts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listAlertsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(FullMethodListAlerts, err)
	}
	if issues := listAlertsValidator.Validate(&req); len(issues) > 0 {
		return nil, validationStatus(issues)
	}

	filter := engine.AlertFilter{
		Status:    models.AlertStatus(req.Status),
		RiskLevel: models.RiskLevel(req.Risk),
	}
	alerts, err := s.Engine.Alert.ListAlerts(ctx, filter, req.Offset, req.Limit)
	if err != nil {
		return nil, toStatus(FullMethodListAlerts, err)
	}
	return respond(FullMethodListAlerts, map[string]any{"alerts": alerts})
}

type alertIDRequest struct {
	ID int `json:"id"`
}

var alertIDValidator = z.Struct(z.Shape{
	"ID": z.Int().Required().GT(0),
})

func decodeAlertID(method string, in *structpb.Struct) (uint, error) {
	var req alertIDRequest
	if err := fromStruct(in, &req); err != nil {
		return 0, toStatus(method, err)
	}
	if issues := alertIDValidator.Validate(&req); len(issues) > 0 {
		return 0, validationStatus(issues)
	}
	return uint(req.ID), nil
}

func (s *GeoAlertServer) AcknowledgeAlert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := decodeAlertID(FullMethodAcknowledgeAlert, in)
	if err != nil {
		return nil, err
	}

	alert, err := s.Engine.Alert.Acknowledge(ctx, id)
	if err != nil {
		return nil, toStatus(FullMethodAcknowledgeAlert, err)
	}
	return respond(FullMethodAcknowledgeAlert, alert)
}

func (s *GeoAlertServer) ResolveAlert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := decodeAlertID(FullMethodResolveAlert, in)
	if err != nil {
		return nil, err
	}

	alert, err := s.Engine.Alert.Resolve(ctx, id)
	if err != nil {
		return nil, toStatus(FullMethodResolveAlert, err)
	}
	return respond(FullMethodResolveAlert, alert)
}

func respond(method string, v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, toStatus(method, fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}
