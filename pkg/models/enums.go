package models

import "fmt"

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// ParseRiskLevel maps an empty value to low, the default for new geofences.
func ParseRiskLevel(s string) (RiskLevel, error) {
	if s == "" {
		return RiskLevelLow, nil
	}
	r := RiskLevel(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// SeverityFromRisk is the severity an alert freezes at creation time.
func SeverityFromRisk(r RiskLevel) RiskLevel {
	return r
}

type AlertStatus string

const (
	AlertStatusNew      AlertStatus = "new"
	AlertStatusAck      AlertStatus = "ack"
	AlertStatusResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusNew, AlertStatusAck, AlertStatusResolved:
		return true
	}
	return false
}

func ParseAlertStatus(s string) (AlertStatus, error) {
	st := AlertStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown alert status %q", s)
	}
	return st, nil
}

type AlertType string

const (
	AlertTypeZoneEntry AlertType = "zone_entry"
)

type LocationSource string

const (
	LocationSourceWeb      LocationSource = "web"
	LocationSourceMobile   LocationSource = "mobile"
	LocationSourceWearable LocationSource = "wearable"
)

// ParseLocationSource maps an empty value to web.
func ParseLocationSource(s string) (LocationSource, error) {
	switch src := LocationSource(s); src {
	case "":
		return LocationSourceWeb, nil
	case LocationSourceWeb, LocationSourceMobile, LocationSourceWearable:
		return src, nil
	}
	return "", fmt.Errorf("unknown location source %q", s)
}

type Role string

const (
	RoleTourist  Role = "tourist"
	RoleOperator Role = "operator"
	RolePolice   Role = "police"
	RoleAdmin    Role = "admin"
)

// ParseRole maps an empty value to operator.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case "":
		return RoleOperator, nil
	case RoleTourist, RoleOperator, RolePolice, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

var (
	GeofenceEditors = []Role{RoleAdmin, RoleOperator}
	AlertHandlers   = []Role{RoleAdmin, RoleOperator, RolePolice}
	Admins          = []Role{RoleAdmin}
)
