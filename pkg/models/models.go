package models

import (
	"time"

	"github.com/paulmach/orb"
	"gorm.io/datatypes"
)

type Geofence struct {
	ID        uint                            `gorm:"primaryKey" json:"id"`
	Name      string                          `gorm:"not null" json:"name"`
	RiskLevel RiskLevel                       `gorm:"type:varchar(10);not null;check:risk_level IN ('low','medium','high')" json:"risk_level"`
	Area      datatypes.JSONType[orb.Polygon] `gorm:"not null" json:"coordinates"`
	Active    bool                            `gorm:"index;not null" json:"active"`
	CreatedAt time.Time                       `json:"created_at"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

func (g *Geofence) Polygon() orb.Polygon {
	return g.Area.Data()
}

// LocationReport is consumed by ingestion and never stored as such; alerts
// keep the position and source of the report that raised them.
type LocationReport struct {
	UserID     string
	Lat        float64
	Lng        float64
	Speed      float64
	Source     LocationSource
	ObservedAt time.Time
}

type Alert struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         string         `gorm:"not null;index:idx_alerts_dedup,priority:1" json:"user_id"`
	GeofenceID     *uint          `gorm:"index:idx_alerts_dedup,priority:2" json:"geofence_id"`
	Geofence       *Geofence      `gorm:"foreignKey:GeofenceID;constraint:OnDelete:SET NULL" json:"-"`
	Type           AlertType      `gorm:"type:varchar(20);not null;check:type IN ('zone_entry')" json:"type"`
	Severity       RiskLevel      `gorm:"type:varchar(10);not null;index:idx_alerts_listing,priority:2;check:severity IN ('low','medium','high')" json:"severity"`
	Status         AlertStatus    `gorm:"type:varchar(10);not null;index:idx_alerts_dedup,priority:3;index:idx_alerts_listing,priority:1;check:status IN ('new','ack','resolved')" json:"status"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	Source         LocationSource `gorm:"type:varchar(10)" json:"source"`
	CreatedAt      time.Time      `gorm:"index:idx_alerts_listing,priority:3" json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(10);not null;check:role IN ('tourist','operator','police','admin')" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
