// Package history keeps a relational audit trail of device sessions: one
// row per registered device with its connect and disconnect times. This is
// management/debugging data, not playback state; failures here never touch
// the sync path.
package history

import (
	"context"
	"time"

	"playsync-service/internal/models"

	"gorm.io/gorm"
)

// DeviceSession is one device's connection window.
type DeviceSession struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         string     `gorm:"column:user_id;type:varchar(64);not null;index"`
	DeviceID       string     `gorm:"column:device_id;type:varchar(64);not null;index"`
	ConnectionID   string     `gorm:"column:connection_id;type:varchar(64);not null;uniqueIndex"`
	DeviceName     string     `gorm:"column:device_name;type:varchar(128);not null"`
	DeviceClass    string     `gorm:"column:device_class;type:varchar(16);not null"`
	ConnectedAt    time.Time  `gorm:"column:connected_at;not null"`
	DisconnectedAt *time.Time `gorm:"column:disconnected_at"`
}

func (DeviceSession) TableName() string {
	return "device_sessions"
}

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) (*Recorder, error) {
	if err := db.AutoMigrate(&DeviceSession{}); err != nil {
		return nil, err
	}
	return &Recorder{db: db}, nil
}

// RecordConnect writes the session row when a device registers.
func (r *Recorder) RecordConnect(ctx context.Context, userID string, device models.Device) error {
	row := DeviceSession{
		UserID:       userID,
		DeviceID:     device.ID,
		ConnectionID: device.ConnectionID,
		DeviceName:   device.Name,
		DeviceClass:  device.Class.String(),
		ConnectedAt:  time.Unix(device.ConnectedAt, 0),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// RecordDisconnect stamps the disconnect time. Unknown connections are a
// no-op, mirroring the registry's idempotent removal.
func (r *Recorder) RecordDisconnect(ctx context.Context, userID, connectionID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&DeviceSession{}).
		Where("user_id = ? AND connection_id = ? AND disconnected_at IS NULL", userID, connectionID).
		Update("disconnected_at", &now).Error
}

// Sessions returns the most recent sessions of a user, newest first.
func (r *Recorder) Sessions(ctx context.Context, userID string, limit int) ([]DeviceSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []DeviceSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("connected_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
