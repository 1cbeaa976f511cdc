package models

import "time"

type QueueStatus string

const (
	QueueActive QueueStatus = "active"
	QueuePaused QueueStatus = "paused"
)

// Capabilities are the optional features a queue owner can switch on.
type Capabilities struct {
	VIP          bool `json:"vip"`
	MultiCounter bool `json:"multi_counter"`
	Anonymous    bool `json:"anonymous"`
}

type Queue struct {
	ID                    string       `json:"id"`
	OwnerID               string       `json:"owner_id"`
	Name                  string       `json:"name"`
	JoinCode              string       `json:"join_code"`
	Status                QueueStatus  `json:"status"`
	DefaultServiceMinutes int          `json:"default_service_minutes"`
	GracePeriodMinutes    int          `json:"grace_period_minutes"`
	AutoSkipMinutes       int          `json:"auto_skip_minutes"` // 0 = disabled
	Announcement          string       `json:"announcement"`
	Capabilities          Capabilities `json:"capabilities"`
	OpenTime              string       `json:"open_time"`  // "HH:MM:SS", empty = always open
	CloseTime             string       `json:"close_time"` // "HH:MM:SS"
	Timezone              string       `json:"timezone"`
	LastTicketNumber      int64        `json:"last_ticket_number"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (q Queue) IsPaused() bool {
	return q.Status == QueuePaused
}

// GracePeriod returns the presence confirmation window.
func (q Queue) GracePeriod() time.Duration {
	return time.Duration(q.GracePeriodMinutes) * time.Minute
}

// AutoSkip returns the serving timeout, zero when disabled.
func (q Queue) AutoSkip() time.Duration {
	if q.AutoSkipMinutes <= 0 {
		return 0
	}
	return time.Duration(q.AutoSkipMinutes) * time.Minute
}

func (q Queue) DefaultServiceTime() time.Duration {
	return time.Duration(q.DefaultServiceMinutes) * time.Minute
}

// QueueSettings holds the mutable configuration of a queue.
type QueueSettings struct {
	Name                  string       `json:"name" validate:"required,max=255"`
	DefaultServiceMinutes int          `json:"default_service_minutes" validate:"min=0,max=1440"`
	GracePeriodMinutes    int          `json:"grace_period_minutes" validate:"min=1,max=1440"`
	AutoSkipMinutes       int          `json:"auto_skip_minutes" validate:"min=0,max=1440"`
	Announcement          string       `json:"announcement" validate:"max=1000"`
	Capabilities          Capabilities `json:"capabilities"`
	OpenTime              string       `json:"open_time" validate:"omitempty,clock"`
	CloseTime             string       `json:"close_time" validate:"omitempty,clock"`
	Timezone              string       `json:"timezone" validate:"omitempty,timezone"`
}

// DefaultQueueSettings mirrors the defaults applied when a queue is created without settings.
func DefaultQueueSettings(name string) QueueSettings {
	return QueueSettings{
		Name:                  name,
		DefaultServiceMinutes: 5,
		GracePeriodMinutes:    2,
	}
}

func (q *Queue) Apply(s QueueSettings) {
	q.Name = s.Name
	q.DefaultServiceMinutes = s.DefaultServiceMinutes
	q.GracePeriodMinutes = s.GracePeriodMinutes
	q.AutoSkipMinutes = s.AutoSkipMinutes
	q.Announcement = s.Announcement
	q.Capabilities = s.Capabilities
	q.OpenTime = s.OpenTime
	q.CloseTime = s.CloseTime
	q.Timezone = s.Timezone
}

type CreateQueueRequest struct {
	OwnerID  string         `json:"owner_id" validate:"required,max=64"`
	Name     string         `json:"name" validate:"required,max=255"`
	Settings *QueueSettings `json:"settings"`
}

type PauseQueueRequest struct {
	Paused bool `json:"paused"`
}
