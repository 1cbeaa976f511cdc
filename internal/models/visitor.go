package models

import "time"

type VisitorStatus string

const (
	StatusWaiting   VisitorStatus = "waiting"
	StatusServing   VisitorStatus = "serving"
	StatusServed    VisitorStatus = "served"
	StatusCancelled VisitorStatus = "cancelled"
)

func (s VisitorStatus) Terminal() bool {
	return s == StatusServed || s == StatusCancelled
}

type Visitor struct {
	ID               string        `json:"id"`
	QueueID          string        `json:"queue_id"`
	TicketNumber     int64         `json:"ticket_number"`
	Name             string        `json:"name"`
	Status           VisitorStatus `json:"status"`
	IsPriority       bool          `json:"is_priority"`
	Order            *int          `json:"order"` // manual sort key, nil when never reordered
	JoinTime         time.Time     `json:"join_time"`
	CalledAt         *time.Time    `json:"called_at"`
	ServingStartTime *time.Time    `json:"serving_start_time"`
	ServedTime       *time.Time    `json:"served_time"`
	ServedBy         string        `json:"served_by"`
	IsAlerting       bool          `json:"is_alerting"`
	IsLate           bool          `json:"is_late"`
	Rating           *int          `json:"rating"`
	Feedback         string        `json:"feedback"`
}

// Clone returns a deep copy so pointer fields are never shared between snapshots.
func (v Visitor) Clone() Visitor {
	out := v
	out.Order = cloneInt(v.Order)
	out.Rating = cloneInt(v.Rating)
	out.CalledAt = cloneTime(v.CalledAt)
	out.ServingStartTime = cloneTime(v.ServingStartTime)
	out.ServedTime = cloneTime(v.ServedTime)
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type JoinRequest struct {
	Name string `json:"name" validate:"max=255"`
}

type CallNextRequest struct {
	Counter string `json:"counter" validate:"max=64"`
}

type CallByNumberRequest struct {
	TicketNumber int64  `json:"ticket_number" validate:"required,min=1"`
	Counter      string `json:"counter" validate:"max=64"`
}

type ReorderRequest struct {
	VisitorIDs []string `json:"visitor_ids" validate:"required,dive,required"`
}

type PriorityRequest struct {
	IsPriority bool `json:"is_priority"`
}

type FeedbackRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"max=1000"`
}
