package notifications

import (
	"time"
)

// Tables on the hosted data API.
const (
	TableNotifications = "notifications"
	TableRecipients    = "notification_recipients"
)

const (
	defaultType      = "booking"
	defaultRole      = "driver"
	deliveryStatusOK = "sent"
)

// Message is a single in-app notification for one user. When Subject is set
// the message is also published on the event bus with Payload as event data.
type Message struct {
	UserID  string
	Role    string
	Title   string
	Body    string
	Type    string
	Subject string
	Payload interface{}
}

type notificationRow struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

type recipientRow struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	DeliveryStatus string `json:"delivery_status"`
	CreatedAt      string `json:"created_at"`
}

// JobState is the lifecycle of a dispatched job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobStatus is the observable state of one dispatched job.
type JobStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	State       JobState   `json:"state"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (s JobStatus) Done() bool {
	return s.State == JobSucceeded || s.State == JobFailed
}
