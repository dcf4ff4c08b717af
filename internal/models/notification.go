package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types emitted by the domain services.
const (
	NotificationMemberJoined     = "member.joined"
	NotificationInviteCancelled  = "invite.cancelled"
	NotificationPaymentDue       = "payment.due"
	NotificationPaymentOverdue   = "payment.overdue"
	NotificationPaymentSucceeded = "payment.succeeded"
	NotificationPaymentReceived  = "payment.received"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	BaseModel

	UserID   string         `gorm:"type:uuid;index" json:"user_id"`
	Type     string         `gorm:"type:varchar(64);not null" json:"type"`
	Title    string         `gorm:"type:varchar(255);not null" json:"title"`
	Message  string         `gorm:"type:text" json:"message"`
	Metadata datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}
