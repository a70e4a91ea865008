package models

import "time"

type NotificationType string

const (
	NotificationCustom          NotificationType = "CUSTOM"
	NotificationOverdueReminder NotificationType = "OVERDUE_REMINDER"
	NotificationDueSoon         NotificationType = "DUE_SOON_REMINDER"
	NotificationFineNotice      NotificationType = "FINE_NOTICE"
)

type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "SENT"
	NotificationFailed NotificationStatus = "FAILED"
)

func (s NotificationStatus) Valid() bool {
	return s == NotificationSent || s == NotificationFailed
}

// Notification is an immutable record of one message sent (or attempted) to a member
type Notification struct {
	ID             int64              `json:"notificationId" db:"id"`
	MemberID       int64              `json:"memberId" db:"member_id"`
	Type           NotificationType   `json:"type" db:"type"`
	Subject        string             `json:"subject" db:"subject"`
	Message        string             `json:"message" db:"message"`
	RecipientEmail string             `json:"recipientEmail" db:"recipient_email"`
	Channel        string             `json:"channel" db:"channel"`
	MessageID      string             `json:"messageId" db:"message_id"`
	Status         NotificationStatus `json:"status" db:"status"`
	Error          string             `json:"error,omitempty" db:"error"`
	DateSent       time.Time          `json:"dateSent" db:"date_sent"`
}

// CustomNotificationRequest is the payload for POST /notifications/custom
type CustomNotificationRequest struct {
	MemberID int64  `json:"memberId" validate:"required,gt=0"`
	Subject  string `json:"subject" validate:"required,max=200"`
	Message  string `json:"message" validate:"required,max=4000"`
}

type NotificationStats struct {
	Total      int                        `json:"total"`
	ByStatus   map[NotificationStatus]int `json:"byStatus"`
	ByType     map[NotificationType]int   `json:"byType"`
	LastSentAt *time.Time                 `json:"lastSentAt,omitempty"`
}

// DispatchResult summarizes a batch of notifications
type DispatchResult struct {
	Message string `json:"message"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}
