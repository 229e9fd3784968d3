package domain

import "time"

// Notification is the durable record of an event addressed to a principal.
// Real-time delivery is best effort; this row is the system of record.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	TicketID    string    `json:"ticket_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}
