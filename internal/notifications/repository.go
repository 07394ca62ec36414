package notifications

import (
	"context"
	"fmt"

	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
)

// Repository writes in-app notifications on the hosted data API.
type Repository struct {
	client *postgrest.Client
}

// NewRepository creates a new notifications repository
func NewRepository(client *postgrest.Client) *Repository {
	return &Repository{client: client}
}

// CreateNotification inserts the notification row and returns its ID.
func (r *Repository) CreateNotification(ctx context.Context, row notificationRow) (string, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if err := r.client.From(TableNotifications).Insert(row).Once().Into(ctx, &rows); err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", fmt.Errorf("insert notification: no row returned")
	}
	return rows[0].ID, nil
}

// AddRecipient links a user to a notification.
func (r *Repository) AddRecipient(ctx context.Context, row recipientRow) error {
	if _, err := r.client.From(TableRecipients).Insert(row).Once().Execute(ctx); err != nil {
		return fmt.Errorf("insert notification recipient: %w", err)
	}
	return nil
}
