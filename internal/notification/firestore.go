package notification

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const firestoreCollection = "notifications"

// FirestoreMirror copies notifications into a Firestore collection keyed by notification id,
// for clients that follow their feed through Firebase instead of the websocket.
type FirestoreMirror struct {
	client *firestore.Client
}

// NewFirestoreMirror connects to Firestore with the given service account file.
func NewFirestoreMirror(ctx context.Context, credentialsFile string) (*FirestoreMirror, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreMirror{client: client}, nil
}

func (m *FirestoreMirror) Mirror(ctx context.Context, n db.Notification) error {
	_, err := m.client.Collection(firestoreCollection).Doc(n.ID.String()).Set(ctx, map[string]interface{}{
		"recipientID":    n.RecipientID,
		"senderID":       n.SenderID,
		"organizationID": n.OrganizationID,
		"projectID":      n.ProjectID,
		"taskID":         n.TaskID,
		"type":           string(n.NotificationType),
		"title":          n.Title,
		"message":        n.Message,
		"isRead":         n.IsRead,
		"createdAt":      n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to mirror notification %s: %w", n.ID, err)
	}

	log.Debug().Str("notification_id", n.ID.String()).Msg("notification mirrored to firestore")
	return nil
}

func (m *FirestoreMirror) Close() error {
	return m.client.Close()
}
