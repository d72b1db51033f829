// ABOUTME: Posts notices to a Matrix room via mautrix
// ABOUTME: Enabled through notify.matrix in the config file

package notify

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/healthledger/internal/config"
)

// textSender is the part of *mautrix.Client the notifier uses.
type textSender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
}

// Matrix sends each notice as a text message to one room.
type Matrix struct {
	client textSender
	room   id.RoomID
}

// NewMatrix creates a Matrix notifier from config.
func NewMatrix(cfg config.MatrixConfig) (*Matrix, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &Matrix{client: client, room: id.RoomID(cfg.RoomID)}, nil
}

// Notify implements Notifier.
func (m *Matrix) Notify(ctx context.Context, n Notice) error {
	prefix := "ℹ️"
	switch n.Level {
	case LevelSuccess:
		prefix = "✅"
	case LevelError:
		prefix = "❌"
	}
	if _, err := m.client.SendText(ctx, m.room, prefix+" "+n.String()); err != nil {
		return fmt.Errorf("sending matrix notice: %w", err)
	}
	return nil
}
