package session

import (
	"encoding/json"
	"fmt"

	"github.com/omochice/dialog-session/internal/dialogs"
	"github.com/omochice/dialog-session/internal/events"
	"github.com/omochice/dialog-session/internal/notice"
)

// Notification is a push notification delivered to the device.
type Notification struct {
	ID             string
	OpenedFromTray bool
	Title          string
	Body           string
	// App is the JSON text {"uid": ..., "name": ...} naming the conversation.
	App string
}

type appData struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

func parseApp(raw string) (appData, error) {
	var app appData
	if err := json.Unmarshal([]byte(raw), &app); err != nil {
		return appData{}, fmt.Errorf("failed to parse notification payload: %w", err)
	}
	return app, nil
}

// HandleNotification delivers a push notification to the session. It is
// ignored while logged out.
func (s *Session) HandleNotification(n Notification) {
	s.loop.post(func() {
		if !s.loggedIn {
			s.log.Debug("dropping notification while logged out", "id", n.ID)
			return
		}
		s.handleNotification(n)
	})
}

// handleNotification opens the conversation for a notification the user
// tapped, and shows any other as a transient notice.
func (s *Session) handleNotification(n Notification) {
	app, err := parseApp(n.App)
	if err != nil {
		s.log.Warn("malformed notification", "id", n.ID, "error", err)
	}

	if n.OpenedFromTray {
		s.initialHandled = true
		if err != nil {
			return
		}
		s.bus.Emit(events.Event{Kind: events.OpenDialog, Value: dialogs.OpenRequest{
			UID:        app.UID,
			Name:       app.Name,
			MarkAsRead: true,
		}})
		return
	}

	s.bus.Emit(events.Event{Kind: events.Notice, Value: notice.Info(n.Title, n.Body)})
}
