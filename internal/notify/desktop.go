package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	logx "calalert/pkg/logx"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"

	appName = "calalertd"
)

// DesktopDispatcher posts notifications to the freedesktop notification
// daemon on the session bus. The connection is opened lazily so the
// daemon can start before a session bus exists.
type DesktopDispatcher struct {
	log logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewDesktopDispatcher(log logx.Logger) *DesktopDispatcher {
	return &DesktopDispatcher{log: log.With(logx.String("component", "dbus"))}
}

func (d *DesktopDispatcher) Dispatch(ctx context.Context, n Notification) error {
	conn, err := d.connection()
	if err != nil {
		return fmt.Errorf("session bus: %w", err)
	}

	obj := conn.Object(notifyDest, notifyPath)
	if obj == nil {
		return fmt.Errorf("object %s not found on session bus", notifyDest)
	}

	// expire timeout: -1 lets the desktop environment decide.
	timeout := int32(-1)
	if n.Duration > 0 {
		timeout = int32(n.Duration.Milliseconds())
	}

	call := obj.CallWithContext(ctx, notifyMethod, 0,
		appName,
		uint32(0), // no notification to replace
		"",        // no icon
		n.Title,
		n.Message,
		[]string{},
		map[string]dbus.Variant{},
		timeout,
	)
	if call.Err != nil {
		d.dropConnection()
		return call.Err
	}
	return nil
}

func (d *DesktopDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *DesktopDispatcher) connection() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	d.conn = conn
	d.log.Debug("connected to session bus")
	return conn, nil
}

// dropConnection forces a reconnect on the next dispatch; a failed call
// often means the bus went away with the session.
func (d *DesktopDispatcher) dropConnection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}
