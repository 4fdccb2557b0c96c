package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/plugin"
)

// Notification levels understood by the notify plugin.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const notifyTitle = "Face Attendance"

// Notifier shows a check-in outcome to the user.
type Notifier interface {
	Notify(ctx context.Context, event, title, message, level string) error
}

// PluginNotifier delivers notifications through a plugin declaring the
// "notify" action.
type PluginNotifier struct {
	executor *plugin.Executor
	plugin   *plugin.Plugin
	config   json.RawMessage
}

// NewPluginNotifier wraps p.
func NewPluginNotifier(executor *plugin.Executor, p *plugin.Plugin, config json.RawMessage) *PluginNotifier {
	return &PluginNotifier{executor: executor, plugin: p, config: config}
}

type notifyParams struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

// Notify runs the plugin.
func (n *PluginNotifier) Notify(ctx context.Context, event, title, message, level string) error {
	params, err := json.Marshal(notifyParams{Title: title, Message: message, Level: level})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	req := &plugin.Request{
		Action: plugin.ActionNotify,
		Event:  event,
		Config: n.config,
		Params: params,
	}
	return n.executor.Call(ctx, n.plugin, req, nil)
}

// notification builds the message and level shown for res.
func notification(res checkin.Result) (string, string) {
	switch {
	case res.Matched && res.LocationReason != checkin.ReasonNone:
		return checkin.MatchedMessage + " " + res.LocationReason.Message(), LevelWarning
	case res.Matched:
		return checkin.MatchedMessage, LevelInfo
	case res.Reason == checkin.ReasonUserCancelled:
		return res.Message(), LevelInfo
	case res.Reason == checkin.ReasonNoMatch:
		return res.Message(), LevelWarning
	}
	return res.Message(), LevelError
}
