package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPlugin_Geolocate_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	plug := builtPlugin(t, "geolocate")
	executor := NewExecutor(5 * time.Second)

	// Pinned coordinates avoid depending on a location service.
	req := &Request{
		Action: ActionLocate,
		Config: json.RawMessage(`{"latitude":20.2961,"longitude":85.8245}`),
	}

	var coords struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := executor.Call(context.Background(), plug, req, &coords); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if coords.Latitude != 20.2961 || coords.Longitude != 85.8245 {
		t.Errorf("coords = %+v", coords)
	}
}

func TestPlugin_Notify_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	plug := builtPlugin(t, "notify")
	executor := NewExecutor(5 * time.Second)

	// Missing message is rejected by the plugin.
	resp, err := executor.Execute(context.Background(), plug, &Request{
		Action: ActionNotify,
		Params: json.RawMessage(`{"title":"x"}`),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for empty message")
	}

	resp, err = executor.Execute(context.Background(), plug, &Request{
		Action: ActionNotify,
		Event:  "matched",
		Config: json.RawMessage(`{"dry_run":true}`),
		Params: json.RawMessage(`{"message":"Face recognized successfully!"}`),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success && resp.Error != "notifications not supported on windows" {
		t.Errorf("dry run failed: %s", resp.Error)
	}
}

// builtPlugin returns the bundled plugin if its binary has been built next
// to the manifest, skipping the test otherwise.
func builtPlugin(t *testing.T, name string) *Plugin {
	t.Helper()

	dir := findPluginDir(name)
	if dir == "" {
		t.Skipf("%s plugin manifest not found", name)
	}

	mgr := NewManager(filepath.Dir(dir), nil)
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get(name)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := os.Stat(plug.Executable); err != nil {
		t.Skipf("%s plugin not built", name)
	}
	return plug
}

func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		manifest := filepath.Join(dir, "plugin.json")
		if _, err := os.Stat(manifest); err == nil {
			return dir
		}
	}
	return ""
}
