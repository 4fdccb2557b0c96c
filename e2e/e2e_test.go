package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"gocv.io/x/gocv"

	"github.com/ayusman/facecheck/internal/app"
	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/capture"
	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/geo"
	"github.com/ayusman/facecheck/internal/observe"
	"github.com/ayusman/facecheck/internal/plugin"
	"github.com/ayusman/facecheck/internal/presence"
	"github.com/ayusman/facecheck/internal/server"
	"github.com/ayusman/facecheck/internal/store"
)

// odoo is a minimal face_attendance JSON-RPC backend.
type odoo struct {
	mu          sync.Mutex
	photo       string
	color       attendance.Color
	submissions []map[string]any
}

func (o *odoo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Params map[string]any `json:"params"`
		ID     int64          `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c, err := r.Cookie("session_id"); err != nil || c.Value != "sess-1" {
		http.Error(w, "session expired", http.StatusForbidden)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var result any
	switch r.URL.Path {
	case "/face_attendance/employee_profile":
		result = o.photo
	case "/face_attendance/get_attendance_employee_data":
		o.submissions = append(o.submissions, req.Params)
		if o.color == attendance.ColorCheckedIn {
			o.color = attendance.ColorCheckedOut
		} else {
			o.color = attendance.ColorCheckedIn
		}
		result = map[string]any{"attendance_id": len(o.submissions)}
	case "/face_attendance/get_employee_status_data":
		result = string(o.color)
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (o *odoo) submitted() []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]map[string]any(nil), o.submissions...)
}

// writeLocatePlugin installs a shell plugin answering the locate action.
func writeLocatePlugin(t *testing.T, dir string) {
	t.Helper()
	pdir := filepath.Join(dir, "geolocate")
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"geolocate","version":"1.0.0","executable":"locate.sh","actions":["locate"]}`
	if err := os.WriteFile(filepath.Join(pdir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat >/dev/null\necho '{\"success\":true,\"data\":{\"latitude\":20.2961,\"longitude\":85.8245}}'\n"
	if err := os.WriteFile(filepath.Join(pdir, "locate.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestE2E_CheckInOverAPI(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("shell plugins need a POSIX shell")
	}

	tmpDir := t.TempDir()

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	photo, err := capture.EncodePNG(&frame)
	if err != nil {
		t.Fatal(err)
	}

	backend := &odoo{
		photo: attendance.EncodeDataURL("image/png", photo),
		color: attendance.ColorCheckedOut,
	}
	odooSrv := httptest.NewServer(backend)
	defer odooSrv.Close()

	client, err := attendance.NewClient(odooSrv.URL, "sess-1", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	pluginDir := filepath.Join(tmpDir, "plugins")
	writeLocatePlugin(t, pluginDir)
	plugins := plugin.NewManager(pluginDir, nil)
	if err := plugins.Discover(); err != nil {
		t.Fatal(err)
	}
	locatePlugin, err := plugins.Find("geolocate", plugin.ActionLocate)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	mockDetector := detector.NewMockDetector()
	mockDetector.SetDescriptors(
		detector.DescriptorAt(0),   // reference
		nil,                        // nobody in front of the camera yet
		detector.DescriptorAt(0.4), // the user
	)
	camera := capture.NewMockCamera([]*gocv.Mat{&frame}, true)

	hub := server.NewHub(nil)
	preview := capture.NewFrameSlot()
	application, err := app.New(app.Config{
		Session: checkin.Config{
			Identity:     "7",
			TickInterval: 10 * time.Millisecond,
		},
		CompanyID:  1,
		Camera:     camera,
		Detector:   mockDetector,
		Attendance: client,
		Locator:    geo.Chain{geo.NewPluginLocator(plugin.NewExecutor(5*time.Second), locatePlugin, nil)},
		Store:      s,
		Presence:   presence.NewIndicator(client, nil, s.Settings(), "7", nil),
		Events:     hub,
		Preview:    preview,
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- application.Run(ctx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	srv := server.New(server.Config{Service: application, Preview: preview, Events: hub, Metrics: metrics})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	httpClient := ts.Client()

	var sessionID string
	t.Run("StartCheckIn", func(t *testing.T) {
		resp, err := httpClient.Post(ts.URL+"/api/checkins", "application/json", nil)
		if err != nil {
			t.Fatalf("start check-in error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}
		var body struct {
			ID string `json:"id"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		sessionID = body.ID
	})
	if sessionID == "" {
		t.FailNow()
	}

	t.Run("WaitForResult", func(t *testing.T) {
		deadline := time.Now().Add(10 * time.Second)
		for {
			resp, err := httpClient.Get(ts.URL + "/api/checkins/current")
			if err != nil {
				t.Fatal(err)
			}
			var st struct {
				Active bool            `json:"active"`
				Result *checkin.Result `json:"result"`
			}
			json.NewDecoder(resp.Body).Decode(&st)
			resp.Body.Close()
			if !st.Active {
				if st.Result == nil || !st.Result.Matched {
					t.Fatalf("result = %+v, want matched", st.Result)
				}
				if st.Result.Coords == nil || st.Result.Coords.Latitude != 20.2961 {
					t.Errorf("coords = %+v", st.Result.Coords)
				}
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("check-in did not finish")
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("AttendanceSubmitted", func(t *testing.T) {
		subs := backend.submitted()
		if len(subs) != 1 {
			t.Fatalf("submissions = %d, want 1", len(subs))
		}
		sub := subs[0]
		if sub["user"] != float64(7) || sub["company"] != float64(1) {
			t.Errorf("submission ids = user %v company %v", sub["user"], sub["company"])
		}
		if sub["latitude"] != 20.2961 || sub["longitude"] != 85.8245 {
			t.Errorf("submission coords = %v, %v", sub["latitude"], sub["longitude"])
		}
		selfie, _ := sub["selfie"].(string)
		data, err := attendance.DecodeDataURL(selfie)
		if err != nil || len(data) == 0 {
			t.Errorf("selfie is not a data URL: %v", err)
		}
	})

	t.Run("JournalAndPresence", func(t *testing.T) {
		resp, err := httpClient.Get(ts.URL + "/api/checkins/" + sessionID)
		if err != nil {
			t.Fatal(err)
		}
		var c struct {
			Matched   bool     `json:"matched"`
			Submitted bool     `json:"submitted"`
			Latitude  *float64 `json:"latitude"`
		}
		json.NewDecoder(resp.Body).Decode(&c)
		resp.Body.Close()
		if !c.Matched || !c.Submitted || c.Latitude == nil {
			t.Errorf("journal = %+v", c)
		}

		color, err := s.Settings().Get(store.SettingPresenceColor)
		if err != nil || color != string(attendance.ColorCheckedIn) {
			t.Errorf("cached presence = %q, %v", color, err)
		}
	})

	t.Run("CameraReleased", func(t *testing.T) {
		if camera.IsOpen() {
			t.Error("camera still open after check-in")
		}
		if camera.Opens() != 1 || camera.Closes() != 1 {
			t.Errorf("opens = %d, closes = %d", camera.Opens(), camera.Closes())
		}
	})
}
