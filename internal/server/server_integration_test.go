package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/facecheck/internal/app"
	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/capture"
	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/store"
)

type fakeAttendance struct {
	photo []byte
}

func (f *fakeAttendance) FetchReferenceImage(context.Context, string) ([]byte, error) {
	return f.photo, nil
}

func (f *fakeAttendance) SubmitAttendance(context.Context, attendance.Submission) error {
	return nil
}

func TestAPI_CheckInWorkflow(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	photo, err := capture.EncodePNG(&frame)
	if err != nil {
		t.Fatal(err)
	}

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	det := detector.NewMockDetector()
	det.SetDescriptors(detector.DescriptorAt(0), nil, detector.DescriptorAt(0.25))

	hub := NewHub(nil)
	preview := capture.NewFrameSlot()
	application, err := app.New(app.Config{
		Session:    checkin.Config{Identity: "7", TickInterval: 10 * time.Millisecond},
		Camera:     capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		Detector:   det,
		Attendance: &fakeAttendance{photo: photo},
		Store:      s,
		Events:     hub,
		Preview:    preview,
	})
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(New(Config{Service: application, Preview: preview, Events: hub}))
	defer ts.Close()
	client := ts.Client()

	// Subscribe before starting so the result event is not missed.
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// 1. Start a check-in
	resp, err := client.Post(ts.URL+"/api/checkins", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/checkins error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	var started struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()
	if started.ID == "" {
		t.Fatal("POST returned no id")
	}

	// 2. Wait for the result event
	var result app.Event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for result.Type != app.EventResult {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading events: %v", err)
		}
		var ev struct {
			Type      string          `json:"type"`
			SessionID string          `json:"session_id"`
			Result    *checkin.Result `json:"result"`
		}
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		result = app.Event{Type: ev.Type, SessionID: ev.SessionID, Result: ev.Result}
	}
	if result.SessionID != started.ID || result.Result == nil || !result.Result.Matched {
		t.Fatalf("result event = %+v", result)
	}

	// 3. Current reports the finished check-in
	resp, _ = client.Get(ts.URL + "/api/checkins/current")
	var current struct {
		SessionID string `json:"session_id"`
		Active    bool   `json:"active"`
		State     string `json:"state"`
	}
	json.NewDecoder(resp.Body).Decode(&current)
	resp.Body.Close()
	if current.SessionID != started.ID || current.Active || current.State != "closed" {
		t.Errorf("current = %+v", current)
	}

	// 4. The journal has it
	resp, _ = client.Get(ts.URL + "/api/checkins/" + started.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/checkins/%s status = %d", started.ID, resp.StatusCode)
	}
	var journaled struct {
		Matched   bool `json:"matched"`
		Submitted bool `json:"submitted"`
	}
	json.NewDecoder(resp.Body).Decode(&journaled)
	resp.Body.Close()
	if !journaled.Matched || !journaled.Submitted {
		t.Errorf("journal = %+v", journaled)
	}

	resp, _ = client.Get(ts.URL + "/api/checkins")
	var list []map[string]any
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}

	// 5. Nothing left to cancel
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/checkins/current", nil)
	resp, _ = client.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	if preview.Seq() == 0 {
		t.Error("detection loop published no preview frames")
	}
}

func TestAPI_CancelRunningCheckIn(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	photo, err := capture.EncodePNG(&frame)
	if err != nil {
		t.Fatal(err)
	}

	det := detector.NewMockDetector()
	det.SetDescriptors(detector.DescriptorAt(0), nil) // never sees a face
	application, err := app.New(app.Config{
		Session:    checkin.Config{Identity: "7", TickInterval: 10 * time.Millisecond},
		Camera:     capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		Detector:   det,
		Attendance: &fakeAttendance{photo: photo},
	})
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(New(Config{Service: application}))
	defer ts.Close()
	client := ts.Client()

	resp, err := client.Post(ts.URL+"/api/checkins", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, _ = client.Post(ts.URL+"/api/checkins", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second POST status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/checkins/current", nil)
	resp, _ = client.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := application.Current()
		if err != nil {
			t.Fatal(err)
		}
		if !st.Active {
			if st.Result == nil || st.Result.Reason != checkin.ReasonUserCancelled {
				t.Errorf("result = %+v, want user_cancelled", st.Result)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("check-in still active after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
