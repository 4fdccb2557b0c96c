package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayusman/facecheck/internal/geo"
)

// fakeServer answers JSON-RPC calls per endpoint and records the params.
type fakeServer struct {
	t       *testing.T
	results map[string]any
	errors  map[string]string
	params  map[string]map[string]any
	cookies map[string]string
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	f := &fakeServer{
		t:       t,
		results: map[string]any{},
		errors:  map[string]string{},
		params:  map[string]map[string]any{},
		cookies: map[string]string{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "abc123", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return f, c
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JSONRPC string         `json:"jsonrpc"`
		Method  string         `json:"method"`
		Params  map[string]any `json:"params"`
		ID      int64          `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.JSONRPC != "2.0" || req.Method != "call" {
		http.Error(w, "not json-rpc", http.StatusBadRequest)
		return
	}
	f.params[r.URL.Path] = req.Params
	if c, err := r.Cookie("session_id"); err == nil {
		f.cookies[r.URL.Path] = c.Value
	}

	w.Header().Set("Content-Type", "application/json")
	if msg, ok := f.errors[r.URL.Path]; ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]any{"code": 200, "message": "Odoo Server Error", "data": map[string]any{"message": msg}},
		})
		return
	}
	result, ok := f.results[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"::", "ftp://odoo", "odoo.local"} {
		if _, err := NewClient(u, "", time.Second); err == nil {
			t.Errorf("NewClient(%q) error = nil", u)
		}
	}
}

func TestFetchReferenceImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")

	tests := []struct {
		name    string
		result  any
		want    []byte
		wantErr error
	}{
		{name: "photo", result: EncodeDataURL("image/png", png), want: png},
		{name: "no photo", result: false, wantErr: ErrNotFound},
		{name: "svg placeholder", result: EncodeDataURL("image/svg+xml", []byte("<svg/>")), wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeServer(t)
			f.results[profileEndpoint] = tt.result

			got, err := c.FetchReferenceImage(context.Background(), "7")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FetchReferenceImage() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchReferenceImage() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("image = %q, want %q", got, tt.want)
			}
			if f.params[profileEndpoint]["current_user"] != float64(7) {
				t.Errorf("current_user = %v, want 7", f.params[profileEndpoint]["current_user"])
			}
			if f.cookies[profileEndpoint] != "abc123" {
				t.Errorf("session cookie = %q", f.cookies[profileEndpoint])
			}
		})
	}
}

func TestFetchReferenceImage_Errors(t *testing.T) {
	f, c := newFakeServer(t)
	f.errors[profileEndpoint] = "Access Denied"

	_, err := c.FetchReferenceImage(context.Background(), "7")
	if !errors.Is(err, ErrRPC) {
		t.Errorf("error = %v, want ErrRPC", err)
	}

	// 404 from an unknown route.
	delete(f.errors, profileEndpoint)
	if _, err := c.FetchReferenceImage(context.Background(), "7"); err == nil {
		t.Error("expected error for unknown route")
	}
}

func TestSubmitAttendance(t *testing.T) {
	selfie := []byte("selfie-png")

	t.Run("with coords", func(t *testing.T) {
		f, c := newFakeServer(t)
		f.results[submitEndpoint] = map[string]any{"id": 3, "attendance_state": "checked_in"}

		err := c.SubmitAttendance(context.Background(), Submission{
			Company: 1, User: "7", Selfie: selfie,
			Coords: &geo.Coords{Latitude: 20.29, Longitude: 85.82},
		})
		if err != nil {
			t.Fatalf("SubmitAttendance() error = %v", err)
		}
		p := f.params[submitEndpoint]
		if p["company"] != float64(1) || p["user"] != float64(7) {
			t.Errorf("company/user = %v/%v", p["company"], p["user"])
		}
		if p["latitude"] != 20.29 || p["longitude"] != 85.82 {
			t.Errorf("coords = %v,%v", p["latitude"], p["longitude"])
		}
		got, err := DecodeDataURL(p["selfie"].(string))
		if err != nil || !bytes.Equal(got, selfie) {
			t.Errorf("selfie = %q, %v", got, err)
		}
	})

	t.Run("without coords", func(t *testing.T) {
		f, c := newFakeServer(t)
		f.results[submitEndpoint] = map[string]any{"id": 3}

		if err := c.SubmitAttendance(context.Background(), Submission{Company: 1, User: "7", Selfie: selfie}); err != nil {
			t.Fatalf("SubmitAttendance() error = %v", err)
		}
		p := f.params[submitEndpoint]
		if p["latitude"] != false || p["longitude"] != false {
			t.Errorf("coords = %v,%v, want false", p["latitude"], p["longitude"])
		}
	})

	t.Run("employee not found", func(t *testing.T) {
		f, c := newFakeServer(t)
		f.results[submitEndpoint] = map[string]any{}

		if err := c.SubmitAttendance(context.Background(), Submission{Company: 2, User: "7", Selfie: selfie}); err == nil {
			t.Error("SubmitAttendance() error = nil for empty result")
		}
	})
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		result  any
		want    Color
		wantErr bool
	}{
		{result: "green", want: ColorCheckedIn},
		{result: "red", want: ColorCheckedOut},
		{result: "blue", wantErr: true},
	}
	for _, tt := range tests {
		f, c := newFakeServer(t)
		f.results[statusEndpoint] = tt.result

		got, err := c.StatusColor(context.Background(), "7")
		if (err != nil) != tt.wantErr {
			t.Fatalf("StatusColor() error = %v, wantErr %v", err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("StatusColor() = %q, want %q", got, tt.want)
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	for _, s := range []string{"", "data:image/png,raw", "image/png;base64,AAAA", "data:image/png;base64,!!!"} {
		if _, err := DecodeDataURL(s); err == nil {
			t.Errorf("DecodeDataURL(%q) error = nil", s)
		}
	}
}

func TestUserID(t *testing.T) {
	if userID("42") != 42 {
		t.Error("numeric identity should be sent as a number")
	}
	if userID("admin") != "admin" {
		t.Error("non-numeric identity should stay a string")
	}
}

func TestCall_RespectsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c, err := NewClient(srv.URL, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.StatusColor(ctx, "7"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StatusColor() error = %v, want deadline exceeded", err)
	}
}
