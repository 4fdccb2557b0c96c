package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/facecheck/internal/capture"
)

// StreamHandler serves the detection loop's preview frames as MJPEG. It
// reads from the preview slot, never from the camera, so it works only
// while a check-in is detecting.
type StreamHandler struct {
	slot *capture.FrameSlot
}

// NewStreamHandler creates a new StreamHandler reading from slot.
func NewStreamHandler(slot *capture.FrameSlot) *StreamHandler {
	return &StreamHandler{slot: slot}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	var seq uint64
	for {
		frame, next, err := h.slot.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if flusher != nil {
			flusher.Flush()
		}
	}
}
