// Package tray provides the system tray indicator for facecheck.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/facecheck/internal/attendance"
)

// Tray is the system tray menu. It implements presence.Display.
type Tray struct {
	onCheckIn   func()
	onCancel    func()
	onDashboard func()
	onQuit      func()
	mu          sync.RWMutex

	// State applied once the menu exists.
	color      attendance.Color
	active     bool
	lastResult string
	hideStock  bool

	// Menu items stored for later updates
	menuStatus     *systray.MenuItem
	menuCheckIn    *systray.MenuItem
	menuCancel     *systray.MenuItem
	menuAttendance *systray.MenuItem
	menuLast       *systray.MenuItem
}

// New creates a new Tray.
func New() *Tray {
	return &Tray{}
}

// OnCheckIn sets the callback for the check-in menu item.
func (t *Tray) OnCheckIn(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCheckIn = fn
}

// OnCancel sets the callback for the cancel menu item.
func (t *Tray) OnCancel(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCancel = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("FaceCheck")
	systray.SetTooltip("Face attendance check-in")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Status: unknown", "Attendance status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuCheckIn = systray.AddMenuItem("Check In / Out", "Verify your face and log attendance")
	t.menuCancel = systray.AddMenuItem("Cancel Check-In", "Stop the running face check")
	t.menuAttendance = systray.AddMenuItem("Attendance", "Log attendance without face check")
	t.menuLast = systray.AddMenuItem("Last: none", "Last check-in result")
	t.menuLast.Disable()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the local dashboard in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit FaceCheck")

	t.applyLocked()
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuCheckIn.ClickedCh:
				t.call(func() func() { return t.onCheckIn })
			case <-t.menuCancel.ClickedCh:
				t.call(func() func() { return t.onCancel })
			case <-t.menuAttendance.ClickedCh:
				// Hidden once presence is known; behaves like check-in before that.
				t.call(func() func() { return t.onCheckIn })
			case <-menuDashboard.ClickedCh:
				t.call(func() func() { return t.onDashboard })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// call runs the callback returned by get outside the lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	fn := get()
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SetStatusColor shows the presence color.
func (t *Tray) SetStatusColor(c attendance.Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.color = c
	t.applyLocked()
}

// HideDefaultAttendance hides the stock attendance item.
func (t *Tray) HideDefaultAttendance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hideStock = true
	t.applyLocked()
}

// SetActive toggles the menu between idle and a running check-in.
func (t *Tray) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = active
	t.applyLocked()
}

// SetLastResult shows the message of the last finished check-in.
func (t *Tray) SetLastResult(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastResult = msg
	t.applyLocked()
}

// applyLocked pushes the stored state to the menu. Callers hold t.mu.
func (t *Tray) applyLocked() {
	if t.menuStatus == nil {
		return
	}

	t.menuStatus.SetTitle(statusTitle(t.color))
	systray.SetTitle(statusIcon(t.color) + " FaceCheck")

	if t.active {
		t.menuCheckIn.Disable()
		t.menuCancel.Enable()
	} else {
		t.menuCheckIn.Enable()
		t.menuCancel.Disable()
	}

	if t.hideStock {
		t.menuAttendance.Hide()
	}

	if t.lastResult == "" {
		t.menuLast.SetTitle("Last: none")
	} else {
		t.menuLast.SetTitle("Last: " + t.lastResult)
	}
}

func statusIcon(c attendance.Color) string {
	switch c {
	case attendance.ColorCheckedIn:
		return "🟢"
	case attendance.ColorCheckedOut:
		return "🔴"
	}
	return "⚪"
}

func statusTitle(c attendance.Color) string {
	switch c {
	case attendance.ColorCheckedIn:
		return statusIcon(c) + " Checked in"
	case attendance.ColorCheckedOut:
		return statusIcon(c) + " Checked out"
	}
	return statusIcon(c) + " Status unknown"
}
