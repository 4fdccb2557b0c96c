package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultIdleTimeout is how long the embedding process may sit unused
// before it is stopped. It is restarted lazily on the next call.
const DefaultIdleTimeout = 30 * time.Second

// ServiceDetector implements Detector with an external embedding process.
//
// Protocol: for every frame the detector writes a 4-byte big-endian length
// followed by the JPEG bytes on the process's stdin, and reads one JSON line
// back: {"faces":[{"descriptor":[...]}]} or {"error":"..."}.
type ServiceDetector struct {
	command     []string
	idleTimeout time.Duration
	log         *slog.Logger

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewServiceDetector creates a detector that runs command (argv form).
// The process is started lazily on first use.
func NewServiceDetector(command []string, logger *slog.Logger) (*ServiceDetector, error) {
	if len(command) == 0 {
		return nil, errors.New("service detector: empty command")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("service detector: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceDetector{
		command:     command,
		idleTimeout: DefaultIdleTimeout,
		log:         logger,
	}, nil
}

type serviceResponse struct {
	Faces []struct {
		Descriptor []float32 `json:"descriptor"`
	} `json:"faces"`
	Error string `json:"error"`
}

// Embed sends frame to the process and returns the first face's descriptor.
// If ctx ends before the process answers, the process is killed so the
// call returns promptly; it is restarted on the next call.
func (d *ServiceDetector) Embed(ctx context.Context, frame *gocv.Mat) (Descriptor, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	type reply struct {
		line string
		err  error
	}
	ch := make(chan reply, 1)
	stdin, stdout := d.stdin, d.stdout
	go func() {
		line, err := exchange(stdin, stdout, data)
		ch <- reply{line, err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		// Unblock the exchange before reaping the process.
		_ = d.cmd.Process.Kill()
		<-ch
		d.kill()
		return nil, ctx.Err()
	}
	if r.err != nil {
		d.kill()
		return nil, r.err
	}

	var resp serviceResponse
	if err := json.Unmarshal([]byte(r.line), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("embedding service: %s", resp.Error)
	}

	d.resetIdleTimer()

	if len(resp.Faces) == 0 {
		return nil, nil
	}
	return Descriptor(resp.Faces[0].Descriptor), nil
}

func exchange(w io.Writer, r *bufio.Reader, data []byte) (string, error) {
	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("write data: %w", err)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Distance returns the Euclidean distance between a and b.
func (d *ServiceDetector) Distance(a, b Descriptor) float64 {
	return EuclideanDistance(a, b)
}

// Close shuts down the process.
func (d *ServiceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *ServiceDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.command[0], d.command[1:]...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start embedding service: %w", err)
	}

	d.log.Debug("embedding service started", "command", d.command, "pid", d.cmd.Process.Pid)

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

// kill stops a process that stopped answering. Must hold d.mu.
func (d *ServiceDetector) kill() {
	if !d.started {
		return
	}
	_ = d.cmd.Process.Kill()
	_ = d.shutdown()
}

func (d *ServiceDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *ServiceDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.idleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.log.Debug("embedding service idle, stopping")
		d.shutdown()
	})
}
