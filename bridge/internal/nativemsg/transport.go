package nativemsg

import (
	"bufio"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
)

// Transport is one established connection to the native helper.
type Transport interface {
	WriteMessage(v any) error
	ReadMessage() (protocol.Message, error)
	Close() error
}

// Dialer establishes a Transport. The channel invokes it lazily on the
// first send and again after a disconnect.
type Dialer func() (Transport, error)

// stdioTransport spawns the helper binary and speaks length-prefixed
// JSON over its stdin/stdout, the way a browser talks to a native
// messaging host.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	writeMu sync.Mutex
}

// NewStdioTransport starts the helper process at path.
func NewStdioTransport(path string, args ...string) (Transport, error) {
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go logHelperErrors(stderr)

	// collect on exit, nothing to do with the status: a dead helper
	// surfaces as a read error on stdout
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Warn("native helper exited", slog.Any("err", err))
		}
	}()

	return &stdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

func (t *stdioTransport) WriteMessage(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return WriteFrame(t.stdin, v)
}

func (t *stdioTransport) ReadMessage() (protocol.Message, error) {
	var msg protocol.Message
	err := ReadFrame(t.stdout, &msg)
	return msg, err
}

func (t *stdioTransport) Close() error {
	return t.stdin.Close()
}

func logHelperErrors(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)

	for scanner.Scan() {
		slog.Error("native helper stderr", slog.String("line", scanner.Text()))
	}
}
