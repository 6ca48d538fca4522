// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to lines from the serial port and send
// commands to a single serial port device.
//
// A UWB node on the other end of the port prints one "send receive" pair of
// hexadecimal device timestamps per line; Pairs turns a subscription into a
// stream of dwt.Pair values for the tracker.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// subscriberBuffer is how many lines a slow subscriber may fall behind before
// Monitor drops lines for it.
const subscriberBuffer = 256

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html>
<head><title>clocktrack serial</title></head>
<body>
<form method="post" action="send-command-api">
  <input name="command" autofocus>
  <button type="submit">Send</button>
</form>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
new EventSource("tail").onmessage = (e) => { tail.textContent = e.data + "\n" + tail.textContent; };
</script>
</body>
</html>
`))

// SerialMux fans the lines of one serial port out to any number of
// subscribers and serialises writes back to the port.
type SerialMux[T SerialPorter] struct {
	port T

	mu          sync.Mutex // guards subscribers and closed
	subscribers map[string]chan string
	closed      bool

	writeMu sync.Mutex
}

// SerialMuxInterface is the part of SerialMux the harness and the API use.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel of raw lines. The channel is
	// closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated command to the port.
	SendCommand(string) error
	// Monitor copies lines from the port to subscribers until the port is
	// exhausted or ctx is done.
	Monitor(context.Context) error
	Close() error

	// AttachAdminRoutes registers the serial debug pages under /debug/ on
	// mux. tsweb only serves them to local or tailnet callers.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go s.scan(ctx, lines, errc)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return err
				}
				return ctx.Err()
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

// scan reads lines until the port is exhausted or ctx is done, then reports
// the scanner error (nil at EOF) on errc before closing lines.
func (s *SerialMux[T]) scan(ctx context.Context, lines chan<- string, errc chan<- error) {
	defer close(lines)
	sc := bufio.NewScanner(s.port)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			errc <- nil
			return
		}
	}
	errc <- sc.Err()
}

// broadcast hands line to every subscriber with room for it. It reports
// false once the mux is closed.
func (s *SerialMux[T]) broadcast(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
	return true
}

// Close closes every subscription and the port. Calls after the first are
// no-ops.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the serial port", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to serial port", command)
	})

	// Server-Sent Events stream of raw lines from the port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
