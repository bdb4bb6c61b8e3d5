package scribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scribelab/medscribe/internal/assemblyai"
	"github.com/scribelab/medscribe/internal/audio"
	"github.com/scribelab/medscribe/internal/metrics"
	"github.com/scribelab/medscribe/pkg/logger"
)

var testUpgrader = websocket.Upgrader{}

// fakeStream is an in-process stand-in for the streaming transcription
// service. It records inbound binary chunks and answers a Terminate request
// with a Termination event.
type fakeStream struct {
	srv       *httptest.Server
	audioSecs float64

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	chunks     [][]byte
	terminates int
}

func newFakeStream(audioSecs float64) *fakeStream {
	f := &fakeStream{audioSecs: audioSecs}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeStream) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			f.mu.Lock()
			f.chunks = append(f.chunks, data)
			f.mu.Unlock()
		case websocket.TextMessage:
			var req struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &req) == nil && req.Type == "Terminate" {
				f.mu.Lock()
				f.terminates++
				f.mu.Unlock()
				f.send(map[string]interface{}{
					"type":                   "Termination",
					"audio_duration_seconds": f.audioSecs,
				})
			}
		}
	}
}

// waitConn blocks until a client has connected. The upgrade handshake
// finishes on the client side slightly before the handler records the
// connection, so tests poll instead of assuming it is there.
func (f *fakeStream) waitConn() *websocket.Conn {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// send writes a JSON event to the connected client using the real wire
// field names.
func (f *fakeStream) send(v interface{}) {
	conn := f.waitConn()
	if conn == nil {
		return
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteJSON(v)
}

// dropConn severs the client connection without a close handshake.
func (f *fakeStream) dropConn() {
	if conn := f.waitConn(); conn != nil {
		_ = conn.Close()
	}
}

func (f *fakeStream) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func (f *fakeStream) chunkLen(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.chunks) {
		return -1
	}
	return len(f.chunks[i])
}

func (f *fakeStream) terminateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminates
}

func (f *fakeStream) close() {
	f.srv.Close()
}

// testDialer connects sessions to a fakeStream instead of the real service.
type testDialer struct {
	url     string
	dialErr error
}

func (d *testDialer) DialStream(ctx context.Context, p assemblyai.StreamParams) (*websocket.Conn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	return conn, err
}

// captureSink records published lifecycle events.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Publish(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) count(eventType EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (c *captureSink) last(eventType EventType) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == eventType {
			return c.events[i], true
		}
	}
	return Event{}, false
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		TargetSampleRate: audio.TargetSampleRate,
		ChunkSamples:     audio.ChunkSamples,
		QueueCapacity:    32,
		PollInterval:     10 * time.Millisecond,
		TerminationWait:  time.Second,
		CloseTimeout:     2 * time.Second,
		Params: assemblyai.StreamParams{
			SampleRate:  audio.TargetSampleRate,
			Encoding:    audio.EncodingS16LE,
			FormatTurns: true,
		},
	}
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func makeTestFrame(samples int) audio.Frame {
	data := make([]int16, samples)
	for i := range data {
		data[i] = int16(i % 1000)
	}
	return audio.Frame{Samples: data, SampleRate: audio.TargetSampleRate, Channels: 1, Captured: time.Now()}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionOpenStreamAndClose(t *testing.T) {
	stream := newFakeStream(12.5)
	defer stream.close()

	sink := &captureSink{}
	sess := NewSession("enc-1", testSessionConfig(), &testDialer{url: wsURL(stream.srv.URL)}, sink, newTestMetrics(), logger.NewNop())

	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if sess.State() != StateActive {
		t.Fatalf("Expected state %s, got %s", StateActive, sess.State())
	}
	if sink.count(EventSessionStarted) != 1 {
		t.Errorf("Expected 1 started event, got %d", sink.count(EventSessionStarted))
	}

	stream.send(map[string]interface{}{"type": "Begin", "id": "stream-abc"})
	waitFor(t, 2*time.Second, func() bool { return sess.RemoteID() == "stream-abc" }, "Begin event never recorded")

	sess.IngestFrame(makeTestFrame(audio.ChunkSamples))
	waitFor(t, 2*time.Second, func() bool { return stream.chunkCount() >= 1 }, "Audio chunk never reached the server")
	if got := stream.chunkLen(0); got != audio.ChunkBytes {
		t.Errorf("Expected %d-byte chunk on the wire, got %d", audio.ChunkBytes, got)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sess.State() != StateIdle {
		t.Errorf("Expected state %s after close, got %s", StateIdle, sess.State())
	}
	if stream.terminateCount() != 1 {
		t.Errorf("Expected 1 terminate request, got %d", stream.terminateCount())
	}
	if sess.AudioDuration() != 12.5 {
		t.Errorf("Expected reported audio duration 12.5, got %v", sess.AudioDuration())
	}
	if sink.count(EventSessionStopped) != 1 {
		t.Errorf("Expected 1 stopped event, got %d", sink.count(EventSessionStopped))
	}
}

func TestSessionTurnEvents(t *testing.T) {
	stream := newFakeStream(1)
	defer stream.close()

	sess := NewSession("enc-2", testSessionConfig(), &testDialer{url: wsURL(stream.srv.URL)}, &captureSink{}, newTestMetrics(), logger.NewNop())
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	stream.send(map[string]interface{}{"type": "Turn", "transcript": "hello", "turn_is_formatted": false})
	stream.send(map[string]interface{}{"type": "Turn", "transcript": "hello wor", "turn_is_formatted": false})
	waitFor(t, 2*time.Second, func() bool { return sess.Transcript().Snapshot().Partial == "hello wor" }, "Partial text never recorded")

	if sess.Transcript().Len() != 0 {
		t.Errorf("Expected no finalized turns from partials, got %d", sess.Transcript().Len())
	}

	stream.send(map[string]interface{}{"type": "Turn", "transcript": "Hello, world.", "turn_is_formatted": true})
	waitFor(t, 2*time.Second, func() bool { return sess.Transcript().Len() == 1 }, "Formatted turn never recorded")

	snap := sess.Transcript().Snapshot()
	if snap.Turns[0].Text != "Hello, world." {
		t.Errorf("Expected turn text %q, got %q", "Hello, world.", snap.Turns[0].Text)
	}
	if snap.Turns[0].Speaker != SpeakerDoctor {
		t.Errorf("Expected speaker %q, got %q", SpeakerDoctor, snap.Turns[0].Speaker)
	}
	if snap.Partial != "" {
		t.Errorf("Expected partial cleared by the finalized turn, got %q", snap.Partial)
	}
}

func TestSessionOpenWhileActive(t *testing.T) {
	stream := newFakeStream(1)
	defer stream.close()

	sess := NewSession("enc-3", testSessionConfig(), &testDialer{url: wsURL(stream.srv.URL)}, &captureSink{}, newTestMetrics(), logger.NewNop())
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	err := sess.Open(context.Background())
	if !errors.Is(err, ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}
}

func TestSessionCloseWithoutOpen(t *testing.T) {
	sink := &captureSink{}
	sess := NewSession("enc-4", testSessionConfig(), &testDialer{url: "ws://127.0.0.1:1"}, sink, newTestMetrics(), logger.NewNop())

	if err := sess.Close(); err != nil {
		t.Fatalf("Expected close on idle session to be a no-op, got %v", err)
	}
	if sink.count(EventSessionStopped) != 0 {
		t.Errorf("Expected no stopped events, got %d", sink.count(EventSessionStopped))
	}
}

func TestSessionDoubleClose(t *testing.T) {
	stream := newFakeStream(1)
	defer stream.close()

	sink := &captureSink{}
	sess := NewSession("enc-5", testSessionConfig(), &testDialer{url: wsURL(stream.srv.URL)}, sink, newTestMetrics(), logger.NewNop())
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if sink.count(EventSessionStopped) != 1 {
		t.Errorf("Expected exactly 1 stopped event, got %d", sink.count(EventSessionStopped))
	}
}

func TestSessionFaultOnConnectionLoss(t *testing.T) {
	stream := newFakeStream(1)
	defer stream.close()

	sink := &captureSink{}
	sess := NewSession("enc-6", testSessionConfig(), &testDialer{url: wsURL(stream.srv.URL)}, sink, newTestMetrics(), logger.NewNop())
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	stream.dropConn()
	waitFor(t, 2*time.Second, func() bool { return sess.State() == StateFaulted }, "Session never faulted after connection loss")

	event, ok := sink.last(EventSessionFault)
	if !ok {
		t.Fatal("Expected a fault event")
	}
	if event.Error == "" {
		t.Error("Expected fault event to carry an error message")
	}
	if event.EncounterID != "enc-6" {
		t.Errorf("Expected encounter id enc-6 on the event, got %q", event.EncounterID)
	}

	// A faulted session still closes cleanly.
	if err := sess.Close(); err != nil {
		t.Fatalf("Close after fault failed: %v", err)
	}
	if sess.State() != StateIdle {
		t.Errorf("Expected state %s after close, got %s", StateIdle, sess.State())
	}
}

func TestSessionDialFailure(t *testing.T) {
	stream := newFakeStream(1)
	defer stream.close()

	dialer := &testDialer{url: wsURL(stream.srv.URL), dialErr: errors.New("connection refused")}
	sess := NewSession("enc-7", testSessionConfig(), dialer, &captureSink{}, newTestMetrics(), logger.NewNop())

	if err := sess.Open(context.Background()); err == nil {
		t.Fatal("Expected Open to fail when the dial fails")
	}
	if sess.State() != StateIdle {
		t.Fatalf("Expected state %s after dial failure, got %s", StateIdle, sess.State())
	}

	// The session is reusable once the collaborator is reachable again.
	dialer.dialErr = nil
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	defer sess.Close()

	if sess.State() != StateActive {
		t.Errorf("Expected state %s, got %s", StateActive, sess.State())
	}
}

func TestSessionReopenResetsTranscript(t *testing.T) {
	stream := newFakeStream(1)
	defer stream.close()

	sess := NewSession("enc-8", testSessionConfig(), &testDialer{url: wsURL(stream.srv.URL)}, &captureSink{}, newTestMetrics(), logger.NewNop())
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	stream.send(map[string]interface{}{"type": "Turn", "transcript": "First encounter.", "turn_is_formatted": true})
	waitFor(t, 2*time.Second, func() bool { return sess.Transcript().Len() == 1 }, "Turn never recorded")

	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer sess.Close()

	if sess.Transcript().Len() != 0 {
		t.Errorf("Expected transcript reset on reopen, got %d turns", sess.Transcript().Len())
	}
}
