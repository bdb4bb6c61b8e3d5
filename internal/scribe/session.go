package scribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribelab/medscribe/internal/assemblyai"
	"github.com/scribelab/medscribe/internal/audio"
	"github.com/scribelab/medscribe/internal/metrics"
	"github.com/scribelab/medscribe/pkg/logger"
)

var (
	// ErrSessionActive is returned when a recording session is already open.
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrNoSession is returned when an operation needs an active session.
	ErrNoSession = errors.New("no active recording session")
)

// StreamDialer opens the duplex connection to the transcription
// collaborator.
type StreamDialer interface {
	DialStream(ctx context.Context, p assemblyai.StreamParams) (*websocket.Conn, error)
}

// Ensure the client implements the dialer interface
var _ StreamDialer = (*assemblyai.Client)(nil)

// SessionConfig carries the tunables for one recording session.
type SessionConfig struct {
	TargetSampleRate int
	ChunkSamples     int
	QueueCapacity    int
	PollInterval     time.Duration
	TerminationWait  time.Duration
	CloseTimeout     time.Duration
	Params           assemblyai.StreamParams
}

// Session owns one duplex streaming connection plus the queue, framer, and
// transcript for a single encounter. Two lanes run for its lifetime: the
// sender pops chunks from the bounded queue and writes binary frames, the
// receiver consumes transcription events. A single stop channel is the only
// cancellation primitive; both lanes observe it within one bounded interval.
type Session struct {
	id      string
	cfg     SessionConfig
	dialer  StreamDialer
	events  EventSink
	metrics *metrics.Metrics
	logger  *logger.Logger

	queue      *audio.ChunkQueue
	framer     *audio.Framer
	transcript *Transcript

	mu         sync.Mutex
	state      SessionState
	conn       *websocket.Conn
	stop       chan struct{}
	stopOnce   *sync.Once
	terminated chan struct{}
	wg         *sync.WaitGroup
	remoteID   string
	audioSecs  float64

	writeMu     sync.Mutex // serializes socket writes between sender and Close
	seenEvicted atomic.Uint64
}

// NewSession creates an idle session for the given encounter id.
func NewSession(id string, cfg SessionConfig, dialer StreamDialer, events EventSink, m *metrics.Metrics, log *logger.Logger) *Session {
	queue := audio.NewChunkQueue(cfg.QueueCapacity)
	return &Session{
		id:         id,
		cfg:        cfg,
		dialer:     dialer,
		events:     events,
		metrics:    m,
		logger:     log.Named("session").With(logger.String("encounter_id", id)),
		queue:      queue,
		framer:     audio.NewFramer(cfg.TargetSampleRate, cfg.ChunkSamples, queue),
		transcript: NewTranscript(),
		state:      StateIdle,
	}
}

// Open dials the collaborator and starts both lanes. The session must be
// idle. Any prior stop signal is cleared and stale queued chunks are
// discarded before the lanes start.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrSessionActive, state)
	}
	s.state = StateOpening
	s.stop = make(chan struct{})
	s.stopOnce = &sync.Once{}
	s.terminated = make(chan struct{})
	s.wg = &sync.WaitGroup{}
	s.mu.Unlock()

	if n := s.queue.Drain(); n > 0 {
		s.logger.Debug("Discarded stale queued chunks", logger.Int("count", n))
	}
	s.framer.Reset()
	s.transcript.Reset()

	conn, err := s.dialer.DialStream(ctx, s.cfg.Params)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("failed to open streaming session: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	stop := s.stop
	wg := s.wg
	wg.Add(2)
	go s.senderLoop(stop, conn, wg)
	go s.receiverLoop(stop, conn, wg)
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Info("Recording session active")
	s.publish(EventSessionStarted, "")
	return nil
}

// IngestFrame pushes one capture frame through the framer. Conversion
// errors drop the frame and leave the session running.
func (s *Session) IngestFrame(frame audio.Frame) {
	s.metrics.FramesIngestedTotal.Inc()

	emitted, err := s.framer.Process(frame)
	if err != nil {
		s.metrics.FramesDroppedTotal.Inc()
		s.logger.Warn("Dropped unconvertible frame",
			logger.Int("sample_rate", frame.SampleRate),
			logger.Int("channels", frame.Channels),
			logger.Error(err))
		return
	}

	if emitted > 0 {
		s.metrics.ChunksEmittedTotal.Add(float64(emitted))
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	}
	if ev := s.queue.Evicted(); ev > 0 {
		prev := s.seenEvicted.Swap(ev)
		if ev > prev {
			s.metrics.ChunksEvictedTotal.Add(float64(ev - prev))
		}
	}
}

// senderLoop pops chunks with a bounded wait and writes them as binary
// frames. It exits within one poll interval of the stop signal without
// draining the remaining queue.
func (s *Session) senderLoop(stop <-chan struct{}, conn *websocket.Conn, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		chunk, ok := s.queue.Pop(s.cfg.PollInterval)
		if !ok {
			continue
		}

		s.writeMu.Lock()
		err := conn.WriteMessage(websocket.BinaryMessage, chunk)
		s.writeMu.Unlock()
		if err != nil {
			if stopped(stop) {
				return // errors during an intentional shutdown are swallowed
			}
			s.fault(fmt.Errorf("failed to send audio chunk: %w", err))
			return
		}

		s.metrics.ChunksSentTotal.Inc()
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	}
}

// receiverLoop consumes collaborator messages until termination, a fault,
// or shutdown. The blocking read is unblocked by Close closing the
// connection, so the stop signal is still observed within a bounded
// interval.
func (s *Session) receiverLoop(stop <-chan struct{}, conn *websocket.Conn, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if stopped(stop) {
				return
			}
			s.fault(fmt.Errorf("streaming read failed: %w", err))
			return
		}

		msg, err := assemblyai.ParseMessage(data)
		if err != nil {
			s.logger.Warn("Ignoring malformed streaming message", logger.Error(err))
			continue
		}

		switch msg.Type {
		case assemblyai.MessageTypeBegin:
			s.mu.Lock()
			s.remoteID = msg.ID
			s.mu.Unlock()
			s.logger.Info("Streaming session began", logger.String("stream_id", msg.ID))

		case assemblyai.MessageTypeTurn:
			if s.transcript.Apply(msg.Transcript, msg.TurnIsFormatted) {
				s.metrics.FinalTurnsTotal.Inc()
			} else if strings.TrimSpace(msg.Transcript) != "" {
				s.metrics.PartialEventsTotal.Inc()
			}

		case assemblyai.MessageTypeTermination:
			s.mu.Lock()
			s.audioSecs = msg.AudioDurationSeconds
			terminated := s.terminated
			s.mu.Unlock()
			s.metrics.AudioDurationSeconds.Set(msg.AudioDurationSeconds)
			s.logger.Info("Streaming session terminated by collaborator",
				logger.Float64("audio_duration_sec", msg.AudioDurationSeconds))
			close(terminated)
			return

		default:
			s.logger.Debug("Unhandled streaming message", logger.String("type", msg.Type))
		}
	}
}

// Close sets the stop signal, runs the termination handshake, closes the
// connection, and joins both lanes with a bounded timeout. Calling it with
// no session open, or twice, is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateOpening, StateActive, StateFaulted:
	default:
		s.mu.Unlock()
		return nil
	}
	wasFaulted := s.state == StateFaulted
	s.state = StateClosing
	conn := s.conn
	terminated := s.terminated
	wg := s.wg
	s.mu.Unlock()

	s.signalStop()

	if conn != nil && !wasFaulted {
		s.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, assemblyai.TerminateMessage())
		s.writeMu.Unlock()
		if err != nil {
			s.logger.Debug("Failed to send termination request", logger.Error(err))
		} else {
			select {
			case <-terminated:
			case <-time.After(s.cfg.TerminationWait):
				s.logger.Debug("Timed out waiting for termination event")
			}
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Error closing streaming connection", logger.Error(err))
		}
	}

	if wg != nil {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.cfg.CloseTimeout):
			s.logger.Warn("Session lanes did not exit before timeout")
		}
	}

	s.mu.Lock()
	s.conn = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("Recording session closed")
	s.publish(EventSessionStopped, "")
	return nil
}

// fault marks an active session as faulted, sets the stop signal, and tears
// the connection down so both lanes unwind. Faults reported after close
// begins are swallowed.
func (s *Session) fault(err error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = StateFaulted
	conn := s.conn
	s.mu.Unlock()

	s.logger.Error("Session fault", logger.Error(err))
	s.metrics.SessionFaultsTotal.Inc()

	s.signalStop()
	if conn != nil {
		_ = conn.Close()
	}

	s.publish(EventSessionFault, err.Error())
}

func (s *Session) signalStop() {
	s.mu.Lock()
	once := s.stopOnce
	stop := s.stop
	s.mu.Unlock()
	if once != nil {
		once.Do(func() { close(stop) })
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (s *Session) publish(eventType EventType, errMsg string) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{
		Type:        eventType,
		EncounterID: s.id,
		Error:       errMsg,
		Timestamp:   time.Now().UTC(),
	})
}

// ID returns the encounter id the session records for.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteID returns the collaborator's stream identifier, if a Begin event
// arrived.
func (s *Session) RemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// AudioDuration returns the audio seconds the collaborator reported at
// termination, zero otherwise.
func (s *Session) AudioDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioSecs
}

// Transcript exposes the session's turn accumulator.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// QueueDepth returns the number of chunks waiting to be sent.
func (s *Session) QueueDepth() int {
	return s.queue.Len()
}

// QueueEvicted returns how many chunks overflow has discarded.
func (s *Session) QueueEvicted() uint64 {
	return s.queue.Evicted()
}
