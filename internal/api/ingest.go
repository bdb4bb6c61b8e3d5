package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribelab/medscribe/internal/audio"
	"github.com/scribelab/medscribe/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware on the rest
	// of the API; capture pages may be served from anywhere.
	CheckOrigin: func(*http.Request) bool { return true },
}

// captureHello is the first message a capture client sends, describing the
// PCM format of the binary frames that follow.
type captureHello struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
}

func (c captureHello) validate() string {
	if c.SampleRate <= 0 {
		return "sample_rate must be positive"
	}
	if c.Channels < 1 {
		return "channels must be at least 1"
	}
	if c.Encoding != audio.EncodingS16LE && c.Encoding != audio.EncodingF32LE {
		return "encoding must be " + audio.EncodingS16LE + " or " + audio.EncodingF32LE
	}
	return ""
}

// HandleAudioIngest handles GET /ws/audio. A capture client sends one JSON
// hello describing its PCM format, then streams binary frames. Frames that
// arrive with no active encounter are discarded, so a client may connect
// before the encounter starts.
func (h *Handler) HandleAudioIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade ingest connection", logger.Error(err))
		return
	}
	defer conn.Close()

	hello := captureHello{
		SampleRate: h.config.Audio.TargetSampleRate,
		Channels:   1,
		Encoding:   audio.EncodingS16LE,
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return
	}

	switch msgType {
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &hello); err != nil {
			h.closeIngest(conn, "invalid hello: "+err.Error())
			return
		}
		if problem := hello.validate(); problem != "" {
			h.closeIngest(conn, problem)
			return
		}
		if err := conn.WriteJSON(map[string]interface{}{"type": "ready"}); err != nil {
			return
		}
	case websocket.BinaryMessage:
		// No hello: treat the frame as canonical-format audio.
		h.ingestCaptureData(hello, data)
	}

	h.logger.Info("Capture client connected",
		logger.Int("sample_rate", hello.SampleRate),
		logger.Int("channels", hello.Channels),
		logger.String("encoding", hello.Encoding),
		logger.String("remote_addr", r.RemoteAddr))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("Capture client disconnected", logger.Error(err))
			return
		}
		if msgType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		h.ingestCaptureData(hello, data)
	}
}

// ingestCaptureData decodes one binary capture payload and routes it to the
// active session. Ingest errors are already counted; nothing to do here.
func (h *Handler) ingestCaptureData(hello captureHello, data []byte) {
	var samples []int16
	if hello.Encoding == audio.EncodingF32LE {
		samples = audio.DecodeF32LE(data)
	} else {
		samples = audio.DecodeS16LE(data)
	}

	_ = h.service.IngestFrame(audio.Frame{
		Samples:    samples,
		SampleRate: hello.SampleRate,
		Channels:   hello.Channels,
		Captured:   time.Now().UTC(),
	})
}

func (h *Handler) closeIngest(conn *websocket.Conn, reason string) {
	h.logger.Warn("Rejecting capture client", logger.String("reason", reason))
	_ = conn.WriteJSON(map[string]interface{}{"type": "error", "error": reason})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseUnsupportedData, reason))
}
