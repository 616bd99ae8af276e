package smoketest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// SampleRate is the worker's output rate in Hz.
	SampleRate = 24000

	// APIKeyHeader carries the auth token on the websocket handshake.
	APIKeyHeader = "kyutai-api-key"

	// DefaultAPIKey matches the default authorized ID in the rendered
	// worker config.
	DefaultAPIKey = "public_token"

	// DefaultText is short enough to synthesize in a couple of seconds
	// but long enough to produce a measurable stream.
	DefaultText = "The quick brown fox jumps over the lazy dog."

	DefaultTimeout = 60 * time.Second
)

// Config describes one streaming TTS request.
type Config struct {
	Addr    string
	Port    int
	Path    string // defaults to /api/tts_streaming
	Voice   string
	APIKey  string
	Text    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Result holds the metrics from one request.
type Result struct {
	ConnectTime  time.Duration // websocket handshake
	TTFB         time.Duration // dial start to first audio frame
	Wall         time.Duration // dial start to final frame
	AudioSeconds float64       // synthesized audio duration
	Frames       int           // audio frames received
	Samples      []float32     // decoded PCM, 24 kHz mono
	RTF          float64       // wall / audio; below 1.0 is faster than realtime
}

// Client runs streaming TTS requests against a worker.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// NewClient applies defaults and returns a client.
func NewClient(cfg Config) *Client {
	if cfg.Path == "" {
		cfg.Path = "/api/tts_streaming"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	if cfg.Text == "" {
		cfg.Text = DefaultText
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// endpoint builds the websocket URL for the request.
func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("format", "PcmMessagePack")
	if c.cfg.Voice != "" {
		q.Set("voice", c.cfg.Voice)
	}
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(c.cfg.Addr, strconv.Itoa(c.cfg.Port)),
		Path:     c.cfg.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Run sends one text, streams the audio back, and reports timings.
func (c *Client) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()

	header := http.Header{}
	header.Set(APIKeyHeader, c.cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	connectTime := time.Since(start)
	c.logger.Debug("smoke_connected", "endpoint", c.endpoint(), "connect_ms", connectTime.Milliseconds())

	if err := c.sendBinary(conn, textMessage{Type: "Text", Text: c.cfg.Text}); err != nil {
		return nil, fmt.Errorf("send text: %w", err)
	}
	if err := c.sendBinary(conn, eosMessage{Type: "Eos"}); err != nil {
		return nil, fmt.Errorf("send eos: %w", err)
	}

	result := &Result{ConnectTime: connectTime}

	deadline := start.Add(c.cfg.Timeout)
	conn.SetReadDeadline(deadline)

	// Abort the read loop if the caller's context dies first
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && result.Frames > 0 {
				// Some worker versions close instead of sending a
				// final frame
				break readLoop
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		var frame serverFrame
		if err := msgpack.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}

		switch {
		case frame.Type == "Error":
			return nil, fmt.Errorf("worker error: %s", frame.Text)
		case frame.isAudio():
			if result.Frames == 0 {
				result.TTFB = time.Since(start)
			}
			result.Frames++
			result.Samples = append(result.Samples, frame.samples()...)
		case frame.isFinal():
			result.Wall = time.Since(start)
			break readLoop
		}
	}

	if result.Wall == 0 {
		result.Wall = time.Since(start)
	}
	if result.Frames == 0 {
		return nil, fmt.Errorf("stream ended with no audio frames")
	}

	result.AudioSeconds = float64(len(result.Samples)) / SampleRate
	if result.AudioSeconds > 0 {
		result.RTF = result.Wall.Seconds() / result.AudioSeconds
	}

	c.logger.Info("smoke_complete",
		"ttfb_ms", result.TTFB.Milliseconds(),
		"wall_ms", result.Wall.Milliseconds(),
		"audio_s", fmt.Sprintf("%.2f", result.AudioSeconds),
		"rtf", fmt.Sprintf("%.3f", result.RTF),
		"frames", result.Frames,
	)

	return result, nil
}

// sendBinary msgpack-encodes v and writes it as one binary frame.
func (c *Client) sendBinary(conn *websocket.Conn, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
