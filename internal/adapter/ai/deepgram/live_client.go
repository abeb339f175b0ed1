// Package deepgram implements the speech-to-text port against the
// Deepgram live transcription WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/pkg/config"
)

type LiveClient struct {
	cfg     config.DeepgramConfig
	log     *zap.Logger
	conn    *websocket.Conn
	handler ports.TranscriptHandler
	cancel  context.CancelFunc

	mu         sync.Mutex
	connected  bool
	warnedOnce bool

	// Fragments of is_final results awaiting speech_final / utterance end.
	finals []string
	// Barge-in fires once per utterance on the first interim result.
	bargeInSent bool
}

func NewLiveClient(cfg config.DeepgramConfig, log *zap.Logger) *LiveClient {
	return &LiveClient{cfg: cfg, log: log}
}

// Start dials the live endpoint and begins the read loop. The handler is
// invoked from the read loop goroutine.
func (c *LiveClient) Start(ctx context.Context, handler ports.TranscriptHandler) error {
	c.handler = handler

	q := url.Values{}
	q.Set("model", c.cfg.Model)
	q.Set("language", c.cfg.Language)
	q.Set("encoding", "mulaw")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")
	q.Set("endpointing", strconv.Itoa(c.cfg.Endpointing))
	q.Set("no_delay", "true")

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL+"?"+q.Encode(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Token " + c.cfg.APIKey},
		},
	})
	if err != nil {
		return fmt.Errorf("dial deepgram: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.conn = conn

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(loopCtx)
	go c.keepAlive(loopCtx)

	c.log.Info("Deepgram live stream connected",
		zap.String("model", c.cfg.Model),
		zap.String("language", c.cfg.Language),
	)
	return nil
}

// ProcessAudio forwards one mu-law chunk. No-op (logged once) after the
// connection drops.
func (c *LiveClient) ProcessAudio(chunk []byte) error {
	c.mu.Lock()
	if !c.connected {
		if !c.warnedOnce {
			c.log.Warn("Dropping audio, transcription stream not connected")
			c.warnedOnce = true
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		c.markDisconnected()
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

type liveMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (c *LiveClient) readLoop(ctx context.Context) {
	defer c.markDisconnected()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("Deepgram read loop ended", zap.Error(err))
			}
			return
		}

		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("Unparseable transcription message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "Results":
			c.handleResult(msg)
		case "UtteranceEnd":
			c.flushUtterance()
		}
	}
}

func (c *LiveClient) handleResult(msg liveMessage) {
	if len(msg.Channel.Alternatives) == 0 {
		return
	}
	transcript := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if transcript == "" {
		return
	}

	if !msg.IsFinal {
		// Interim speech while the agent may still be talking. Signal
		// barge-in once, then stay quiet until the utterance completes.
		if !c.bargeInSent {
			c.bargeInSent = true
			c.emit(ports.TranscriptEvent{Kind: ports.TranscriptBargeIn})
		}
		return
	}

	c.finals = append(c.finals, transcript)
	if msg.SpeechFinal {
		c.flushUtterance()
	}
}

func (c *LiveClient) flushUtterance() {
	if len(c.finals) == 0 {
		return
	}
	utterance := strings.Join(c.finals, " ")
	c.finals = c.finals[:0]
	c.bargeInSent = false
	c.emit(ports.TranscriptEvent{Kind: ports.TranscriptFinal, Text: utterance})
}

func (c *LiveClient) emit(ev ports.TranscriptEvent) {
	if c.handler != nil {
		c.handler(ev)
	}
}

func (c *LiveClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, _ := json.Marshal(map[string]string{"type": "KeepAlive"})
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

func (c *LiveClient) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *LiveClient) Close() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil && wasConnected {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		msg, _ := json.Marshal(map[string]string{"type": "CloseStream"})
		c.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
	}
	if c.conn != nil {
		return c.conn.Close(websocket.StatusNormalClosure, "session ended")
	}
	return nil
}
