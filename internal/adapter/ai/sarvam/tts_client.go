// Package sarvam implements per-segment text-to-speech against the
// Sarvam AI REST API. Streaming, ordering and cancellation live in
// service/speech; this client does one network round trip per segment.
package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/audio"
	"github.com/propvoice/enquiry-agent/pkg/config"
)

const telephonySampleRate = 8000

type Client struct {
	cfg  config.SarvamConfig
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg config.SarvamConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

type synthesisRequest struct {
	Text                string  `json:"text"`
	TargetLanguageCode  string  `json:"target_language_code"`
	Speaker             string  `json:"speaker"`
	Pace                float64 `json:"pace"`
	SpeechSampleRate    int     `json:"speech_sample_rate"`
	EnablePreprocessing bool    `json:"enable_preprocessing"`
	Model               string  `json:"model"`
}

type synthesisResponse struct {
	Audios []string `json:"audios"`
}

// SynthesizeSegment synthesizes one text segment and returns 8kHz mu-law
// audio ready for the telephony leg.
func (c *Client) SynthesizeSegment(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:                text,
		TargetLanguageCode:  c.cfg.Language,
		Speaker:             c.cfg.VoiceID,
		Pace:                c.cfg.Pace,
		SpeechSampleRate:    c.cfg.SampleRate,
		EnablePreprocessing: true,
		Model:               c.cfg.Model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-subscription-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis API error %d: %s", resp.StatusCode, raw)
	}

	var parsed synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode synthesis response: %w", err)
	}
	if len(parsed.Audios) == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}

	pcm := audio.StripWAVHeader(raw)
	if factor := c.cfg.SampleRate / telephonySampleRate; factor > 1 {
		pcm = audio.DownsamplePCM16(pcm, factor)
	}
	return audio.PCM16ToMuLaw(pcm), nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
