package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/b00y0h/barberbot/internal/resilience"
)

const (
	cartesiaURL        = "https://api.cartesia.ai/tts/bytes"
	cartesiaVersion    = "2024-06-10"
	cartesiaSampleRate = 24000
)

// cartesiaRequest is the payload for the bytes endpoint
type cartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoice        `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Cartesia renders speech with Cartesia's HTTP API as raw 24 kHz PCM
type Cartesia struct {
	apiKey     string
	voiceID    string
	modelID    string
	url        string
	httpClient *http.Client
}

// NewCartesia creates a Cartesia source. The API key and voice are required.
func NewCartesia(apiKey, voiceID, modelID string) (*Cartesia, error) {
	if apiKey == "" {
		return nil, &resilience.ConfigurationError{Provider: "cartesia", Field: "CARTESIA_API_KEY"}
	}
	if voiceID == "" {
		return nil, &resilience.ConfigurationError{Provider: "cartesia", Field: "CARTESIA_VOICE_ID"}
	}
	return &Cartesia{
		apiKey:     apiKey,
		voiceID:    voiceID,
		modelID:    modelID,
		url:        cartesiaURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Cartesia) Name() string { return "cartesia" }

// Open posts the transcript and streams the response body
func (c *Cartesia) Open(ctx context.Context, text string) (io.ReadCloser, int, error) {
	payload, err := json.Marshal(cartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, cartesiaSampleRate, nil
}
