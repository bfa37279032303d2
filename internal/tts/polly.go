package tts

import (
	"context"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/b00y0h/barberbot/internal/audio"
)

// PollyAPI is the subset of the Polly client used here
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly renders speech with Amazon Polly. PCM is requested at the telephony
// rate so no resampling is needed.
type Polly struct {
	client  PollyAPI
	voiceID string
	engine  string
}

// NewPolly creates a Polly source
func NewPolly(client PollyAPI, voiceID, engine string) *Polly {
	if voiceID == "" {
		voiceID = "Ruth"
	}
	if engine == "" {
		engine = string(types.EngineGenerative)
	}
	return &Polly{client: client, voiceID: voiceID, engine: engine}
}

func (p *Polly) Name() string { return "polly" }

// Open calls SynthesizeSpeech and hands back the audio stream
func (p *Polly) Open(ctx context.Context, text string) (io.ReadCloser, int, error) {
	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		Engine:       types.Engine(p.engine),
		VoiceId:      types.VoiceId(p.voiceID),
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String(strconv.Itoa(audio.TelephonyRate)),
	})
	if err != nil {
		return nil, 0, err
	}
	return out.AudioStream, audio.TelephonyRate, nil
}
