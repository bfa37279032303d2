package stt

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/resilience"
)

func TestNewDeepgramRequiresKey(t *testing.T) {
	_, err := NewDeepgram(DeepgramConfig{})
	var cfgErr *resilience.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "DEEPGRAM_API_KEY" {
		t.Errorf("Field = %q", cfgErr.Field)
	}
}

func TestTranscribeMapsResults(t *testing.T) {
	tr := NewTranscribe(nil, TranscribeConfig{UtteranceEnd: time.Hour})

	tr.handleTranscriptEvent(types.TranscriptEvent{Transcript: &types.Transcript{Results: []types.Result{
		{IsPartial: true, Alternatives: []types.Alternative{{Transcript: aws.String("I'd like")}}},
		{IsPartial: false, Alternatives: []types.Alternative{{Transcript: aws.String("I'd like a fade")}}},
		{IsPartial: false},
	}}})
	_ = tr.Stop()

	events := collect(t, tr.Events(), time.Second)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].IsFinal || events[0].Text != "I'd" {
		t.Errorf("partial = %+v", events[0])
	}
	if !events[1].IsFinal || events[1].Text != "I'd a fade" {
		t.Errorf("final = %+v", events[1])
	}
	if events[2].Type != EventClose {
		t.Errorf("last = %s", events[2].Type)
	}
}

func TestTranscribeSendAudioAfterStop(t *testing.T) {
	tr := NewTranscribe(nil, TranscribeConfig{})
	_ = tr.Stop()
	if err := tr.SendAudio(audio.MulawFrame([]byte{0xFF, 0x7F})); err != nil {
		t.Errorf("SendAudio after Stop = %v, want nil", err)
	}
}

func TestTranscribeSendAudioRate(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		wantBytes  int
	}{
		{"carrier rate by default", 0, 320},
		{"wideband", 16000, 640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranscribe(nil, TranscribeConfig{SampleRate: tt.sampleRate})
			tr.audioCh = make(chan []byte, 1)

			if err := tr.SendAudio(audio.MulawFrame(make([]byte, 160))); err != nil {
				t.Fatalf("SendAudio: %v", err)
			}
			select {
			case pcm := <-tr.audioCh:
				if len(pcm) != tt.wantBytes {
					t.Errorf("pcm bytes = %d, want %d", len(pcm), tt.wantBytes)
				}
			default:
				t.Fatal("no audio queued")
			}
			_ = tr.Stop()
		})
	}
}
