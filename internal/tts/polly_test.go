package tts

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

type fakePolly struct {
	input *polly.SynthesizeSpeechInput
}

func (f *fakePolly) SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.input = params
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(make([]byte, 1600)))}, nil
}

func TestPollyRequest(t *testing.T) {
	fake := &fakePolly{}
	p := NewPolly(fake, "", "")

	body, rate, err := p.Open(context.Background(), "Thanks for calling")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer body.Close()

	if rate != 8000 {
		t.Errorf("rate = %d, want 8000", rate)
	}
	in := fake.input
	if in.OutputFormat != types.OutputFormatPcm {
		t.Errorf("OutputFormat = %s", in.OutputFormat)
	}
	if aws.ToString(in.SampleRate) != "8000" {
		t.Errorf("SampleRate = %s", aws.ToString(in.SampleRate))
	}
	if in.VoiceId != "Ruth" || in.Engine != types.EngineGenerative {
		t.Errorf("voice = %s engine = %s", in.VoiceId, in.Engine)
	}
}
