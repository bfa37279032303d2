package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/b00y0h/barberbot/internal/resilience"
	"github.com/b00y0h/barberbot/internal/store"
)

var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound calls that connect straight to the media stream
type Dialer struct {
	client    callCreator
	from      string
	streamURL string
	statusURL string
	retry     resilience.RetryConfig
}

// DialerConfig holds the Twilio account and the URLs handed to Twilio
type DialerConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	StreamURL  string
	StatusURL  string
}

// NewDialer creates a dialer backed by the Twilio REST API
func NewDialer(cfg DialerConfig) (*Dialer, error) {
	switch {
	case cfg.AccountSID == "":
		return nil, &resilience.ConfigurationError{Provider: "twilio", Field: "TWILIO_ACCOUNT_SID"}
	case cfg.AuthToken == "":
		return nil, &resilience.ConfigurationError{Provider: "twilio", Field: "TWILIO_AUTH_TOKEN"}
	case cfg.From == "":
		return nil, &resilience.ConfigurationError{Provider: "twilio", Field: "TWILIO_PHONE_NUMBER"}
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newDialer(rest.Api, cfg), nil
}

func newDialer(client callCreator, cfg DialerConfig) *Dialer {
	return &Dialer{
		client:    client,
		from:      cfg.From,
		streamURL: cfg.StreamURL,
		statusURL: cfg.StatusURL,
		retry:     resilience.RetryOnce(250 * time.Millisecond),
	}
}

// Dial calls to and returns the new call sid
func (d *Dialer) Dial(ctx context.Context, to string) (string, error) {
	if to == "" {
		return "", errors.New("telephony: destination number required")
	}
	doc, err := streamTwiML(d.streamURL, store.DirectionOutbound, to)
	if err != nil {
		return "", err
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.from)
	params.SetTwiml(doc)
	if d.statusURL != "" {
		params.SetStatusCallback(d.statusURL)
		params.SetStatusCallbackEvent(statusCallbackEvents)
		params.SetStatusCallbackMethod("POST")
	}

	var sid string
	err = resilience.Retry(ctx, d.retry, func(ctx context.Context) error {
		resp, err := d.client.CreateCall(params)
		if err != nil {
			return resilience.NewConnectionError("twilio", err)
		}
		if resp == nil || resp.Sid == nil {
			return errors.New("telephony: missing call sid")
		}
		sid = *resp.Sid
		return nil
	}, resilience.IsTransient)
	if err != nil {
		return "", err
	}
	return sid, nil
}

// streamTwiML connects a call to the media stream, forwarding the direction
// and the customer's number as stream parameters
func streamTwiML(streamURL, direction, phone string) (string, error) {
	params := []twiml.Element{&twiml.VoiceParameter{Name: "direction", Value: direction}}
	if phone != "" {
		params = append(params, &twiml.VoiceParameter{Name: "from", Value: phone})
	}
	stream := &twiml.VoiceStream{Url: streamURL, InnerElements: params}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}

	doc, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return "", fmt.Errorf("build twiml: %w", err)
	}
	return doc, nil
}
