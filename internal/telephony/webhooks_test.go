package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/b00y0h/barberbot/internal/call"
)

type statusCall struct {
	sessionID, status string
	duration          *int
}

type fakeDirectory struct {
	statuses []statusCall
	active   []call.Snapshot
}

func (f *fakeDirectory) HandleStatus(ctx context.Context, sessionID, status string, duration *int) error {
	f.statuses = append(f.statuses, statusCall{sessionID, status, duration})
	return nil
}

func (f *fakeDirectory) ListActiveCalls() []call.Snapshot { return f.active }

const (
	testBaseURL  = "https://bot.example.com"
	testAdminKey = "admin-secret"
)

func newTestWebhooks(token string, dir *fakeDirectory, dialer *Dialer) *http.ServeMux {
	w := NewWebhooks(WebhookConfig{
		PublicBaseURL: testBaseURL,
		StreamURL:     "wss://bot.example.com/voice/stream",
		AuthToken:     token,
		AdminKey:      testAdminKey,
	}, dir, dialer)
	mux := http.NewServeMux()
	w.Register(mux)
	return mux
}

// sign computes X-Twilio-Signature the way Twilio does for form posts
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	return req
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIncomingReturnsStreamTwiML(t *testing.T) {
	mux := newTestWebhooks("", &fakeDirectory{}, nil)
	form := url.Values{"CallSid": {"CA1"}, "From": {"+18045551234"}, "To": {"+18045550100"}}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, formRequest("/voice/incoming", form))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<Response>",
		"<Connect>",
		`url="wss://bot.example.com/voice/stream"`,
		`value="inbound"`,
		`value="+18045551234"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("TwiML missing %s:\n%s", want, body)
		}
	}
}

func TestWebhookSignature(t *testing.T) {
	const token = "test-auth-token"
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"42"}}

	tests := []struct {
		name      string
		signature string
		wantCode  int
	}{
		{"missing", "", http.StatusForbidden},
		{"wrong", "bm90LWEtc2lnbmF0dXJl", http.StatusForbidden},
		{"valid", sign(token, testBaseURL+"/voice/status", form), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &fakeDirectory{}
			mux := newTestWebhooks(token, dir, nil)
			req := formRequest("/voice/status", form)
			if tt.signature != "" {
				req.Header.Set("X-Twilio-Signature", tt.signature)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				if len(dir.statuses) != 0 {
					t.Errorf("rejected request reached the call manager")
				}
				return
			}
			if len(dir.statuses) != 1 {
				t.Fatalf("statuses = %+v", dir.statuses)
			}
			got := dir.statuses[0]
			if got.sessionID != "CA1" || got.status != "completed" || got.duration == nil || *got.duration != 42 {
				t.Errorf("HandleStatus args = %+v", got)
			}
		})
	}
}

func TestStatusWithoutDuration(t *testing.T) {
	dir := &fakeDirectory{}
	mux := newTestWebhooks("", dir, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, formRequest("/voice/status", url.Values{"CallSid": {"CA2"}, "CallStatus": {"ringing"}}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(dir.statuses) != 1 || dir.statuses[0].duration != nil {
		t.Errorf("statuses = %+v", dir.statuses)
	}
}

func TestActiveCalls(t *testing.T) {
	dir := &fakeDirectory{active: []call.Snapshot{{CallSID: "CA1", PhoneNumber: "+18045551234", Direction: "inbound"}}}
	mux := newTestWebhooks("", dir, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, adminRequest(http.MethodGet, "/calls/active", ""))

	var body struct {
		ActiveCalls int             `json:"active_calls"`
		Calls       []call.Snapshot `json:"calls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ActiveCalls != 1 || len(body.Calls) != 1 || body.Calls[0].CallSID != "CA1" {
		t.Errorf("body = %+v", body)
	}
}

type fakeCreator struct {
	params *api.CreateCallParams
	err    error
}

func (f *fakeCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "CA-out"
	return &api.ApiV2010Call{Sid: &sid}, nil
}

func TestOutboundCall(t *testing.T) {
	creator := &fakeCreator{}
	dialer := newDialer(creator, DialerConfig{
		From:      "+18045550100",
		StreamURL: "wss://bot.example.com/voice/stream",
		StatusURL: testBaseURL + "/voice/status",
	})
	mux := newTestWebhooks("", &fakeDirectory{}, dialer)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, adminRequest(http.MethodPost, "/calls/outbound", `{"to":"+18045551234"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "CA-out") {
		t.Errorf("body = %s", rec.Body.String())
	}

	p := creator.params
	if p == nil || p.To == nil || *p.To != "+18045551234" || p.From == nil || *p.From != "+18045550100" {
		t.Fatalf("params = %+v", p)
	}
	if p.Twiml == nil || !strings.Contains(*p.Twiml, `value="outbound"`) {
		t.Errorf("twiml = %v", p.Twiml)
	}
	if p.StatusCallback == nil || *p.StatusCallback != testBaseURL+"/voice/status" {
		t.Errorf("status callback = %v", p.StatusCallback)
	}
}

func TestOutboundCallErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		mux := newTestWebhooks("", &fakeDirectory{}, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest(http.MethodPost, "/calls/outbound", `{"to":"+1"}`))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		mux := newTestWebhooks("", &fakeDirectory{}, newDialer(&fakeCreator{}, DialerConfig{From: "+1"}))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest(http.MethodPost, "/calls/outbound", `{}`))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		dialer := newDialer(&fakeCreator{err: errors.New("invalid number")}, DialerConfig{From: "+1"})
		mux := newTestWebhooks("", &fakeDirectory{}, dialer)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest(http.MethodPost, "/calls/outbound", `{"to":"+18045551234"}`))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("dialer needs credentials", func(t *testing.T) {
		if _, err := NewDialer(DialerConfig{AuthToken: "x", From: "+1"}); err == nil {
			t.Error("expected configuration error")
		}
	})
}

func TestAdminRoutesRequireKey(t *testing.T) {
	tests := []struct {
		name     string
		adminKey string
		header   string
		wantCode int
	}{
		{"not configured", "", "Bearer anything", http.StatusForbidden},
		{"missing header", testAdminKey, "", http.StatusUnauthorized},
		{"wrong key", testAdminKey, "Bearer nope", http.StatusUnauthorized},
		{"not bearer", testAdminKey, testAdminKey, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &fakeCreator{}
			w := NewWebhooks(WebhookConfig{PublicBaseURL: testBaseURL, AdminKey: tt.adminKey},
				&fakeDirectory{active: []call.Snapshot{{CallSID: "CA1", PhoneNumber: "+18045551234"}}},
				newDialer(creator, DialerConfig{From: "+18045550100"}))
			mux := http.NewServeMux()
			w.Register(mux)

			for _, req := range []*http.Request{
				httptest.NewRequest(http.MethodGet, "/calls/active", nil),
				httptest.NewRequest(http.MethodPost, "/calls/outbound", strings.NewReader(`{"to":"+18045551234"}`)),
			} {
				if tt.header != "" {
					req.Header.Set("Authorization", tt.header)
				}
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, req)
				if rec.Code != tt.wantCode {
					t.Errorf("%s %s status = %d, want %d", req.Method, req.URL.Path, rec.Code, tt.wantCode)
				}
				if strings.Contains(rec.Body.String(), "+18045551234") {
					t.Errorf("%s leaked caller numbers", req.URL.Path)
				}
			}
			if creator.params != nil {
				t.Error("unauthorized request placed a call")
			}
		})
	}
}
