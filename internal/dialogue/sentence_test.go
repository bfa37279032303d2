package dialogue

import (
	"reflect"
	"testing"

	"github.com/b00y0h/barberbot/internal/llm"
)

func TestIsSentenceBoundary(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"We open at nine.", true},
		{"Does that work?", true},
		{"Great!", true},
		{"Ask for Mr.", false},
		{"See you at 10 a.m.", false},
		{"It's on Broad St.", false},
		{"no terminal mark", false},
		{"   ", false},
		{"", false},
		{"Done.  ", true},
	}
	for _, tt := range tests {
		if got := IsSentenceBoundary(tt.text); got != tt.want {
			t.Errorf("IsSentenceBoundary(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Sure thing. Marcus is free at 10. Want it?", []string{"Sure thing.", "Marcus is free at 10.", "Want it?"}},
		{"Dr. Smith called. Ok", []string{"Dr. Smith called.", "Ok"}},
		{"Really?! Great.", []string{"Really?!", "Great."}},
		{"The price is $25.50 today.", []string{"The price is $25.50 today."}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitSentences(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitSentences(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExportTranscriptSkipsToolTraffic(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock("Thanks for calling!")}},
		{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock("Book me in")}},
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{{ToolUse: &llm.ToolUse{ID: "1", Name: ToolBookAppointment}}}},
		{Role: llm.RoleUser, Content: []llm.ContentBlock{{ToolResult: &llm.ToolResult{ToolUseID: "1", Content: map[string]any{"success": true}}}}},
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock("Done."), llm.TextBlock("Anything else?")}},
	}

	want := "Bot: Thanks for calling!\nCaller: Book me in\nBot: Done."
	if got := ExportTranscript(msgs); got != want {
		t.Errorf("ExportTranscript() =\n%s\nwant\n%s", got, want)
	}
	if got := ExportTranscript(nil); got != "" {
		t.Errorf("empty transcript = %q", got)
	}
}
