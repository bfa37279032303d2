package business

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// BuildSystemPrompt renders the receptionist instructions for one call.
// An empty customerName marks a new caller.
func BuildSystemPrompt(p *Profile, customerName string, now time.Time) string {
	local := now.In(p.Location())
	day := strings.ToLower(local.Weekday().String())

	todayStatus := "CLOSED today"
	if h, ok := p.Hours[day]; ok && !h.Closed {
		todayStatus = fmt.Sprintf("Open today %s - %s", h.Open, h.Close)
	}

	returningNote := "This appears to be a new caller. Be welcoming and try to learn their name naturally."
	if customerName != "" {
		returningNote = fmt.Sprintf("The caller is a returning customer named %q. Greet them by name warmly.", customerName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI phone receptionist for %s, a %s located at %s.\n\n", p.Name, p.Type, p.Address)

	b.WriteString("## Your Personality\n")
	b.WriteString(p.Personality)
	b.WriteString("\n\n")

	b.WriteString(`## Important Rules
- You are on a PHONE CALL. Keep responses SHORT and conversational (1-3 sentences max).
- NEVER use bullet points, markdown, or formatted text. You're speaking aloud.
- Sound natural and human. Use contractions, casual phrasing.
- If you didn't understand something, politely ask them to repeat.
- Don't volunteer too much info at once. Answer what's asked, then pause.
- When listing services or prices, mention 2-3 at a time, then ask if they want to hear more.
- Always confirm details before booking anything.

`)

	b.WriteString("## Current Context\n")
	fmt.Fprintf(&b, "- Current date/time: %s\n", local.Format("1/2/2006, 3:04:05 PM"))
	fmt.Fprintf(&b, "- Today's date: %s\n", local.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Day: %s\n", local.Weekday().String())
	fmt.Fprintf(&b, "- Status: %s\n", todayStatus)
	fmt.Fprintf(&b, "- %s\n\n", returningNote)

	b.WriteString("## Business Info\n\n")
	b.WriteString("**Hours:**\n")
	b.WriteString(FormatHours(p.Hours))
	b.WriteString("\n\n**Services & Pricing:**\n")
	b.WriteString(FormatServices(p.Services))
	b.WriteString("\n\n**Staff:**\n")
	b.WriteString(FormatStaff(p.Staff))
	b.WriteString("\n\n**Policies:**\n")
	fmt.Fprintf(&b, "• Cancellation: %s\n", p.Policies.Cancellation)
	fmt.Fprintf(&b, "• Lateness: %s\n", p.Policies.Lateness)
	fmt.Fprintf(&b, "• Payment: %s\n\n", strings.Join(p.Policies.Payment, ", "))

	b.WriteString("## Tools\n")
	b.WriteString("You have access to tools for checking availability, booking appointments, collecting customer info, and answering business questions. Use them when appropriate.\n\n")

	b.WriteString("## Greeting\n")
	fmt.Fprintf(&b, "Start with a brief, warm greeting like: \"Thanks for calling %s, this is the virtual assistant. How can I help you today?\"\n", p.Name)
	b.WriteString("If the caller is a returning customer, greet them by name.")

	return b.String()
}

// Location resolves the profile timezone, falling back to UTC
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatServices lists services one per line
func FormatServices(services []Service) string {
	lines := make([]string, 0, len(services))
	for _, s := range services {
		lines = append(lines, fmt.Sprintf("• %s - $%s (%d min) - %s", s.Name, formatPrice(s.Price), s.Duration, s.Description))
	}
	return strings.Join(lines, "\n")
}

// FormatHours lists Monday through Sunday
func FormatHours(hours map[string]DayHours) string {
	lines := make([]string, 0, len(Weekdays))
	for _, day := range Weekdays {
		label := strings.ToUpper(day[:1]) + day[1:]
		h, ok := hours[day]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("• %s: Unknown", label))
		case h.Closed:
			lines = append(lines, fmt.Sprintf("• %s: Closed", label))
		default:
			lines = append(lines, fmt.Sprintf("• %s: %s - %s", label, h.Open, h.Close))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatStaff lists staff with their specialties
func FormatStaff(staff []StaffMember) string {
	lines := make([]string, 0, len(staff))
	for _, s := range staff {
		lines = append(lines, fmt.Sprintf("• %s (%s) - specializes in %s", s.Name, s.Role, strings.Join(s.Specialties, ", ")))
	}
	return strings.Join(lines, "\n")
}

func formatPrice(price float64) string {
	if price == float64(int64(price)) {
		return fmt.Sprintf("%d", int64(price))
	}
	return fmt.Sprintf("%.2f", price)
}
