package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/helpers"
)

const eventTimeLayout = "2006-01-02 15:04"

var (
	nextEventPattern = regexp.MustCompile(`when\s+is\s+(?:the|my)\s+next\s*(.*)`)
	nextWeeksDigit   = regexp.MustCompile(`next\s+(\d+)\s+weeks?`)
	nextWeeksWord    = regexp.MustCompile(`next\s+(one|two|three|four|five|six|seven|eight|nine|ten)\s+weeks?`)
	nextDaysDigit    = regexp.MustCompile(`next\s+(\d+)\s+days?`)
	nextDaysWord     = regexp.MustCompile(`next\s+(one|two|three|four|five|six|seven|eight|nine|ten)\s+days?`)
	nextDaysEndpoint = regexp.MustCompile(`next/(\d+)`)
	zoomLinkPattern  = regexp.MustCompile(`https://[^\s"'<>]*zoom[^\s"'<>]+`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// timeRange is the resolved calendar window for one query: the API endpoint
// to call and, for find-next-event queries, the term to filter summaries by.
type timeRange struct {
	endpoint string
	search   string
}

// resolveTimeRange maps a query to a calendar window. Rules are evaluated in
// a fixed order and the first match wins, so "next 2 weeks" resolves through
// the explicit-count rule before the bare "next week" rule can see it.
func resolveTimeRange(query string) timeRange {
	q := strings.ToLower(query)

	if m := nextEventPattern.FindStringSubmatch(q); m != nil {
		term := strings.TrimSpace(strings.Trim(m[1], "?!. "))
		return timeRange{endpoint: "/calendar/events/next/30", search: term}
	}
	if m := nextWeeksDigit.FindStringSubmatch(q); m != nil {
		weeks, _ := strconv.Atoi(m[1])
		return timeRange{endpoint: fmt.Sprintf("/calendar/events/next/%d", weeks*7)}
	}
	if m := nextWeeksWord.FindStringSubmatch(q); m != nil {
		return timeRange{endpoint: fmt.Sprintf("/calendar/events/next/%d", wordNumbers[m[1]]*7)}
	}
	if m := nextDaysDigit.FindStringSubmatch(q); m != nil {
		return timeRange{endpoint: "/calendar/events/next/" + m[1]}
	}
	if m := nextDaysWord.FindStringSubmatch(q); m != nil {
		return timeRange{endpoint: fmt.Sprintf("/calendar/events/next/%d", wordNumbers[m[1]])}
	}
	if strings.Contains(q, "next month") {
		return timeRange{endpoint: "/calendar/events/next/30"}
	}
	if strings.Contains(q, "this week") {
		return timeRange{endpoint: "/calendar/events/next/7"}
	}
	if strings.Contains(q, "next week") && !strings.Contains(q, "weeks") {
		return timeRange{endpoint: "/calendar/events/next/14"}
	}
	if strings.Contains(q, "tomorrow") {
		return timeRange{endpoint: "/calendar/events/tomorrow"}
	}
	if strings.Contains(q, "today") || strings.Contains(q, "tonight") {
		return timeRange{endpoint: "/calendar/events/today"}
	}
	// Default to a 7-day window; it includes expanded recurring events.
	return timeRange{endpoint: "/calendar/events/next/7"}
}

type calendarEvent struct {
	Summary     string `json:"summary"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type calendarEventsResponse struct {
	Events []calendarEvent `json:"events"`
}

// CalendarProvider answers schedule questions against the calendar API. Event
// times arrive already in local time and are rendered in the configured
// timezone.
type CalendarProvider struct {
	apiURL   string
	location *time.Location
	client   *http.Client
	logger   *log.Logger
}

// NewCalendarProvider creates a calendar provider. An unknown or empty
// timezone falls back to the host's local zone.
func NewCalendarProvider(cfg config.ToolConfig, timezone string) *CalendarProvider {
	cfg = cfg.Normalize()
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.Local
	}
	return &CalendarProvider{
		apiURL:   cfg.APIURL,
		location: loc,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   log.New(log.Writer(), "[CALENDAR] ", log.LstdFlags),
	}
}

func (p *CalendarProvider) Name() string { return "calendar" }

func (p *CalendarProvider) Description() string {
	return "Calendar provider - retrieves events and schedules from the calendar API"
}

func (p *CalendarProvider) IntentKeywords() []string {
	return []string{
		"calendar", "event", "events", "schedule", "appointment", "appointments",
		"meeting", "meetings", "agenda",
		"today", "tomorrow", "tonight", "this week", "next week", "this month", "next month",
		"upcoming", "later", "soon", "coming up",
		"when", "what time", "do i have", "am i busy", "free", "available",
		"what's on", "what's scheduled", "what's coming",
		"show me", "check", "list", "tell me about", "remind me",
	}
}

var calendarPrimaryKeywords = []string{
	"calendar", "event", "events", "schedule", "appointment", "appointments",
	"meeting", "meetings", "agenda", "today", "tomorrow", "tonight",
	"this week", "next week", "this month", "next month",
}

var calendarSecondaryKeywords = []string{"when", "what time", "am i busy", "free", "available"}

var documentKeywords = []string{"document", "file", "pdf", "email", "attachment"}

// CanHandle matches primary calendar vocabulary directly. Secondary words like
// "when" or "free" only match when the query carries no document vocabulary,
// which would indicate the question is about a file rather than the schedule.
func (p *CalendarProvider) CanHandle(query string) bool {
	if p.apiURL == "" {
		return false
	}
	q := strings.ToLower(query)

	for _, kw := range calendarPrimaryKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	for _, kw := range calendarSecondaryKeywords {
		if !strings.Contains(q, kw) {
			continue
		}
		hasDocWord := false
		for _, doc := range documentKeywords {
			if strings.Contains(q, doc) {
				hasDocWord = true
				break
			}
		}
		if !hasDocWord {
			return true
		}
		break
	}
	return nextEventPattern.MatchString(q)
}

func (p *CalendarProvider) Execute(ctx context.Context, query string) ToolResult {
	if p.apiURL == "" {
		return failure("calendar", "calendar API URL not configured")
	}

	tr := resolveTimeRange(query)
	url := p.apiURL + tr.endpoint
	p.logger.Printf("calling calendar API: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure("calendar", "building calendar request: %v", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return failure("calendar", "failed to fetch calendar data: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure("calendar", "calendar API returned status %d", resp.StatusCode)
	}

	var data calendarEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return failure("calendar", "decoding calendar response: %v", err)
	}

	var formatted string
	if tr.search != "" {
		formatted = p.formatNextEvent(data.Events, tr.search)
	} else {
		formatted = p.formatEvents(data.Events, tr.endpoint)
	}

	return ToolResult{
		Tool:      "calendar",
		Success:   true,
		Data:      data,
		Formatted: formatted,
		Metadata: map[string]interface{}{
			"tool":        "calendar",
			"endpoint":    tr.endpoint,
			"event_count": len(data.Events),
		},
	}
}

func (p *CalendarProvider) FormatForLLM(result ToolResult) string {
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return fmt.Sprintf("[Calendar tool error: %s]", msg)
	}
	if result.Formatted != "" {
		return "[Calendar Information]\n" + result.Formatted
	}
	return fmt.Sprintf("[calendar tool response: %v]", result.Data)
}

// HealthCheck hits the calendar health endpoint.
func (p *CalendarProvider) HealthCheck(ctx context.Context) bool {
	if p.apiURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/calendar/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Printf("health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// formatEvents renders an event list with a header matched to the window that
// was queried. Today/tomorrow views omit per-event dates since the date is
// implied by the question.
func (p *CalendarProvider) formatEvents(events []calendarEvent, endpoint string) string {
	if len(events) == 0 {
		return emptyEventsMessage(endpoint)
	}

	showDate := !strings.Contains(endpoint, "today") && !strings.Contains(endpoint, "tomorrow")
	lines := []string{eventsHeader(endpoint, len(events)), ""}

	for _, ev := range events {
		summary := ev.Summary
		if summary == "" {
			summary = "Untitled Event"
		}
		lines = append(lines, fmt.Sprintf("**%s**", summary))

		if ev.Start != "" {
			start, err := time.ParseInLocation(eventTimeLayout, ev.Start, p.location)
			if err == nil {
				if showDate {
					lines = append(lines, fmt.Sprintf("  📅 %s", start.Format("Monday, Jan 2")))
				}
				lines = append(lines, "  🕒 "+p.formatTimeSpan(start, ev.End))
			} else {
				p.logger.Printf("could not parse event time %q: %v", ev.Start, err)
				if parts := strings.SplitN(ev.Start, " ", 2); len(parts) == 2 {
					lines = append(lines, fmt.Sprintf("  📅 %s", parts[0]), fmt.Sprintf("  🕒 %s", parts[1]))
				} else {
					lines = append(lines, fmt.Sprintf("  🕒 %s", ev.Start))
				}
			}
		}
		if ev.Location != "" {
			lines = append(lines, fmt.Sprintf("  📍 %s", ev.Location))
		}
		if ev.Description != "" {
			if zoom := zoomLinkPattern.FindString(ev.Description); zoom != "" {
				lines = append(lines, fmt.Sprintf("  🔗 Zoom: %s", zoom))
			}
			desc := cleanDescription(ev.Description)
			if desc != "" && len(desc) < 500 && !strings.HasPrefix(desc, "Hi there") {
				if len(desc) > 200 {
					desc = desc[:200] + "..."
				}
				lines = append(lines, fmt.Sprintf("  ℹ️ %s", desc))
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// formatNextEvent filters the 30-day window by the search term and renders
// only the first chronological match.
func (p *CalendarProvider) formatNextEvent(events []calendarEvent, term string) string {
	var match *calendarEvent
	for i := range events {
		if strings.Contains(strings.ToLower(events[i].Summary), strings.ToLower(term)) {
			match = &events[i]
			break
		}
	}
	if match == nil {
		return fmt.Sprintf("No events found in the next 30 days matching '%s'.", term)
	}

	summary := match.Summary
	if summary == "" {
		summary = "Untitled Event"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your next '%s' event:\n\n", term)
	fmt.Fprintf(&b, "📌 %s\n", summary)

	if match.Start != "" {
		start, err := time.ParseInLocation(eventTimeLayout, match.Start, p.location)
		if err == nil {
			// Full date: the match could be weeks away.
			fmt.Fprintf(&b, "📅 %s\n", start.Format("Monday, January 2, 2006"))
			fmt.Fprintf(&b, "🕒 %s\n", p.formatTimeSpan(start, match.End))
		} else {
			p.logger.Printf("could not parse event time %q: %v", match.Start, err)
			fmt.Fprintf(&b, "🕒 %s\n", match.Start)
		}
	}
	if match.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", match.Location)
	}
	if desc := cleanDescription(match.Description); desc != "" && len(desc) < 200 {
		fmt.Fprintf(&b, "\n%s", desc)
	}
	return b.String()
}

func (p *CalendarProvider) formatTimeSpan(start time.Time, rawEnd string) string {
	if rawEnd != "" {
		if end, err := time.ParseInLocation(eventTimeLayout, rawEnd, p.location); err == nil {
			return fmt.Sprintf("%s - %s", start.Format("3:04 PM"), end.Format("3:04 PM MST"))
		}
	}
	return start.Format("3:04 PM MST")
}

func cleanDescription(desc string) string {
	return helpers.StripMarkup(desc)
}

func eventsHeader(endpoint string, count int) string {
	switch {
	case strings.Contains(endpoint, "today"):
		return fmt.Sprintf("You have %d event(s) today:", count)
	case strings.Contains(endpoint, "tomorrow"):
		return fmt.Sprintf("You have %d event(s) tomorrow:", count)
	case strings.Contains(endpoint, "next/7"):
		return fmt.Sprintf("You have %d event(s) in the next week:", count)
	case strings.Contains(endpoint, "next/14"):
		return fmt.Sprintf("You have %d event(s) in the next 2 weeks:", count)
	case strings.Contains(endpoint, "next/30"):
		return fmt.Sprintf("You have %d event(s) in the next month:", count)
	case strings.Contains(endpoint, "next"):
		if m := nextDaysEndpoint.FindStringSubmatch(endpoint); m != nil {
			return fmt.Sprintf("You have %d event(s) in the next %s days:", count, m[1])
		}
		return fmt.Sprintf("You have %d upcoming event(s):", count)
	default:
		return fmt.Sprintf("Found %d event(s):", count)
	}
}

func emptyEventsMessage(endpoint string) string {
	switch {
	case strings.Contains(endpoint, "today"):
		return "You have no events scheduled for today."
	case strings.Contains(endpoint, "tomorrow"):
		return "You have no events scheduled for tomorrow."
	case strings.Contains(endpoint, "next/7"):
		return "You have no events scheduled for the next week."
	case strings.Contains(endpoint, "next"):
		return "You have no upcoming events."
	default:
		return "No events found."
	}
}
