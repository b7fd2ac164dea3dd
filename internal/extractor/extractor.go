// Package extractor turns raw message text into typed schedule events using
// an external inference service. Extraction is idempotent for identical
// text, and a message the model cannot parse degrades to a no-event result
// rather than failing the batch.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/models"
)

// Extractor converts a batch of message bodies into schedule events,
// one result per input.
type Extractor interface {
	ExtractBatch(ctx context.Context, bodies []string) ([]models.ScheduleEvent, error)
	Close() error
}

const promptTemplate = `You are given a numbered list of student emails. For each email decide
whether it announces a company interview, requests a class reschedule, or
neither. Respond ONLY with a JSON array holding exactly one object per
email, in the same order, each shaped as:
{"event_type":"interview","company_name":"...","interview_datetime":"2024-05-01T10:00:00"}
or
{"event_type":"reschedule","subject":"...","requested_day":"Tuesday","requested_start":"10:00","requested_end":"11:00"}
or
{"event_type":"none"}

Emails:
%s`

// wireEvent is the JSON shape returned by the model
type wireEvent struct {
	EventType         string `json:"event_type"`
	CompanyName       string `json:"company_name"`
	InterviewDatetime string `json:"interview_datetime"`
	Subject           string `json:"subject"`
	RequestedDay      string `json:"requested_day"`
	RequestedStart    string `json:"requested_start"`
	RequestedEnd      string `json:"requested_end"`
}

// GeminiExtractor implements Extractor against the Gemini API
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates a new Gemini-backed extractor
func NewGeminiExtractor(ctx context.Context, cfg *config.ExtractorConfig) (*GeminiExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiExtractor{client: client, model: cfg.Model}, nil
}

// ExtractBatch sends one inference call covering the whole batch and maps
// the response back onto the inputs. A malformed item yields NoEvent for
// that item only.
func (e *GeminiExtractor) ExtractBatch(ctx context.Context, bodies []string) ([]models.ScheduleEvent, error) {
	if len(bodies) == 0 {
		return []models.ScheduleEvent{}, nil
	}

	var sb strings.Builder
	for i, body := range bodies {
		fmt.Fprintf(&sb, "--- Email %d ---\n%s\n", i+1, body)
	}

	model := e.client.GenerativeModel(e.model)
	model.SetTemperature(0.1) // consistent output for idempotent re-extraction
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(promptTemplate, sb.String())))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}

	return decodeEvents(text, len(bodies)), nil
}

// Close releases resources held by the client
func (e *GeminiExtractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// decodeEvents parses the model output into exactly want events, padding
// with NoEvent where the response is short or malformed.
func decodeEvents(text string, want int) []models.ScheduleEvent {
	events := make([]models.ScheduleEvent, want)
	for i := range events {
		events[i] = models.NoEvent()
	}

	var wire []wireEvent
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), &wire); err != nil {
		logrus.Warnf("Failed to decode extraction response: %v", err)
		return events
	}

	for i := 0; i < want && i < len(wire); i++ {
		events[i] = wire[i].toEvent()
	}
	return events
}

func (w wireEvent) toEvent() models.ScheduleEvent {
	switch w.EventType {
	case "interview":
		if w.CompanyName == "" {
			return models.NoEvent()
		}
		at, err := parseDatetime(w.InterviewDatetime)
		if err != nil {
			logrus.Warnf("Invalid interview datetime %q: %v", w.InterviewDatetime, err)
			return models.NoEvent()
		}
		return models.ScheduleEvent{
			Kind:      models.EventInterview,
			Company:   w.CompanyName,
			DriveTime: at,
		}
	case "reschedule":
		if w.Subject == "" || w.RequestedDay == "" {
			return models.NoEvent()
		}
		return models.ScheduleEvent{
			Kind:    models.EventReschedule,
			Subject: w.Subject,
			Window: models.TimeWindow{
				Day:   w.RequestedDay,
				Start: w.RequestedStart,
				End:   w.RequestedEnd,
			},
		}
	default:
		return models.NoEvent()
	}
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseDatetime(value string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format %q", value)
}

// extractTextFromResponse extracts text from a Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
