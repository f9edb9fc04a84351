package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"main/dto"
	"main/utils"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.0-flash"

	// The prompt assumes this fixed user timezone when converting
	// wall-clock times to UTC.
	assumedUTCOffsetHours = 3
	defaultDueHourLocal   = 17
)

var (
	// ErrInvalidAPIKey signals that the caller must acquire a new credential;
	// it is deliberately distinct from generic parse failures.
	ErrInvalidAPIKey = errors.New("gemini API key is invalid or lacks permission")

	// ErrParseFailed covers malformed model output and transport failures.
	ErrParseFailed = errors.New("failed to parse task from text")
)

// GeminiClient turns free-form text into structured task fields. It only
// builds the prompt and validates the JSON reply; all date resolution is
// delegated to the model.
type GeminiClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

// geminiInlineData carries base64 media inline with the prompt.
type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var taskSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"content": {"type": "string"},
		"dueDate": {"type": "string", "nullable": true},
		"tags": {"type": "array", "items": {"type": "string"}},
		"isUrgent": {"type": "boolean"}
	},
	"required": ["content", "dueDate", "tags", "isUrgent"]
}`)

var taskListSchema = json.RawMessage(`{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"content": {"type": "string"},
			"dueDate": {"type": "string", "nullable": true},
			"tags": {"type": "array", "items": {"type": "string"}},
			"isUrgent": {"type": "boolean"}
		},
		"required": ["content", "dueDate", "tags", "isUrgent"]
	}
}`)

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (c *GeminiClient) SetBaseURL(url string) {
	c.baseURL = url
}

// BuildPrompt constructs the deterministic parsing instruction for one input.
// Exported so tests can pin the contract the model is held to.
func BuildPrompt(text string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("You convert a user's to-do entry into structured JSON.\n")
	fmt.Fprintf(&sb, "Current UTC time: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Assume the user's local timezone is UTC+%d.\n\n", assumedUTCOffsetHours)
	sb.WriteString("Rules:\n")
	sb.WriteString("1. Resolve relative dates (today, tomorrow, next friday) against the current time.\n")
	sb.WriteString("2. If a date without a year has already passed this year, roll it forward to next year.\n")
	fmt.Fprintf(&sb, "3. Convert local wall-clock times to UTC. If no time of day is given, default to %d:00 local time.\n", defaultDueHourLocal)
	sb.WriteString("4. If no date is given at all, set dueDate to null.\n")
	sb.WriteString("5. dueDate must be an ISO-8601 UTC timestamp, e.g. 2025-03-01T14:00:00.000Z.\n")
	sb.WriteString("6. tags are lowercase, without a leading '#'.\n")
	sb.WriteString("7. Set isUrgent to true when the text signals urgency (urgent, asap, important, !!).\n\n")
	sb.WriteString("Input:\n")
	sb.WriteString(text)
	return sb.String()
}

const mediaPromptSuffix = "\n\nThe entry may also be spoken or pictured in the attached media; " +
	"transcribe or read it and combine it with the text above."

// ParseTask parses a single entry into structured task fields. The entry is
// free text, optionally accompanied by inline audio or image media.
func (c *GeminiClient) ParseTask(ctx context.Context, text string, media ...dto.InlineMedia) (*dto.ParsedTask, error) {
	prompt := BuildPrompt(text, time.Now())
	if len(media) > 0 {
		prompt += mediaPromptSuffix
	}

	raw, err := c.generate(ctx, prompt, taskSchema, media)
	if err != nil {
		return nil, err
	}

	var parsed dto.ParsedTask
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		utils.TrackError("ai_parser", "malformed_json")
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	if err := validateParsedTask(&parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ParseTasks parses a multi-task entry into a list of structured tasks
func (c *GeminiClient) ParseTasks(ctx context.Context, text string, media ...dto.InlineMedia) ([]dto.ParsedTask, error) {
	prompt := BuildPrompt(text, time.Now()) +
		"\n\nThe input may contain several tasks; return a JSON array with one object per task."
	if len(media) > 0 {
		prompt += mediaPromptSuffix
	}

	raw, err := c.generate(ctx, prompt, taskListSchema, media)
	if err != nil {
		return nil, err
	}

	var parsed []dto.ParsedTask
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		utils.TrackError("ai_parser", "malformed_json")
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	for i := range parsed {
		if err := validateParsedTask(&parsed[i]); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

func validateParsedTask(parsed *dto.ParsedTask) error {
	if strings.TrimSpace(parsed.Content) == "" {
		utils.TrackError("ai_parser", "missing_content")
		return fmt.Errorf("%w: missing content", ErrParseFailed)
	}
	if parsed.DueDate != "" && strings.ToLower(parsed.DueDate) != "null" {
		if _, err := time.Parse(time.RFC3339, parsed.DueDate); err != nil {
			utils.TrackError("ai_parser", "bad_due_date")
			return fmt.Errorf("%w: bad dueDate %q", ErrParseFailed, parsed.DueDate)
		}
	} else {
		parsed.DueDate = ""
	}
	for i, tag := range parsed.Tags {
		parsed.Tags[i] = strings.ToLower(strings.TrimPrefix(tag, "#"))
	}
	return nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, schema json.RawMessage, media []dto.InlineMedia) (string, error) {
	if c.apiKey == "" {
		return "", ErrInvalidAPIKey
	}

	parts := make([]geminiPart, 0, 1+len(media))
	parts = append(parts, geminiPart{Text: prompt})
	for _, m := range media {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: m.MIMEType,
			Data:     m.Data,
		}})
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, geminiModel, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		utils.TrackError("ai_parser", "transport")
		return "", fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiError
		_ = json.Unmarshal(respBody, &apiErr)

		// Invalid or unauthorized keys come back as 400 API_KEY_INVALID or
		// 403 PERMISSION_DENIED; both mean "ask the user for a new key".
		if resp.StatusCode == http.StatusForbidden ||
			strings.Contains(apiErr.Error.Message, "API key") ||
			apiErr.Error.Status == "PERMISSION_DENIED" {
			utils.TrackError("ai_parser", "invalid_api_key")
			return "", ErrInvalidAPIKey
		}

		utils.TrackError("ai_parser", "api_error")
		if apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: API error (%d): %s", ErrParseFailed, resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: API error (%d)", ErrParseFailed, resp.StatusCode)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		utils.TrackError("ai_parser", "empty_response")
		return "", fmt.Errorf("%w: empty model response", ErrParseFailed)
	}

	return result.Candidates[0].Content.Parts[0].Text, nil
}
