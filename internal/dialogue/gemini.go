package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/attenda/clinic-assistant/pkg/logging"
)

const geminiIntentPrompt = `Classify this clinic chat message into ONE intent. Respond with JSON only, like {"intent": "appointment_create"}.

Intents:
- appointment_create: the user wants to book, schedule, or ask about appointment availability
- cancellation: the user wants to stop or abandon what they were doing
- other: anything else (questions, greetings, small talk)

Message: %s`

// GeminiClassifier classifies intent with Gemini and falls back to keyword
// matching whenever the API call or the response parse fails. A classifier
// outage must never block a turn.
type GeminiClassifier struct {
	client   *genai.Client
	modelID  string
	fallback KeywordClassifier
	logger   *logging.Logger
}

// NewGeminiClassifier creates a Gemini-backed intent classifier.
func NewGeminiClassifier(ctx context.Context, apiKey, modelID string, logger *logging.Logger) (*GeminiClassifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("dialogue: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = logging.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("dialogue: create gemini client: %w", err)
	}

	return &GeminiClassifier{
		client:  client,
		modelID: modelID,
		logger:  logger.Component("gemini_classifier"),
	}, nil
}

func (c *GeminiClassifier) Classify(ctx context.Context, text string) (Intent, error) {
	intent, err := c.classifyRemote(ctx, text)
	if err != nil {
		c.logger.Warn("gemini classification failed, using keyword fallback", "error", err)
		return c.fallback.Classify(ctx, text)
	}
	return intent, nil
}

func (c *GeminiClassifier) classifyRemote(ctx context.Context, text string) (Intent, error) {
	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(geminiIntentPrompt, text)))
	if err != nil {
		return IntentOther, fmt.Errorf("dialogue: gemini completion: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return IntentOther, errors.New("dialogue: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return IntentOther, errors.New("dialogue: gemini returned empty content")
	}

	var raw strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			raw.WriteString(string(t))
		}
	}

	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw.String())), &parsed); err != nil {
		return IntentOther, fmt.Errorf("dialogue: parse gemini response: %w", err)
	}

	switch Intent(parsed.Intent) {
	case IntentAppointmentCreate, IntentCancellation, IntentOther:
		return Intent(parsed.Intent), nil
	}
	return IntentOther, fmt.Errorf("dialogue: gemini returned unknown intent %q", parsed.Intent)
}

// Close releases the underlying Gemini client.
func (c *GeminiClassifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
