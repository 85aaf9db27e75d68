// Package ai provides the vision and text capabilities consumed by the
// poster pipeline: structured poster extraction, image rotation inference,
// and artist description summarization. It speaks the OpenAI-compatible
// chat completions protocol so the provider is swappable by configuration.
package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const userAgent = "bandaid/1.0"

// ErrEmptyResponse is returned when the model produces no usable output.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	baseURL        string
	apiKey         string
	visionModel    string
	summarizeModel string
	httpClient     *http.Client
}

// Config holds the client settings.
type Config struct {
	BaseURL        string
	APIKey         string
	VisionModel    string
	SummarizeModel string
}

// NewClient creates a Client from the provided configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		visionModel:    cfg.VisionModel,
		summarizeModel: cfg.SummarizeModel,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

var posterMetadataSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"bandNames", "events", "tourName", "slug"},
	"properties": map[string]any{
		"bandNames": map[string]any{
			"description": "A list of band names found on the poster",
			"type":        "array",
			"items":       map[string]any{"type": "string"},
		},
		"events": map[string]any{
			"description": "Details for each event listed on the poster",
			"type":        "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"venue", "location", "date", "isUpcoming"},
				"properties": map[string]any{
					"venue": map[string]any{
						"description": "The name of the venue where the event is happening",
						"type":        "string",
					},
					"location": map[string]any{
						"description": "The name of the city where this is happening",
						"type":        "string",
					},
					"date": map[string]any{
						"description": "The date and time when this is happening in ISO-8601 format. Determine year based on day of the week and date if year is not provided.",
						"type":        "string",
					},
					"isUpcoming": map[string]any{
						"description": "Have all concert dates not yet happened, or is this from the past",
						"type":        "boolean",
					},
				},
			},
		},
		"tourName": map[string]any{
			"description": `The name of the tour if it exists, otherwise use the headliner, location, and the year. Example: "Beastie Boys - New York - 1986"`,
			"type":        "string",
		},
		"slug": map[string]any{
			"description": "A suggested URL safe slug for this event, based on headlining band, location, and the year",
			"type":        "string",
		},
	},
}

var rotationSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"currentAssumedClockwiseRotation", "degreesToRotate"},
	"properties": map[string]any{
		"currentAssumedClockwiseRotation": map[string]any{
			"description": "If the photo is not in its intended position, determine what clockwise rotation was made previously to get it into its current state. Use the text in the image to help determine the rotation.",
			"type":        "string",
			"enum":        []string{"0", "90", "180", "270"},
		},
		"degreesToRotate": map[string]any{
			"description": "The amount of degrees of clockwise rotation needed to make the photo upright. The text should be right side up.",
			"type":        "string",
			"enum":        []string{"0", "90", "180", "270"},
		},
	},
}

// ExtractPosterMetadata reads a concert poster image and returns its
// structured metadata. The image is passed as a URL or data URL.
func (c *Client) ExtractPosterMetadata(ctx context.Context, imageURLOrData string) (*PosterMetadata, error) {
	prompt := fmt.Sprintf(
		"Extract the information from this concert poster. The current date is %s.",
		time.Now().Format(time.RFC1123))

	content, err := c.visionCompletion(ctx, prompt, imageURLOrData, "poster", posterMetadataSchema)
	if err != nil {
		return nil, fmt.Errorf("extracting poster metadata: %w", err)
	}

	var meta PosterMetadata
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		return nil, fmt.Errorf("parsing poster metadata: %w", err)
	}
	return &meta, nil
}

// InferRotation determines the clockwise rotation needed to make a poster
// image upright, using in-image text as the cue.
func (c *Client) InferRotation(ctx context.Context, imageURLOrData string) (*RotationInstructions, error) {
	prompt := "Please help rotate the image clockwise. Use the text in the image to help determine the correct clockwise rotation. The text in the image should help because it will be right side up."

	content, err := c.visionCompletion(ctx, prompt, imageURLOrData, "rotationInstructions", rotationSchema)
	if err != nil {
		return nil, fmt.Errorf("inferring rotation: %w", err)
	}

	var instr RotationInstructions
	if err := json.Unmarshal([]byte(content), &instr); err != nil {
		return nil, fmt.Errorf("parsing rotation instructions: %w", err)
	}
	return &instr, nil
}

// summarizeSystemPrompt steers the model toward live-performance summaries.
const summarizeSystemPrompt = `You summarize musical artist descriptions for live performance recommendations.

The user will provide you with a detailed description of an Artist.

Your job is to summarize to 3 sentences that describe the artists' live performance, and general style and influences if available in longer description.

Return only the summarization.`

// Summarize condenses an artist description to at most three sentences
// focused on live performance style.
func (c *Client) Summarize(ctx context.Context, longText string) (string, error) {
	req := chatRequest{
		Model: c.summarizeModel,
		Messages: []chatMessage{
			{Role: "system", Content: summarizeSystemPrompt},
			{Role: "user", Content: longText},
		},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarizing description: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) visionCompletion(ctx context.Context, prompt, imageRef, schemaName string, schema any) (string, error) {
	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: imageRef}},
				},
			},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   schemaName,
				Strict: true,
				Schema: schema,
			},
		},
	}
	return c.complete(ctx, req)
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}
