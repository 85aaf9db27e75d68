package ai

// Event is one concert occurrence extracted from a poster.
type Event struct {
	Venue      string `json:"venue"`
	Location   string `json:"location"`
	Date       string `json:"date"` // ISO-8601
	IsUpcoming bool   `json:"isUpcoming"`
}

// PosterMetadata is the structured result of vision extraction.
type PosterMetadata struct {
	BandNames []string `json:"bandNames"`
	Events    []Event  `json:"events"`
	TourName  string   `json:"tourName"`
	Slug      string   `json:"slug"`
}

// RotationInstructions describes how to restore an image to upright
// orientation. Rotations are clockwise degrees, one of "0", "90", "180",
// "270".
type RotationInstructions struct {
	CurrentAssumedClockwiseRotation string `json:"currentAssumedClockwiseRotation"`
	DegreesToRotate                 string `json:"degreesToRotate"`
}

// Request/response shapes for the OpenAI-compatible chat completions API.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string `json:"name"`
	Strict bool   `json:"strict"`
	Schema any    `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
