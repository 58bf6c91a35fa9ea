package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultEndpoint = "https://grpc.nvcf.nvidia.com:443"

// Client calls the hosted audio-to-face function
type Client struct {
	endpoint   string
	modelID    string
	credential string
	inference  InferenceConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client bound to one model and credential
func NewClient(endpoint, modelID, credential string, logger zerolog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		modelID:    modelID,
		credential: credential,
		inference:  DefaultInferenceConfig(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "a2f_client").Str("model", modelID).Logger(),
	}
}

// SetInferenceConfig overrides the emotion settings sent with each chunk
func (c *Client) SetInferenceConfig(cfg InferenceConfig) {
	c.inference = cfg
}

// SetTimeout bounds each request
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// Infer uploads one WAV chunk and returns the decoded frames
func (c *Client) Infer(ctx context.Context, wav []byte) (*Response, error) {
	if c.credential == "" {
		return nil, ErrMissingCredential
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	cfg, err := json.Marshal(c.inference)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := writer.WriteField("config", string(cfg)); err != nil {
		return nil, fmt.Errorf("failed to write config field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/v2/functions/%s", c.endpoint, c.modelID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", url).Int("bytes", len(wav)).Msg("Submitting audio chunk")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: service returned status %d: %s", ErrSubmissionFailed, resp.StatusCode, string(bodyBytes))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", ErrSubmissionFailed, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionFailed, out.Error)
	}
	if out.FrameRate <= 0 {
		out.FrameRate = 30
	}

	c.logger.Debug().
		Int("frames", len(out.Blendshapes)).
		Float64("frame_rate", out.FrameRate).
		Dur("elapsed", time.Since(start)).
		Msg("Frames received")

	return &out, nil
}
