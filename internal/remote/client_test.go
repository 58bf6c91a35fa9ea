package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient("", PresetClaire.ModelID(), "token", zerolog.Nop())

	assert.Equal(t, DefaultEndpoint, client.endpoint)
	assert.Equal(t, "a05a5522-3059-4dfd-90e4-4bc1699ae9d4", client.modelID)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, DefaultInferenceConfig(), client.inference)
}

func TestClient_Infer(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		responseBody   string
		wantFrames     int
		wantFrameRate  float64
		wantErr        bool
	}{
		{
			name:           "frames returned",
			responseStatus: http.StatusOK,
			responseBody:   `{"frame_rate":60,"blendshapes":[{"jawOpen":0.2},{"jawOpen":0.4}],"status":"ok"}`,
			wantFrames:     2,
			wantFrameRate:  60,
		},
		{
			name:           "frame rate defaults",
			responseStatus: http.StatusOK,
			responseBody:   `{"blendshapes":[{"jawOpen":0.2}]}`,
			wantFrames:     1,
			wantFrameRate:  30,
		},
		{
			name:           "service reports error",
			responseStatus: http.StatusOK,
			responseBody:   `{"status":"error","error":"model overloaded"}`,
			wantErr:        true,
		},
		{
			name:           "unauthorized",
			responseStatus: http.StatusUnauthorized,
			responseBody:   `{"error":"bad token"}`,
			wantErr:        true,
		},
		{
			name:           "malformed body",
			responseStatus: http.StatusOK,
			responseBody:   `{"blendshapes":`,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wav := []byte("RIFF fake wav")

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/functions/model-1", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

				require.NoError(t, r.ParseMultipartForm(10<<20))

				file, header, err := r.FormFile("audio")
				require.NoError(t, err)
				assert.Equal(t, "audio.wav", header.Filename)
				got, err := io.ReadAll(file)
				require.NoError(t, err)
				assert.Equal(t, wav, got)

				var cfg InferenceConfig
				require.NoError(t, json.Unmarshal([]byte(r.FormValue("config")), &cfg))
				assert.Equal(t, 0.5, cfg.EmotionIntensity)
				assert.Equal(t, "neutral", cfg.EmotionType)

				w.WriteHeader(tt.responseStatus)
				w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			client := NewClient(server.URL+"/", "model-1", "secret", zerolog.Nop())
			resp, err := client.Infer(context.Background(), wav)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSubmissionFailed)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.Blendshapes, tt.wantFrames)
			assert.Equal(t, tt.wantFrameRate, resp.FrameRate)
		})
	}
}

func TestClient_InferWithoutCredential(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "model-1", "", zerolog.Nop())
	_, err := client.Infer(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestClient_InferContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "model-1", "secret", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	resp, err := client.Infer(ctx, []byte("fake audio"))
	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
