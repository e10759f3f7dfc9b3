package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loopback-hub/loopback/config"
)

// GenerationClient issues single-shot text-generation calls against the
// foundation-model endpoint. Used by the grouping engine for similarity
// decisions; the response is free text the caller must validate itself.
type GenerationClient struct {
	url        string
	modelID    string
	projectID  string
	httpClient *http.Client
}

// NewGenerationClient builds a generation client from configuration.
func NewGenerationClient(wx config.WatsonxConfig) *GenerationClient {
	timeout := wx.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GenerationClient{
		url:        wx.GenerationURL,
		modelID:    wx.ModelID,
		projectID:  wx.ProjectID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate sends the prompt and returns the generated text. Decoding is greedy
// with a short token budget; responses are expected to be a single line.
func (g *GenerationClient) Generate(ctx context.Context, token, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": prompt,
		"parameters": map[string]interface{}{
			"decoding_method":    "greedy",
			"max_new_tokens":     10,
			"min_new_tokens":     1,
			"stop_sequences":     []string{"\n"},
			"repetition_penalty": 1.0,
		},
		"model_id":   g.modelID,
		"project_id": g.projectID,
	})
	if err != nil {
		return "", &TransportError{Op: "marshal generation request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "create generation request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "generation call", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Op: "generation call", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var decoded struct {
		Results []struct {
			GeneratedText string `json:"generated_text"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &TransportError{Op: "decode generation response", Err: err}
	}
	if len(decoded.Results) == 0 {
		return "", &TransportError{Op: "generation call", Err: errors.New("no results in response")}
	}
	return decoded.Results[0].GeneratedText, nil
}
