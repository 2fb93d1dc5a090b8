package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Translator converts headline text between languages
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// LibreTranslate talks to a LibreTranslate-compatible /translate endpoint
type LibreTranslate struct {
	url    string
	client *http.Client
}

// NewLibreTranslate creates a translator posting to url
func NewLibreTranslate(url string, timeout time.Duration) *LibreTranslate {
	return &LibreTranslate{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate returns text translated from one language code to another
func (t *LibreTranslate) Translate(ctx context.Context, text, from, to string) (string, error) {
	body, err := json.Marshal(translateRequest{Q: text, Source: from, Target: to, Format: "text"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse translate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate returned status %d: %s", resp.StatusCode, result.Error)
	}
	if result.TranslatedText == "" {
		return "", fmt.Errorf("empty translation")
	}
	return result.TranslatedText, nil
}
