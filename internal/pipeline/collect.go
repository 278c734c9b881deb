// internal/pipeline/collect.go
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxImportedChars = 20000

// Collector expands collected input lines. A line of the form
// "url: https://..." is fetched and replaced with the page content as
// markdown, so notes can reference a project page or writeup directly.
type Collector struct {
	client *http.Client
}

func NewCollector() *Collector {
	return &Collector{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Expand resolves url directives in the input lines. Non-directive lines
// pass through unchanged.
func (c *Collector) Expand(ctx context.Context, lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "url:")
		if !ok {
			out = append(out, line)
			continue
		}
		url := strings.TrimSpace(rest)
		if url == "" {
			return nil, fmt.Errorf("empty url directive")
		}
		md, err := c.fetchMarkdown(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", url, err)
		}
		out = append(out, "Imported from "+url+":", md)
	}
	return out, nil
}

func (c *Collector) fetchMarkdown(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Postpilot/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	if len(md) > maxImportedChars {
		md = md[:maxImportedChars] + "\n\n[Content truncated]"
	}
	return md, nil
}
