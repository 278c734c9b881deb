// Package publisher posts finalized content to LinkedIn through the UGC
// share API.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/postpilot/internal/types"
)

const defaultBaseURL = "https://api.linkedin.com/v2"

// Config carries the LinkedIn credentials and endpoint.
type Config struct {
	BaseURL     string
	AccessToken string
	PersonURN   string
}

// Client publishes posts as the configured member. It implements
// types.Publisher; every failure is returned as a *types.PublishError so
// the caller can distinguish transient platform trouble from rejections.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	personURN   string
}

// New creates a LinkedIn client. The access token and person URN are
// required; the base URL defaults to the public API.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("linkedin: access token is required")
	}
	if cfg.PersonURN == "" {
		return nil, errors.New("linkedin: person URN is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: cfg.AccessToken,
		personURN:   cfg.PersonURN,
	}, nil
}

// Publish uploads any attachments and creates a UGC post. On success it
// returns the engagement handle from the X-RestLi-Id response header.
func (c *Client) Publish(ctx context.Context, content string, attachments []string) (*types.Engagement, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &types.PublishError{Retryable: false, Err: errors.New("empty post content")}
	}

	var media []mediaAsset
	for _, path := range attachments {
		asset, err := c.uploadAttachment(ctx, path)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			media = append(media, *asset)
		}
	}

	body := map[string]any{
		"author":         c.personURN,
		"lifecycleState": "PUBLISHED",
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	share := map[string]any{
		"shareCommentary":    map[string]string{"text": content},
		"shareMediaCategory": "NONE",
	}
	if len(media) > 0 {
		share["shareMediaCategory"] = "IMAGE"
		share["media"] = media
	}
	body["specificContent"] = map[string]any{"com.linkedin.ugc.ShareContent": share}

	resp, err := c.postJSON(ctx, "/ugcPosts", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	urn := resp.Header.Get("X-RestLi-Id")
	if urn == "" {
		urn = resp.Header.Get("X-Restli-Id")
	}
	eng := &types.Engagement{PostURN: urn}
	if urn != "" {
		eng.URL = "https://www.linkedin.com/feed/update/" + urn
	}
	return eng, nil
}

// mediaAsset is one uploaded attachment reference in the share payload.
type mediaAsset struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

// uploadAttachment registers and uploads one local media file. A missing
// file is skipped with a warning, matching the tolerance of scheduled
// publishing where an attachment may have been cleaned up since approval.
func (c *Client) uploadAttachment(ctx context.Context, path string) (*mediaAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("attachment missing, skipping", "path", path)
			return nil, nil
		}
		return nil, &types.PublishError{Retryable: false, Err: fmt.Errorf("read attachment %s: %w", path, err)}
	}

	mediaType := "image"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".avi", ".mov":
		mediaType = "video"
	}

	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-" + mediaType},
			"owner":   c.personURN,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	resp, err := c.postJSON(ctx, "/assets?action=registerUpload", register)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return nil, &types.PublishError{Retryable: true, Err: fmt.Errorf("decode register response: %w", err)}
	}
	uploadURL := registered.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" || registered.Value.Asset == "" {
		return nil, &types.PublishError{Retryable: true, Err: errors.New("register upload returned no upload URL")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, &types.PublishError{Retryable: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	uploadResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.PublishError{Retryable: true, Err: fmt.Errorf("upload %s: %w", path, err)}
	}
	defer uploadResp.Body.Close()
	io.Copy(io.Discard, uploadResp.Body)
	if uploadResp.StatusCode < 200 || uploadResp.StatusCode >= 300 {
		return nil, classifyCode(uploadResp.StatusCode, fmt.Sprintf("upload %s: status %d", path, uploadResp.StatusCode))
	}

	return &mediaAsset{Status: "READY", Media: registered.Value.Asset}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &types.PublishError{Retryable: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &types.PublishError{Retryable: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are worth another try.
		return nil, &types.PublishError{Retryable: true, Err: err}
	}
	return resp, nil
}

// classifyStatus converts a non-2xx response into a PublishError, reading
// a snippet of the body for the message.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	return classifyCode(resp.StatusCode, msg)
}

// classifyCode maps HTTP status codes to retryability: rate limits and
// server errors are transient, other client errors are permanent.
func classifyCode(code int, msg string) error {
	retryable := code == http.StatusTooManyRequests || code >= 500
	return &types.PublishError{Retryable: retryable, Err: errors.New(msg)}
}
