package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chartsignal/internal/domain"
)

const (
	defaultAPIBase = "https://discord.com/api/v10"

	// maxAttachmentBytes bounds attachment downloads. Chart screenshots are
	// far below this; anything larger is not worth sending to the oracle.
	maxAttachmentBytes = 20 << 20
)

// RESTClient performs the few HTTP calls the bot needs outside the gateway:
// acknowledging messages with a reaction and downloading chart attachments.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRESTClient creates a REST client for the given bot token. baseURL may be
// empty to use the public API.
func NewRESTClient(token, baseURL string) *RESTClient {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	return &RESTClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// AddReaction puts the given emoji on a message as the bot user.
func (c *RESTClient) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	endpoint := fmt.Sprintf("%s/channels/%s/messages/%s/reactions/%s/@me",
		c.baseURL, channelID, messageID, url.PathEscape(emoji))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("discord/rest: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord/rest: add reaction: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord/rest: add reaction: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DownloadAttachment fetches an attachment's bytes. Attachment URLs are
// pre-signed CDN links, so no authorization header is sent.
func (c *RESTClient) DownloadAttachment(ctx context.Context, att domain.Attachment) (domain.ImageRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("discord/rest: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("discord/rest: download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ImageRef{}, fmt.Errorf("discord/rest: download attachment: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("discord/rest: read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return domain.ImageRef{}, fmt.Errorf("discord/rest: attachment %s exceeds %d bytes", att.Filename, maxAttachmentBytes)
	}

	ct := att.ContentType
	if ct == "" {
		ct = resp.Header.Get("Content-Type")
	}
	return domain.ImageRef{Data: data, ContentType: ct, Name: att.Filename}, nil
}
