package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MKhiriev/go-confluence-sync/internal/fingerprint"
	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/MKhiriev/go-confluence-sync/models"
	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

const pageSize = 100

// ConfluenceConfig carries the connection settings for one Confluence site.
type ConfluenceConfig struct {
	BaseURL  string
	Username string
	APIToken string
	SpaceKey string
	Timeout  time.Duration

	// MaxRetries bounds transient-failure retries per request; RetryBase is
	// the initial backoff step. Zero values pick conservative defaults.
	MaxRetries uint64
	RetryBase  time.Duration
}

type confluenceStore struct {
	client     *resty.Client
	spaceKey   string
	maxRetries uint64
	retryBase  time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	spaceID string
}

// NewConfluenceStore builds a RemoteStore backed by the Confluence Cloud v2
// REST API.
func NewConfluenceStore(cfg ConfluenceConfig, log *logger.Logger) RemoteStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.Username, cfg.APIToken).
		SetHeader("Accept", "application/json")

	return &confluenceStore{
		client:     cli,
		spaceKey:   cfg.SpaceKey,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		log:        log,
	}
}

// ── wire types ───────────────────────────────────────────────────────────────

type pageDTO struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	SpaceID string `json:"spaceId"`
	Version struct {
		Number int64 `json:"number"`
	} `json:"version"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

type pageListDTO struct {
	Results []pageDTO `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type spaceListDTO struct {
	Results []struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	} `json:"results"`
}

type attachmentDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MediaType string `json:"mediaType"`
	Links     struct {
		Download string `json:"download"`
	} `json:"_links"`
}

type attachmentListDTO struct {
	Results []attachmentDTO `json:"results"`
}

// ── RemoteStore implementation ───────────────────────────────────────────────

func (c *confluenceStore) List(ctx context.Context) ([]models.RemotePageState, error) {
	spaceID, err := c.getSpaceID(ctx)
	if err != nil {
		return nil, err
	}

	var states []models.RemotePageState

	url := "/wiki/api/v2/pages"
	query := map[string]string{
		"space-id":    spaceID,
		"status":      "current",
		"body-format": "storage",
		"limit":       fmt.Sprintf("%d", pageSize),
	}

	for url != "" {
		resp, err := c.doRetry(ctx, "list pages", func(ctx context.Context) (*resty.Response, error) {
			return c.client.R().SetContext(ctx).SetQueryParams(query).Get(url)
		})
		if err != nil {
			return nil, err
		}
		if err = mapHTTPError(resp); err != nil {
			return nil, err
		}

		var page pageListDTO
		if err = json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("decode page list: %w", err)
		}

		for _, dto := range page.Results {
			doc := models.PageDocument{Title: dto.Title, Body: dto.Body.Storage.Value}
			states = append(states, models.RemotePageState{
				RemoteID: dto.ID,
				Title:    dto.Title,
				Version:  dto.Version.Number,
				Hash:     fingerprint.Sum(doc.CanonicalContent()),
			})
		}

		// Cursor pagination: the next link already carries all parameters.
		url = page.Links.Next
		query = nil
	}

	return states, nil
}

func (c *confluenceStore) Get(ctx context.Context, remoteID string) (models.RemotePage, error) {
	resp, err := c.doRetry(ctx, "get page", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetQueryParam("body-format", "storage").
			Get("/wiki/api/v2/pages/" + remoteID)
	})
	if err != nil {
		return models.RemotePage{}, err
	}
	if err = mapHTTPError(resp); err != nil {
		return models.RemotePage{}, err
	}

	var dto pageDTO
	if err = json.Unmarshal(resp.Body(), &dto); err != nil {
		return models.RemotePage{}, fmt.Errorf("decode page %s: %w", remoteID, err)
	}

	return models.RemotePage{
		RemoteID: dto.ID,
		Title:    dto.Title,
		Body:     dto.Body.Storage.Value,
		Version:  dto.Version.Number,
	}, nil
}

func (c *confluenceStore) Create(ctx context.Context, title, body string) (models.RemotePageState, error) {
	spaceID, err := c.getSpaceID(ctx)
	if err != nil {
		return models.RemotePageState{}, err
	}

	payload := map[string]any{
		"spaceId": spaceID,
		"status":  "current",
		"title":   title,
		"body": map[string]string{
			"representation": "storage",
			"value":          body,
		},
	}

	resp, err := c.doRetry(ctx, "create page", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post("/wiki/api/v2/pages")
	})
	if err != nil {
		return models.RemotePageState{}, err
	}
	if err = mapHTTPError(resp); err != nil {
		return models.RemotePageState{}, err
	}

	var dto pageDTO
	if err = json.Unmarshal(resp.Body(), &dto); err != nil {
		return models.RemotePageState{}, fmt.Errorf("decode created page: %w", err)
	}

	doc := models.PageDocument{Title: title, Body: body}
	return models.RemotePageState{
		RemoteID: dto.ID,
		Title:    dto.Title,
		Version:  dto.Version.Number,
		Hash:     fingerprint.Sum(doc.CanonicalContent()),
	}, nil
}

func (c *confluenceStore) Update(ctx context.Context, remoteID, title, body string, expectedVersion int64) (int64, error) {
	payload := map[string]any{
		"id":     remoteID,
		"status": "current",
		"title":  title,
		"body": map[string]string{
			"representation": "storage",
			"value":          body,
		},
		"version": map[string]any{
			// The precondition: the server rejects this write with 409 unless
			// the page is still at expectedVersion.
			"number":  expectedVersion + 1,
			"message": "updated via sync at " + time.Now().UTC().Format(time.RFC3339),
		},
	}

	resp, err := c.doRetry(ctx, "update page", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Put("/wiki/api/v2/pages/" + remoteID)
	})
	if err != nil {
		return 0, err
	}
	if err = mapHTTPError(resp); err != nil {
		return 0, err
	}

	var dto pageDTO
	if err = json.Unmarshal(resp.Body(), &dto); err != nil {
		return 0, fmt.Errorf("decode updated page %s: %w", remoteID, err)
	}

	return dto.Version.Number, nil
}

func (c *confluenceStore) Delete(ctx context.Context, remoteID string) error {
	resp, err := c.doRetry(ctx, "delete page", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).Delete("/wiki/api/v2/pages/" + remoteID)
	})
	if err != nil {
		return err
	}

	// Already gone is fine: deletes are idempotent.
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return mapHTTPError(resp)
}

func (c *confluenceStore) ListAttachments(ctx context.Context, remoteID string) ([]models.Attachment, error) {
	resp, err := c.doRetry(ctx, "list attachments", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetQueryParam("limit", "250").
			Get("/wiki/api/v2/pages/" + remoteID + "/attachments")
	})
	if err != nil {
		return nil, err
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var list attachmentListDTO
	if err = json.Unmarshal(resp.Body(), &list); err != nil {
		return nil, fmt.Errorf("decode attachments for page %s: %w", remoteID, err)
	}

	attachments := make([]models.Attachment, 0, len(list.Results))
	for _, dto := range list.Results {
		attachments = append(attachments, models.Attachment{
			ID:           dto.ID,
			PageID:       remoteID,
			Title:        dto.Title,
			MediaType:    dto.MediaType,
			DownloadLink: dto.Links.Download,
		})
	}

	return attachments, nil
}

func (c *confluenceStore) DownloadAttachment(ctx context.Context, att models.Attachment) ([]byte, error) {
	if att.DownloadLink == "" {
		return nil, fmt.Errorf("%w: attachment %s has no download link", ErrNotFound, att.Title)
	}

	url := att.DownloadLink
	if strings.HasPrefix(url, "/") && !strings.HasPrefix(url, "/wiki") {
		url = "/wiki" + url
	}

	resp, err := c.doRetry(ctx, "download attachment", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetHeader("Accept", "*/*").
			Get(url)
	})
	if err != nil {
		return nil, err
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	return resp.Body(), nil
}

func (c *confluenceStore) UploadAttachment(ctx context.Context, remoteID, filename string, content []byte) error {
	resp, err := c.doRetry(ctx, "upload attachment", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetHeader("X-Atlassian-Token", "nocheck").
			SetFileReader("file", filename, strings.NewReader(string(content))).
			SetQueryParam("allowDuplicated", "true").
			Post("/wiki/rest/api/content/" + remoteID + "/child/attachment")
	})
	if err != nil {
		return err
	}

	return mapHTTPError(resp)
}

// getSpaceID resolves the configured space key to its identifier, caching
// the result for the adapter's lifetime.
func (c *confluenceStore) getSpaceID(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.spaceID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	resp, err := c.doRetry(ctx, "resolve space", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().
			SetContext(ctx).
			SetQueryParam("keys", c.spaceKey).
			Get("/wiki/api/v2/spaces")
	})
	if err != nil {
		return "", err
	}
	if err = mapHTTPError(resp); err != nil {
		return "", err
	}

	var spaces spaceListDTO
	if err = json.Unmarshal(resp.Body(), &spaces); err != nil {
		return "", fmt.Errorf("decode space list: %w", err)
	}

	for _, space := range spaces.Results {
		if space.Key == c.spaceKey {
			c.mu.Lock()
			c.spaceID = space.ID
			c.mu.Unlock()
			return space.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrSpaceNotFound, c.spaceKey)
}

// doRetry sends one logical request, retrying transport failures and
// transient statuses (429, 5xx) with bounded exponential backoff. Definitive
// responses, including 4xx, are returned to the caller unretried.
func (c *confluenceStore) doRetry(ctx context.Context, desc string, send func(ctx context.Context) (*resty.Response, error)) (*resty.Response, error) {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))

	var resp *resty.Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, sendErr := send(ctx)
		if sendErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("%s request: %w", desc, sendErr))
		}
		if isTransientStatus(r.StatusCode()) {
			c.log.Warn().Str("op", desc).Int("status", r.StatusCode()).Msg("transient remote failure, backing off")
			return retry.RetryableError(fmt.Errorf("%s: http %d", desc, r.StatusCode()))
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", desc, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	return resp, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))

	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrVersionConflict
	}
	if strings.Contains(strings.ToLower(body), "version conflict") {
		return ErrVersionConflict
	}

	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
}
