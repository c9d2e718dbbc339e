package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
	"golang.org/x/time/rate"
)

// maxEmbeds is the most embeds one webhook message may carry
const maxEmbeds = 10

type embedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Author    *embedAuthor `json:"author,omitempty"`
	Thumbnail *embedImage  `json:"thumbnail,omitempty"`
	Image     *embedImage  `json:"image,omitempty"`
	Fields    []embedField `json:"fields,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Discord delivers alert batches to a Discord-compatible webhook
type Discord struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDiscord creates a webhook sink. An empty URL makes Deliver log the
// alerts instead of posting them.
func NewDiscord(cfg *config.WebhookConfig, logger *slog.Logger) *Discord {
	return &Discord{
		url:     cfg.URL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Deliver sends alerts as one message; empty batches are ignored
func (d *Discord) Deliver(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if len(alerts) > maxEmbeds {
		return fmt.Errorf("%d alerts exceed the %d embed limit: %w", len(alerts), maxEmbeds, domain.ErrInvalidRequest)
	}

	if d.url == "" {
		for _, a := range alerts {
			d.logger.Warn("alert (no webhook configured)", "title", a.Title, "player", a.Author.Name)
		}
		metrics.AlertDeliveriesTotal.WithLabelValues("logged").Inc()
		return nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("waiting for webhook rate limit: %w", err)
	}

	body, err := json.Marshal(toPayload(alerts))
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.AlertDeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	metrics.AlertDeliveriesTotal.WithLabelValues("delivered").Inc()
	d.logger.Info("delivered alerts", "count", len(alerts))
	return nil
}

func toPayload(alerts []domain.Alert) payload {
	p := payload{Embeds: make([]embed, 0, len(alerts))}
	for _, a := range alerts {
		e := embed{
			Title: a.Title,
			Color: a.Color,
			Author: &embedAuthor{
				Name:    a.Author.Name,
				URL:     a.Author.URL,
				IconURL: a.Author.IconURL,
			},
		}
		if a.ThumbnailURL != "" {
			e.Thumbnail = &embedImage{URL: a.ThumbnailURL}
		}
		if a.ImageURL != "" {
			e.Image = &embedImage{URL: a.ImageURL}
		}
		for _, f := range a.Fields {
			e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		p.Embeds = append(p.Embeds, e)
	}
	return p
}
