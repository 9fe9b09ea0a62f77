package crosschain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/logger"
)

const layerZeroScanURL = "https://layerzeroscan.com"

var ErrMessageNotFound = errors.New("bridge message not indexed yet")

type scanMessage struct {
	SrcUaAddress string `json:"srcUaAddress"`
	DstUaAddress string `json:"dstUaAddress"`
	SrcChainID   uint16 `json:"srcChainId"`
	DstChainID   uint16 `json:"dstChainId"`
	SrcUaNonce   uint64 `json:"srcUaNonce"`
	Status       string `json:"status"`
}

type scanResponse struct {
	Messages []scanMessage `json:"messages"`
}

// Explorer resolves a bridge transaction to its LayerZero scan message page.
type Explorer struct {
	baseURL    string
	client     *http.Client
	interval   time.Duration
	maxRetries int
	logger     zerolog.Logger
}

// NewExplorer polls baseURL (the scan API) with the default cadence.
func NewExplorer(baseURL string) *Explorer {
	return &Explorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 15 * time.Second},
		interval:   config.ExplorerPollInterval,
		maxRetries: config.ExplorerMaxRetries,
		logger:     logger.GetForComponent("bridge_explorer"),
	}
}

// WithPolling overrides the poll interval and attempt count.
func (e *Explorer) WithPolling(interval time.Duration, maxRetries int) *Explorer {
	e.interval = interval
	e.maxRetries = maxRetries
	return e
}

// ResolveLink polls until the message for txHash is indexed, then returns its
// scan URL. It gives up after maxRetries attempts.
func (e *Explorer) ResolveLink(ctx context.Context, txHash string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		msg, err := e.fetch(ctx, txHash)
		if err == nil {
			link := messageLink(msg)
			e.logger.Info().Str("txHash", txHash).Str("link", link).Int("attempt", attempt).Msg("Resolved bridge message link")
			return link, nil
		}
		lastErr = err
		e.logger.Debug().Err(err).Str("txHash", txHash).Int("attempt", attempt).Msg("Bridge message not available")

		if attempt == e.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.interval):
		}
	}
	return "", fmt.Errorf("failed to resolve bridge link for %s after %d attempts: %w", txHash, e.maxRetries, lastErr)
}

func (e *Explorer) fetch(ctx context.Context, txHash string) (scanMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/tx/"+txHash, nil)
	if err != nil {
		return scanMessage{}, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return scanMessage{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return scanMessage{}, fmt.Errorf("scan API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return scanMessage{}, fmt.Errorf("failed to read response body: %w", err)
	}
	var parsed scanResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return scanMessage{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return scanMessage{}, ErrMessageNotFound
	}
	return parsed.Messages[0], nil
}

func messageLink(m scanMessage) string {
	return fmt.Sprintf("%s/%d/address/%s/message/%d/address/%s/nonce/%d",
		layerZeroScanURL, m.SrcChainID, m.SrcUaAddress, m.DstChainID, m.DstUaAddress, m.SrcUaNonce)
}
