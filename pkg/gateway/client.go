package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/environments"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/logger"
)

// ConnectedState is the gateway's state value for a usable instance.
const ConnectedState = "open"

// Client talks to the WhatsApp HTTP gateway. One gateway serves many
// companies; each company connects its own named instance.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

func NewClient(cfg environments.GatewayConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey)

	return &Client{
		httpClient: client,
		baseURL:    cfg.BaseURL,
	}
}

// SendText delivers one text message through the named instance. The
// dispatcher treats this call as opaque; any non-2xx response is an error.
func (c *Client) SendText(ctx context.Context, instance, address, text string) (*domain.GatewaySendResponse, error) {
	payload := domain.GatewaySendRequest{
		Number: address,
		Text:   text,
	}

	var sendResp domain.GatewaySendResponse

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&sendResp).
		Post(fmt.Sprintf("%s/message/sendText/%s", c.baseURL, instance))

	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("Gateway send via %s completed in %v (status: %d)", instance, duration, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	return &sendResp, nil
}

// ConnectionState reports whether the named instance is connected to
// WhatsApp. Dispatches must not start against a disconnected instance.
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	var stateResp domain.GatewayStateResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&stateResp).
		Get(fmt.Sprintf("%s/instance/connectionState/%s", c.baseURL, instance))

	if err != nil {
		return "", fmt.Errorf("failed to query instance state: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	return stateResp.State, nil
}

// Reachable reports whether the gateway answers HTTP at its base URL. Used
// by the health endpoint; it does not require any instance to be connected.
func (c *Client) Reachable(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.baseURL)

	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode())
	}

	return nil
}

func (c *Client) GetBaseURL() string {
	return c.baseURL
}
