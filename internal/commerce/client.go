package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jia-app/dunningservice/internal/circuitbreaker"
	"github.com/jia-app/dunningservice/internal/log"
	"github.com/jia-app/dunningservice/internal/metrics"
	"github.com/jia-app/dunningservice/internal/tracing"
)

const maxErrorBody = 2048

// TokenSource resolves the offline Admin API access token of a shop.
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// Config configures the Admin GraphQL client
type Config struct {
	APIVersion string
	Timeout    time.Duration
	// BaseURL overrides https://{shop} and is used against test servers.
	BaseURL string
}

// Client talks to the commerce platform Admin GraphQL API on behalf of shops.
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     TokenSource
	breakers   *circuitbreaker.Manager
}

// NewClient creates a new Admin API client. Every shop gets its own circuit breaker.
func NewClient(config Config, tokens TokenSource, breakers *circuitbreaker.Manager) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), nil)
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		tokens:     tokens,
		breakers:   breakers,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) endpoint(shop string) string {
	base := c.config.BaseURL
	if base == "" {
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", strings.TrimRight(base, "/"), c.config.APIVersion)
}

// do executes one GraphQL operation and decodes its data into out.
func (c *Client) do(ctx context.Context, shop, operation, query string, variables map[string]any, out any) (err error) {
	ctx, span := tracing.StartSpan(ctx, "commerce."+operation,
		attribute.String("shop", shop),
		attribute.String("operation", operation))
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordCommerceAPICall(operation, status, time.Since(start))
		tracing.EndSpan(span, err)
	}()

	token, err := c.tokens.AccessToken(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to resolve access token for %s: %w", shop, err)
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	var raw []byte
	err = c.breakers.GetOrCreate(shop).Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(shop), bytes.NewReader(body))
		if err != nil {
			return circuitbreaker.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Shopify-Access-Token", token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", operation, err)
		}

		if resp.StatusCode >= 300 {
			if len(raw) > maxErrorBody {
				raw = raw[:maxErrorBody]
			}
			httpErr := &HTTPError{Operation: operation, StatusCode: resp.StatusCode, Body: string(raw)}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return httpErr
			}
			return circuitbreaker.Permanent(httpErr)
		}
		return nil
	})
	if err != nil {
		log.Warn(ctx, "Commerce API call failed",
			zap.String("shop", shop),
			zap.String("operation", operation),
			zap.Error(err))
		return err
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &ProtocolError{Operation: operation, Expected: "a JSON GraphQL response"}
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return &GraphQLError{Operation: operation, Messages: msgs}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return &ProtocolError{Operation: operation, Expected: "a data object"}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &ProtocolError{Operation: operation, Expected: fmt.Sprintf("data decodable as %T", out)}
	}
	return nil
}

// checkMutation enforces that a mutation returned either user errors or its payload.
func checkMutation(operation, expected string, userErrors []UserError, present bool) error {
	if len(userErrors) > 0 {
		return &UserErrors{Operation: operation, Errors: userErrors}
	}
	if !present {
		return &ProtocolError{Operation: operation, Expected: expected}
	}
	return nil
}
