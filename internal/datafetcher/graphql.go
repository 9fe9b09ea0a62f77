package datafetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/beethovenx/vegov/internal/logger"
)

const (
	requestTimeout = 20 * time.Second
	maxRetries     = 3
)

var (
	ErrGraphQL       = errors.New("graphql query returned errors")
	ErrHTTPStatus    = errors.New("unexpected HTTP status")
	ErrEmptyBody     = errors.New("empty response body")
	ErrEndpointUnset = errors.New("graphql endpoint is not configured")
)

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// GraphQLClient posts queries to one endpoint (the API or a subgraph).
type GraphQLClient struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewGraphQLClient(url string) *GraphQLClient {
	return &GraphQLClient{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger.GetForComponent("subgraph"),
	}
}

// Query runs query and decodes its data field into out. Transport failures
// are retried with a linear backoff; GraphQL errors are not.
func (c *GraphQLClient) Query(ctx context.Context, name, query string, vars map[string]interface{}, out interface{}) error {
	if c.url == "" {
		return ErrEndpointUnset
	}
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode %s query: %w", name, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		data, err := c.post(ctx, payload)
		if err == nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode %s data: %w", name, err)
			}
			c.logger.Debug().Str("query", name).Int("attempt", attempt).Msg("Query succeeded")
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrGraphQL) || ctx.Err() != nil {
			break
		}
		c.logger.Warn().Err(err).Str("query", name).Int("attempt", attempt).Msg("Query failed, will retry if attempts remain")
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("%s query failed: %w", name, lastErr)
}

func (c *GraphQLClient) post(ctx context.Context, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		msgs := make([]string, len(parsed.Errors))
		for i, e := range parsed.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	return parsed.Data, nil
}

// flexInt accepts subgraph integers encoded either as JSON numbers or strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", s, err)
	}
	*f = flexInt(v)
	return nil
}
