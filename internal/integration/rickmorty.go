package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/pkg/models"
)

const charactersQuery = `query GetCharacters($page: Int, $name: String, $species: String) {
  characters(page: $page, filter: { name: $name, species: $species }) {
    info { count pages next prev }
    results {
      id name status species type gender image
      origin { id name }
      location { id name }
    }
  }
}`

const characterQuery = `query GetCharacter($id: ID!) {
  character(id: $id) {
    id name status species type gender image created
    origin { id name type dimension }
    location { id name type dimension }
    episode { id name air_date episode }
  }
}`

// RickMortyConfig configures the GraphQL client. Zero values take the
// defaults noted per field.
type RickMortyConfig struct {
	Endpoint string
	// Timeout bounds each HTTP attempt. Default 15s.
	Timeout time.Duration
	// RateLimit is requests per second. Zero disables throttling.
	RateLimit float64
	Burst     int
	// MaxRetries counts extra attempts after transient failures.
	MaxRetries int
	// RetryBaseDelay is the first backoff interval. Default 200ms.
	RetryBaseDelay time.Duration
	UserAgent      string
	HTTPClient     *http.Client
}

// RickMortyClient queries the Rick and Morty GraphQL API and implements
// core.CharacterFetcher.
type RickMortyClient interface {
	FetchCharacters(ctx context.Context, q core.CharacterQuery) (*models.CharactersPage, error)
	FetchCharacter(ctx context.Context, id string) (*models.Character, error)
}

type rickMortyClient struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewRickMortyClient creates a client for cfg.Endpoint.
func NewRickMortyClient(cfg RickMortyConfig) RickMortyClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = core.DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "rmb"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &rickMortyClient{
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
	}
}

var errMalformedResponse = errors.New("malformed response")

// --- Wire types ---

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type wireInfo struct {
	Count int  `json:"count"`
	Pages int  `json:"pages"`
	Next  *int `json:"next"`
	Prev  *int `json:"prev"`
}

type charactersData struct {
	Characters *struct {
		Info    wireInfo           `json:"info"`
		Results []models.Character `json:"results"`
	} `json:"characters"`
}

type characterData struct {
	Character *models.Character `json:"character"`
}

// StatusError is a non-2xx HTTP response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// GraphQLError reports errors returned in a GraphQL response body.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// notFound reports whether the API signalled an empty result. The public
// API answers a filter with no matches with a "404" error message.
func (e *GraphQLError) notFound() bool {
	for _, m := range e.Messages {
		lm := strings.ToLower(m)
		if strings.Contains(lm, "404") || strings.Contains(lm, "nothing here") || strings.Contains(lm, "not found") {
			return true
		}
	}
	return false
}

// --- Operations ---

func (c *rickMortyClient) FetchCharacters(ctx context.Context, q core.CharacterQuery) (*models.CharactersPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	vars := map[string]any{"page": page}
	if q.Name != "" {
		vars["name"] = q.Name
	}
	if q.Species != "" {
		vars["species"] = q.Species
	}

	var data charactersData
	err := c.do(ctx, graphQLRequest{Query: charactersQuery, Variables: vars}, &data)
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) && gqlErr.notFound() {
		return &models.CharactersPage{Results: []models.Character{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching characters page %d: %w", page, err)
	}
	if data.Characters == nil {
		return &models.CharactersPage{Results: []models.Character{}}, nil
	}

	out := &models.CharactersPage{
		Info: models.PageInfo{
			Count: data.Characters.Info.Count,
			Pages: data.Characters.Info.Pages,
		},
		Results: data.Characters.Results,
	}
	if data.Characters.Info.Next != nil {
		out.Info.Next = *data.Characters.Info.Next
	}
	if data.Characters.Info.Prev != nil {
		out.Info.Prev = *data.Characters.Info.Prev
	}
	if out.Results == nil {
		out.Results = []models.Character{}
	}
	return out, nil
}

func (c *rickMortyClient) FetchCharacter(ctx context.Context, id string) (*models.Character, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}

	var data characterData
	err := c.do(ctx, graphQLRequest{Query: characterQuery, Variables: map[string]any{"id": id}}, &data)
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) && gqlErr.notFound() {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching character %s: %w", id, err)
	}
	if data.Character == nil || data.Character.ID == "" {
		return nil, nil
	}
	return data.Character, nil
}

// do posts a GraphQL request and decodes its data into out. GraphQL queries
// have no side effects, so transient failures are retried with jittered
// exponential backoff.
func (c *rickMortyClient) do(ctx context.Context, req graphQLRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		lastErr = c.attempt(ctx, body, out)
		if lastErr == nil || !retryable(ctx, lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func (c *rickMortyClient) attempt(ctx context.Context, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var gr graphQLResponse
	decodeErr := json.Unmarshal(raw, &gr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The API reports empty filters as HTTP 404 with a GraphQL body.
		if decodeErr == nil && len(gr.Errors) > 0 && resp.StatusCode < 500 {
			return graphQLErrorFrom(gr.Errors)
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %v", errMalformedResponse, decodeErr)
	}
	if len(gr.Errors) > 0 {
		return graphQLErrorFrom(gr.Errors)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %v", errMalformedResponse, err)
	}
	return nil
}

func (c *rickMortyClient) backoff(attempt int) time.Duration {
	delay := float64(c.baseDelay)
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if ceiling := float64(5 * time.Second); delay > ceiling {
		delay = ceiling
	}
	jitter := rand.Float64() * delay * 0.5
	return time.Duration(delay*0.75 + jitter)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return false
	}
	if errors.Is(err, errMalformedResponse) {
		return false
	}
	// Network errors are generally transient.
	return true
}

func graphQLErrorFrom(errs []graphQLError) *GraphQLError {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return &GraphQLError{Messages: msgs}
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
