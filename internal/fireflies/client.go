// Package fireflies implements the Fireflies.ai GraphQL client used to fetch
// call transcripts and their structured summaries.
package fireflies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"fireflies-dealcloud-sync/internal/common/errors"
	"fireflies-dealcloud-sync/internal/common/httpclient"
	"fireflies-dealcloud-sync/internal/common/logger"
)

const transcriptFields = `
    id
    title
    date
    duration
    participants
    summary {
      overview
      shorthand_bullet
      outline
      action_items
      keywords
    }`

type Client struct {
	apiURL     string
	apiKey     string
	httpClient *httpclient.Client
	logger     logger.Logger
}

func NewClient(apiURL, apiKey string, httpClient *httpclient.Client, log logger.Logger) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     log,
	}
}

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

func (c *Client) query(ctx context.Context, req graphqlRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewExternalServiceError("fireflies", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewExternalServiceError("fireflies",
			fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// GraphQL errors arrive with HTTP 200 and still fail the operation.
	if len(gqlResp.Errors) > 0 {
		return nil, errors.NewExternalServiceError("fireflies",
			fmt.Errorf("GraphQL errors: %s", gqlResp.Errors[0].Message))
	}

	return gqlResp.Data, nil
}

// FetchTranscripts fetches up to limit transcripts in recency order.
func (c *Client) FetchTranscripts(ctx context.Context, limit int) ([]Transcript, error) {
	c.logger.Info("Fetching transcripts from Fireflies", map[string]interface{}{
		"limit": limit,
	})

	query := fmt.Sprintf(`
        query Transcripts($limit: Int!) {
          transcripts(limit: $limit) {%s
          }
        }`, transcriptFields)

	data, err := c.query(ctx, graphqlRequest{
		Query:     query,
		Variables: map[string]interface{}{"limit": limit},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Transcripts []Transcript `json:"transcripts"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcripts: %w", err)
	}

	c.logger.Info("Retrieved transcripts from Fireflies", map[string]interface{}{
		"count": len(result.Transcripts),
	})

	return result.Transcripts, nil
}

// FetchTranscriptByID fetches a single transcript. A missing transcript is
// reported as a not-found error, distinct from transport failures.
func (c *Client) FetchTranscriptByID(ctx context.Context, transcriptID string) (*Transcript, error) {
	c.logger.Info("Fetching transcript", map[string]interface{}{
		"transcriptId": transcriptID,
	})

	query := fmt.Sprintf(`
        query Transcript($transcriptId: String!) {
          transcript(id: $transcriptId) {%s
          }
        }`, transcriptFields)

	data, err := c.query(ctx, graphqlRequest{
		Query:     query,
		Variables: map[string]interface{}{"transcriptId": transcriptID},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Transcript *Transcript `json:"transcript"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}

	if result.Transcript == nil {
		c.logger.Warn("Transcript not found", map[string]interface{}{
			"transcriptId": transcriptID,
		})
		return nil, errors.NewResourceNotFoundError("fireflies", "transcript: "+transcriptID)
	}

	c.logger.Info("Found transcript", map[string]interface{}{
		"transcriptId": transcriptID,
		"title":        result.Transcript.Title,
	})

	return result.Transcript, nil
}

// TestConnection probes the API by fetching the authenticated user.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	data, err := c.query(ctx, graphqlRequest{
		Query: `
        query User {
          user {
            email
            name
          }
        }`,
	})
	if err != nil {
		return ConnectionStatus{Status: "error", Error: err.Error()}
	}

	var result struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return ConnectionStatus{Status: "error", Error: err.Error()}
	}

	return ConnectionStatus{Status: "connected", User: result.User}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
