// Package dealcloud implements the DealCloud REST client: OAuth
// client-credentials token lifecycle, rate-limit aware transport, a
// run-scoped query cache, and typed entity operations for contacts, deals,
// and interactions.
package dealcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fireflies-dealcloud-sync/internal/common/config"
	"fireflies-dealcloud-sync/internal/common/errors"
	"fireflies-dealcloud-sync/internal/common/httpclient"
	"fireflies-dealcloud-sync/internal/common/logger"
	"fireflies-dealcloud-sync/internal/common/metrics"
)

// tokenRefreshWindow is how long before expiry a cached token is refreshed.
const tokenRefreshWindow = 5 * time.Minute

// defaultRetryAfter applies when a 429 response carries no Retry-After header.
const defaultRetryAfter = 3 * time.Second

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string

	interactionEntryTypeID int
	contactEntryTypeID     int
	interactionTypeID      int

	httpClient *httpclient.Client
	logger     logger.Logger
	cache      *queryCache
	sleep      func(time.Duration)
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.DealCloudConfig, httpClient *httpclient.Client, log logger.Logger) *Client {
	return &Client{
		baseURL:                strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:               cfg.ClientID,
		clientSecret:           cfg.ClientSecret,
		interactionEntryTypeID: cfg.InteractionEntryTypeID,
		contactEntryTypeID:     cfg.ContactEntryTypeID,
		interactionTypeID:      cfg.InteractionTypeID,
		httpClient:             httpClient,
		logger:                 log,
		cache:                  newQueryCache(),
		sleep:                  time.Sleep,
		now:                    time.Now,
	}
}

// ClearCache drops all memoized query results. Called at the start of every
// sync run so results never leak across runs.
func (c *Client) ClearCache() {
	c.cache.clear()
	c.logger.Debug("DealCloud query cache cleared", nil)
}

// getAuthHeader returns a bearer Authorization value, transparently running
// the client-credentials exchange when the cached token is absent or expires
// within the refresh window. Auth failures abort the calling operation and
// are never retried automatically.
func (c *Client) getAuthHeader(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry.Add(-tokenRefreshWindow)) {
		return "Bearer " + c.accessToken, nil
	}

	c.logger.Info("Authenticating with DealCloud", map[string]interface{}{
		"baseUrl": c.baseURL,
	})

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", "data")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/rest/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.NewAuthenticationError(err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewAuthenticationError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.NewAuthenticationError(
			fmt.Sprintf("token request failed with status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", errors.NewAuthenticationError("failed to decode token response: " + err.Error())
	}
	if tokenResp.AccessToken == "" {
		return "", errors.NewAuthenticationError("no access token in response")
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(expiresIn) * time.Second)

	c.logger.Info("DealCloud authenticated", map[string]interface{}{
		"expiresIn": expiresIn,
	})

	return "Bearer " + c.accessToken, nil
}

// doReplay issues the request produced by build, replaying it after the
// advertised Retry-After delay whenever DealCloud answers 429. Replays are
// capped at the transport's retry bound so sustained rate-limiting cannot
// loop forever.
func (c *Client) doReplay(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	maxReplays := c.httpClient.MaxRetries()

	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.NewExternalServiceError("dealcloud", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		wait := httpclient.RetryAfter(resp, defaultRetryAfter)
		resp.Body.Close()
		metrics.RateLimitHits.Inc()

		if attempt >= maxReplays {
			return nil, errors.NewRateLimitError("dealcloud", wait)
		}

		c.logger.Warn("Rate limited, waiting before replay", map[string]interface{}{
			"retryAfter": wait.String(),
			"attempt":    attempt + 1,
		})
		c.sleep(wait)
	}
}

// searchRows runs a query against an entry list endpoint and decodes the
// wrapped rows. Transport failures degrade to an empty result; only auth
// failures propagate as errors.
func (c *Client) searchRows(ctx context.Context, entryList string, query interface{}, operation string, out interface{}) error {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		authHeader, err := c.getAuthHeader(ctx)
		if err != nil {
			return nil, err
		}

		endpoint := fmt.Sprintf("%s/api/rest/v4/data/entrydata/rows/%s", c.baseURL, entryList)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("wrapIntoArrays", "true")
		params.Set("query", string(queryJSON))
		req.URL.RawQuery = params.Encode()
		req.Header.Set("Authorization", authHeader)
		return req, nil
	}

	resp, err := c.doReplay(ctx, build)
	if err != nil {
		if errors.IsAuthentication(err) {
			metrics.CRMRequestsTotal.WithLabelValues(operation, "auth_error").Inc()
			return err
		}
		metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.Error("Search request failed", map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		})
		return errSearchDegraded
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.Warn("Search returned non-OK status", map[string]interface{}{
			"operation": operation,
			"status":    resp.StatusCode,
		})
		return errSearchDegraded
	}

	var envelope struct {
		Rows json.RawMessage `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.Error("Failed to decode search response", map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		})
		return errSearchDegraded
	}

	if len(envelope.Rows) > 0 {
		if err := json.Unmarshal(envelope.Rows, out); err != nil {
			metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
			return errSearchDegraded
		}
	}

	metrics.CRMRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return nil
}

// errSearchDegraded marks a read that failed after retries; call sites treat
// it as an empty result rather than aborting the transcript.
var errSearchDegraded = fmt.Errorf("search degraded to empty result")

// SearchContactsByEmail finds contacts whose email is in the given set.
// Empty input yields an empty result without a call; zero matches is success.
func (c *Client) SearchContactsByEmail(ctx context.Context, emails []string) ([]Contact, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	cacheKey := contactsCacheKey(emails)
	if cached, ok := c.cache.get(cacheKey); ok {
		metrics.CRMCacheHits.WithLabelValues("search_contacts").Inc()
		c.logger.Debug("Using cached contact search", map[string]interface{}{
			"emails": len(emails),
		})
		return cached.([]Contact), nil
	}

	c.logger.Info("Searching contacts by email", map[string]interface{}{
		"emails": len(emails),
	})

	var rows []Contact
	err := c.searchRows(ctx, "contact", map[string]interface{}{
		"Email": map[string]interface{}{"$in": emails},
	}, "search_contacts", &rows)
	if err != nil && err != errSearchDegraded {
		return nil, err
	}

	c.cache.set(cacheKey, rows)
	return rows, nil
}

// SearchDealsByName finds deals whose name contains the given string.
// Empty name yields an empty result without a call.
func (c *Client) SearchDealsByName(ctx context.Context, name string) ([]Deal, error) {
	if name == "" {
		return nil, nil
	}

	cacheKey := dealsByNameCacheKey(name)
	if cached, ok := c.cache.get(cacheKey); ok {
		metrics.CRMCacheHits.WithLabelValues("search_deals_name").Inc()
		c.logger.Debug("Using cached deal search", map[string]interface{}{
			"name": name,
		})
		return cached.([]Deal), nil
	}

	c.logger.Info("Searching deals by name", map[string]interface{}{
		"name": name,
	})

	var rows []Deal
	err := c.searchRows(ctx, "deal", map[string]interface{}{
		"DealName": map[string]interface{}{"$contains": name},
	}, "search_deals_name", &rows)
	if err != nil && err != errSearchDegraded {
		return nil, err
	}

	c.cache.set(cacheKey, rows)
	return rows, nil
}

// SearchDealsByCompany finds deals associated with a company. A zero company
// id yields an empty result without a call.
func (c *Client) SearchDealsByCompany(ctx context.Context, companyID int) ([]Deal, error) {
	if companyID == 0 {
		return nil, nil
	}

	cacheKey := dealsByCompanyCacheKey(companyID)
	if cached, ok := c.cache.get(cacheKey); ok {
		metrics.CRMCacheHits.WithLabelValues("search_deals_company").Inc()
		c.logger.Debug("Using cached deal search", map[string]interface{}{
			"companyId": companyID,
		})
		return cached.([]Deal), nil
	}

	c.logger.Info("Searching deals by company", map[string]interface{}{
		"companyId": companyID,
	})

	var rows []Deal
	err := c.searchRows(ctx, "deal", map[string]interface{}{
		"Company": companyID,
	}, "search_deals_company", &rows)
	if err != nil && err != errSearchDegraded {
		return nil, err
	}

	c.cache.set(cacheKey, rows)
	return rows, nil
}

// SearchInteractionBySubject finds an interaction by exact subject match,
// returning the first match when several exist and nil when none do.
func (c *Client) SearchInteractionBySubject(ctx context.Context, subject string) (*Interaction, error) {
	cacheKey := interactionCacheKey(subject)
	if cached, ok := c.cache.get(cacheKey); ok {
		metrics.CRMCacheHits.WithLabelValues("search_interaction").Inc()
		c.logger.Debug("Using cached interaction search", map[string]interface{}{
			"subject": subject,
		})
		return cached.(*Interaction), nil
	}

	c.logger.Info("Searching for interaction", map[string]interface{}{
		"subject": subject,
	})

	var rows []Interaction
	err := c.searchRows(ctx, fmt.Sprintf("%d", c.interactionEntryTypeID), map[string]interface{}{
		"Subject": subject,
	}, "search_interaction", &rows)
	if err != nil && err != errSearchDegraded {
		return nil, err
	}

	var found *Interaction
	if len(rows) > 0 {
		found = &rows[0]
		c.logger.Info("Found existing interaction", map[string]interface{}{
			"entryId": found.EntryID,
		})
	}

	c.cache.set(cacheKey, found)
	return found, nil
}

// writeRows posts a payload to an entry list endpoint and applies the
// -1/field-error rejection rules to the first result entry.
func (c *Client) writeRows(ctx context.Context, method string, entryTypeID int, payload interface{}, entity, operation string) (*writeResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", entity, err)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		authHeader, err := c.getAuthHeader(ctx)
		if err != nil {
			return nil, err
		}

		endpoint := fmt.Sprintf("%s/api/rest/v4/data/entrydata/rows/%d?unflatten=yes", c.baseURL, entryTypeID)
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", authHeader)
		return req, nil
	}

	resp, err := c.doReplay(ctx, build)
	if err != nil {
		metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, errors.NewExternalServiceError("dealcloud", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		metrics.CRMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, errors.NewExternalServiceError("dealcloud",
			fmt.Errorf("%s write failed with status %d: %s", entity, resp.StatusCode, truncate(string(respBody), 300)))
	}

	var results []writeResult
	if len(respBody) > 0 && respBody[0] == '[' {
		if err := json.Unmarshal(respBody, &results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s response: %w", entity, err)
		}
	} else {
		var single writeResult
		if err := json.Unmarshal(respBody, &single); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s response: %w", entity, err)
		}
		results = []writeResult{single}
	}

	if len(results) == 0 {
		metrics.CRMRequestsTotal.WithLabelValues(operation, "rejected").Inc()
		return nil, errors.NewEntityRejectedError(entity, "empty response body")
	}

	result := results[0]
	if result.EntryID == -1 || len(result.Errors) > 0 {
		details := make([]string, len(result.Errors))
		for i, fieldErr := range result.Errors {
			details[i] = fieldErr.String()
		}
		metrics.CRMRequestsTotal.WithLabelValues(operation, "rejected").Inc()
		return nil, errors.NewEntityRejectedError(entity, strings.Join(details, ", "))
	}

	metrics.CRMRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return &result, nil
}

// CreateContact creates a contact, deriving first/last name from the email's
// local part. DealCloud requires a company, so a zero companyID fails without
// a call.
func (c *Client) CreateContact(ctx context.Context, email string, companyID int) (*Contact, error) {
	if companyID == 0 {
		c.logger.Error("Cannot create contact, company is a required field", map[string]interface{}{
			"email": email,
		})
		return nil, errors.NewEntityRejectedError("contact", "company is required")
	}

	firstName, lastName := nameFromEmail(email)

	c.logger.Info("Creating contact", map[string]interface{}{
		"email":     email,
		"firstName": firstName,
		"lastName":  lastName,
		"companyId": companyID,
	})

	payload := []map[string]interface{}{{
		"Email":     email,
		"FirstName": firstName,
		"LastName":  lastName,
		"Company":   []int{companyID},
	}}

	result, err := c.writeRows(ctx, http.MethodPost, c.contactEntryTypeID, payload, "contact", "create_contact")
	if err != nil {
		return nil, err
	}

	c.logger.Info("Contact created", map[string]interface{}{
		"entryId": result.EntryID,
		"email":   email,
	})
	metrics.ContactsCreated.Inc()

	return &Contact{
		EntryID:   result.EntryID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Company:   ReferenceList{{ID: companyID}},
	}, nil
}

// CreateInteraction creates an interaction linked to the given contacts and,
// when present, a company and deals.
func (c *Client) CreateInteraction(ctx context.Context, subject, notes string, contactIDs []int, companyID int, dealIDs []int) (*Interaction, error) {
	c.logger.Info("Creating interaction", map[string]interface{}{
		"subject":   subject,
		"contacts":  len(contactIDs),
		"companyId": companyID,
		"deals":     len(dealIDs),
	})

	entry := map[string]interface{}{
		"Subject":  subject,
		"Contacts": contactIDs,
		"Notes":    notes,
		"Type":     c.interactionTypeID,
	}
	if companyID != 0 {
		entry["Companies"] = []int{companyID}
	}
	if len(dealIDs) > 0 {
		entry["Deals"] = dealIDs
	}

	result, err := c.writeRows(ctx, http.MethodPost, c.interactionEntryTypeID, []map[string]interface{}{entry}, "interaction", "create_interaction")
	if err != nil {
		return nil, err
	}

	c.logger.Info("Interaction created", map[string]interface{}{
		"entryId": result.EntryID,
		"subject": subject,
	})

	return &Interaction{EntryID: result.EntryID, Subject: subject, Notes: notes}, nil
}

// UpdateInteraction backfills an existing interaction. Unsupplied fields are
// omitted from the payload entirely, never overwritten with nulls.
func (c *Client) UpdateInteraction(ctx context.Context, entryID int, notes string, contactIDs []int, companyID int, dealIDs []int) (*Interaction, error) {
	c.logger.Info("Updating interaction", map[string]interface{}{
		"entryId": entryID,
	})

	entry := map[string]interface{}{
		"EntryId": entryID,
		"Notes":   notes,
	}
	if len(contactIDs) > 0 {
		entry["Contacts"] = contactIDs
	}
	if companyID != 0 {
		entry["Companies"] = []int{companyID}
	}
	if len(dealIDs) > 0 {
		entry["Deals"] = dealIDs
	}

	result, err := c.writeRows(ctx, http.MethodPut, c.interactionEntryTypeID, []map[string]interface{}{entry}, "interaction", "update_interaction")
	if err != nil {
		return nil, err
	}

	c.logger.Info("Interaction updated", map[string]interface{}{
		"entryId": result.EntryID,
	})

	return &Interaction{EntryID: result.EntryID, Notes: notes}, nil
}

// TestConnection succeeds iff a token can be obtained.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	if _, err := c.getAuthHeader(ctx); err != nil {
		return ConnectionStatus{Status: "error", Error: err.Error()}
	}
	return ConnectionStatus{Status: "connected", BaseURL: c.baseURL}
}

// nameFromEmail derives a display name from the email's local part, split on
// the common separators. A heuristic that collapses to identical first/last
// tokens gets the fixed "Contact" placeholder for the last name.
func nameFromEmail(email string) (string, string) {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}

	replacer := strings.NewReplacer(".", " ", "_", " ", "-", " ")
	parts := strings.Fields(replacer.Replace(local))

	firstName := "Unknown"
	lastName := "Contact"
	if len(parts) > 0 {
		firstName = capitalize(parts[0])
	}
	if len(parts) > 1 {
		lastName = capitalize(parts[len(parts)-1])
	}
	if firstName == lastName {
		lastName = "Contact"
	}

	return firstName, lastName
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
