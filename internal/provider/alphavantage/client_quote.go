package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// API-level failure conditions. Alpha Vantage reports throttling and request
// rejection inside a 200 response body, so the client surfaces them as typed
// errors for the adapter to classify.
var (
	// ErrThrottled means the API signaled rate limiting, either via HTTP 429
	// or via a "Note"/"Information" body on the free tier.
	ErrThrottled = errors.New("alphavantage: throttled")
	// ErrUnauthorized means the API rejected the credential.
	ErrUnauthorized = errors.New("alphavantage: unauthorized")
	// ErrRejected means the API refused the request ("Error Message" body).
	ErrRejected = errors.New("alphavantage: request rejected")
)

// GlobalQuote is the GLOBAL_QUOTE payload. All numeric fields arrive as
// strings.
type GlobalQuote struct {
	Symbol           string `json:"01. symbol"`
	Open             string `json:"02. open"`
	High             string `json:"03. high"`
	Low              string `json:"04. low"`
	Price            string `json:"05. price"`
	Volume           string `json:"06. volume"`
	LatestTradingDay string `json:"07. latest trading day"`
	PreviousClose    string `json:"08. previous close"`
	Change           string `json:"09. change"`
	ChangePercent    string `json:"10. change percent"`
}

type globalQuoteResponse struct {
	GlobalQuote  *GlobalQuote `json:"Global Quote"`
	Note         string       `json:"Note"`
	Information  string       `json:"Information"`
	ErrorMessage string       `json:"Error Message"`
}

// SearchMatch is one SYMBOL_SEARCH hit.
type SearchMatch struct {
	Symbol     string `json:"1. symbol"`
	Name       string `json:"2. name"`
	Type       string `json:"3. type"`
	Region     string `json:"4. region"`
	Currency   string `json:"8. currency"`
	MatchScore string `json:"9. matchScore"`
}

type symbolSearchResponse struct {
	BestMatches  []SearchMatch `json:"bestMatches"`
	Note         string        `json:"Note"`
	Information  string        `json:"Information"`
	ErrorMessage string        `json:"Error Message"`
}

// GetGlobalQuote retrieves the current quote for one symbol. A nil result
// with a nil error means the API knows nothing about the symbol.
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	var resp globalQuoteResponse
	if err := c.get(ctx, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
	}, &resp); err != nil {
		return nil, err
	}
	if err := apiError(resp.Note, resp.Information, resp.ErrorMessage); err != nil {
		return nil, err
	}
	if resp.GlobalQuote == nil || resp.GlobalQuote.Symbol == "" {
		// Unknown symbols come back as {"Global Quote": {}}.
		return nil, nil
	}
	return resp.GlobalQuote, nil
}

// SymbolSearch retrieves symbol matches for a free-text query.
func (c *Client) SymbolSearch(ctx context.Context, keywords string) ([]SearchMatch, error) {
	var resp symbolSearchResponse
	if err := c.get(ctx, map[string]string{
		"function": "SYMBOL_SEARCH",
		"keywords": keywords,
	}, &resp); err != nil {
		return nil, err
	}
	if err := apiError(resp.Note, resp.Information, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return resp.BestMatches, nil
}

func (c *Client) get(ctx context.Context, params map[string]string, out any) error {
	query := maps.Clone(c.query)
	for k, v := range params {
		query.Set(k, v)
	}

	url := fmt.Sprintf("%s/query?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func apiError(note, information, errorMessage string) error {
	if strings.TrimSpace(note) != "" || strings.TrimSpace(information) != "" {
		return ErrThrottled
	}
	if msg := strings.TrimSpace(errorMessage); msg != "" {
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return nil
}
