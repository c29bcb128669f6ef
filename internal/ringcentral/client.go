package ringcentral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	pathAuthorize = "/restapi/oauth/authorize"
	pathToken     = "/restapi/oauth/token"
	pathRingOut   = "/restapi/v1.0/account/~/extension/~/ring-out"
	pathCallLog   = "/restapi/v1.0/account/~/extension/~/call-log"

	// Used when a token response omits expires_in.
	defaultAccessTTL = time.Hour
	maxErrorBody     = 4 << 10
	maxCallLogPages  = 20
)

type Config struct {
	ServerURL    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// Timeout bounds every provider round trip.
	Timeout time.Duration
}

// Client talks to the provider on behalf of one user per call: the access
// token is always passed in, never held on the client.
type Client struct {
	serverURL string
	oauth     *oauth2.Config
	http      *http.Client
	timeout   time.Duration
	clock     func() time.Time
}

func NewClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	server := strings.TrimRight(cfg.ServerURL, "/")
	return &Client{
		serverURL: server,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   server + pathAuthorize,
				TokenURL:  server + pathToken,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http:    hc,
		timeout: cfg.Timeout,
		clock:   time.Now,
	}
}

// AuthCodeURL builds the consent-screen URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode runs the authorization_code grant.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenSet, error) {
	ctx, cancel := c.oauthContext(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return TokenSet{}, fmt.Errorf("exchange code: %w", convertOAuthError(err))
	}
	return c.tokenSet(tok), nil
}

// RefreshToken runs the refresh_token grant.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenSet, error) {
	if refreshToken == "" {
		return TokenSet{}, errors.New("refresh token is empty")
	}
	ctx, cancel := c.oauthContext(ctx)
	defer cancel()

	// An empty access token forces the source to hit the token endpoint.
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenSet{}, fmt.Errorf("refresh token: %w", convertOAuthError(err))
	}
	return c.tokenSet(tok), nil
}

// RingOut places a call from the user's extension.
func (c *Client) RingOut(ctx context.Context, accessToken string, req RingOutRequest) (RingOutResult, error) {
	body, err := json.Marshal(ringOutBody{
		From:       PhoneNumberInfo{PhoneNumber: req.From},
		To:         PhoneNumberInfo{PhoneNumber: req.To},
		PlayPrompt: req.PlayPrompt,
	})
	if err != nil {
		return RingOutResult{}, err
	}

	var out RingOutResult
	if err := c.do(ctx, http.MethodPost, c.serverURL+pathRingOut, accessToken, body, &out); err != nil {
		return RingOutResult{}, fmt.Errorf("ring-out: %w", err)
	}
	return out, nil
}

// CallLog lists call-log records in [from, to], following pagination.
func (c *Client) CallLog(ctx context.Context, accessToken string, from, to time.Time) ([]CallLogRecord, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("dateFrom", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("dateTo", to.UTC().Format(time.RFC3339))
	}
	q.Set("view", "Simple")
	next := c.serverURL + pathCallLog + "?" + q.Encode()

	var records []CallLogRecord
	for page := 0; next != "" && page < maxCallLogPages; page++ {
		var p callLogPage
		if err := c.do(ctx, http.MethodGet, next, accessToken, nil, &p); err != nil {
			return nil, fmt.Errorf("call-log: %w", err)
		}
		records = append(records, p.Records...)
		next = ""
		if p.Navigation.NextPage != nil {
			next = p.Navigation.NextPage.URI
		}
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, rawURL, accessToken string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) oauthContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) tokenSet(tok *oauth2.Token) TokenSet {
	out := TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if out.Expiry.IsZero() {
		out.Expiry = c.clock().Add(defaultAccessTTL)
	}
	switch v := tok.Extra("owner_id").(type) {
	case string:
		out.OwnerID = v
	case float64:
		out.OwnerID = fmt.Sprintf("%.0f", v)
	}
	return out
}

func convertOAuthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &APIError{StatusCode: re.Response.StatusCode, Body: string(re.Body)}
	}
	return err
}
