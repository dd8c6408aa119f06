package sellercloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// defaultTokenLifetime applies when the token response carries no expiry.
const defaultTokenLifetime = 50 * time.Minute

// passwordTokenSource exchanges account credentials for a bearer token.
type passwordTokenSource struct {
	ctx      context.Context
	url      string
	username string
	password string
	http     *http.Client
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(map[string]string{"username": s.username, "password": s.password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve access token from sellercloud: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not retrieve access token from sellercloud: status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("could not decode sellercloud token: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("sellercloud token response has no access_token")
	}

	lifetime := defaultTokenLifetime
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn)*time.Second - time.Minute
	}
	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(lifetime),
	}, nil
}
