package notify

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBarkServer is the public Bark relay.
const DefaultBarkServer = "https://api.day.app"

// BarkProvider pushes alerts to an iOS device through a Bark server.
type BarkProvider struct {
	server string
	token  string
	client *http.Client
}

// NewBarkProvider creates a provider for the given device token.
func NewBarkProvider(server, token string, client *http.Client) *BarkProvider {
	if server == "" {
		server = DefaultBarkServer
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &BarkProvider{server: strings.TrimRight(server, "/"), token: token, client: client}
}

// Name returns the provider identifier.
func (p *BarkProvider) Name() string { return "bark" }

// Send issues GET <server>/<token>/<subject>/<body>.
func (p *BarkProvider) Send(ctx context.Context, msg Message) error {
	u := p.server + "/" + url.PathEscape(p.token) + "/" +
		url.PathEscape(msg.Subject) + "/" + url.PathEscape(msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return errors.New("bark: unexpected status " + strconv.Itoa(resp.StatusCode))
	}
	return nil
}
