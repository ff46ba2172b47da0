package auction_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/loadauction/go/clients"
	"github.com/mcdev12/loadauction/go/internal/auction/gateway"
	"github.com/mcdev12/loadauction/go/internal/auction/room"
)

var ErrLoadNotFound = errors.New("no auction for load")

// AuctionClient reads room state from a running gateway over HTTP
type AuctionClient struct {
	*clients.BaseClient
}

func NewAuctionClient(baseURL string) *AuctionClient {
	base := clients.NewBaseClient(baseURL)
	base.SetHeader("Accept", "application/json")
	return &AuctionClient{BaseClient: base}
}

// LoadState returns the current state of the auction for loadID
func (c *AuctionClient) LoadState(ctx context.Context, loadID string) (*room.State, error) {
	body, err := c.Get(ctx, fmt.Sprintf(loadStateEndpoint, url.PathEscape(loadID)))
	if err != nil {
		var statusErr *clients.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrLoadNotFound, loadID)
		}
		return nil, fmt.Errorf("get load state: %w", err)
	}

	var state room.State
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode load state: %w", err)
	}
	return &state, nil
}

// Stats returns connection and room counts
func (c *AuctionClient) Stats(ctx context.Context) (*gateway.ConnectionStats, error) {
	body, err := c.Get(ctx, statsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	var stats gateway.ConnectionStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}
