// Package zerion reads wallet portfolio data from the Zerion API.
package zerion

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/httpx"
	"github.com/hyphalabs/evm-agent/internal/model"
	"github.com/hyphalabs/evm-agent/internal/registry"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, agenterr.New(agenterr.CodeConfig, "zerion requires an api key")
	}
	return &Client{http: httpClient, baseURL: registry.ZerionBaseURL, apiKey: apiKey}, nil
}

// WithBaseURL overrides the API host, used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type positionsResponse struct {
	Data []struct {
		Attributes struct {
			Value    *float64 `json:"value"`
			Quantity struct {
				Numeric string `json:"numeric"`
			} `json:"quantity"`
			FungibleInfo struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"fungible_info"`
		} `json:"attributes"`
		Relationships struct {
			Chain struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"chain"`
		} `json:"relationships"`
	} `json:"data"`
}

// Positions fetches the wallet's fungible positions across chains.
func (c *Client) Positions(ctx context.Context, address common.Address) (model.Portfolio, error) {
	vals := url.Values{}
	vals.Set("filter[positions]", "only_simple")
	vals.Set("currency", "usd")
	vals.Set("sort", "value")

	reqURL := fmt.Sprintf("%s/wallets/%s/positions/?%s", c.baseURL, strings.ToLower(address.Hex()), vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Portfolio{}, agenterr.Wrap(agenterr.CodeInternal, "build zerion request", err)
	}
	hReq.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey+":")))

	var resp positionsResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return model.Portfolio{}, err
	}

	portfolio := model.Portfolio{
		Address:   address.Hex(),
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, item := range resp.Data {
		position := model.PortfolioPosition{
			Symbol:   item.Attributes.FungibleInfo.Symbol,
			Name:     item.Attributes.FungibleInfo.Name,
			Chain:    item.Relationships.Chain.Data.ID,
			Quantity: item.Attributes.Quantity.Numeric,
		}
		if item.Attributes.Value != nil {
			position.ValueUSD = *item.Attributes.Value
			portfolio.TotalUSD += *item.Attributes.Value
		}
		portfolio.Positions = append(portfolio.Positions, position)
	}
	return portfolio, nil
}
