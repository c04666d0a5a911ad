package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"bindery-orders/internal/domain"

	"golang.org/x/sync/singleflight"
)

type ProductClient struct {
	baseURL    string
	httpClient *http.Client
	group      singleflight.Group
}

func NewProductClient(baseURL string, timeout time.Duration) *ProductClient {
	return &ProductClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetByID always asks the catalog service; concurrent lookups of one id share a request.
func (c *ProductClient) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	v, err, _ := c.group.Do(id, func() (any, error) {
		return c.fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*domain.Product)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (c *ProductClient) fetch(ctx context.Context, id string) (*domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product service returned status %d", resp.StatusCode)
	}

	var p domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}
