// Package catalog looks up authoritative prices and weights from the CMS.
// Client-submitted prices are never trusted; every checkout calculation goes
// through this lookup.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cszshop/api/internal/platform/config"
)

var (
	// ErrProductNotFound is returned when a requested catalog id is absent
	// from the lookup response. Lookups are all-or-nothing.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrUnavailable is returned for transport failures and non-2xx replies.
	ErrUnavailable = errors.New("catalog: service unavailable")
)

// PriceInfo is the authoritative name, unit price, and weight for a catalog entry.
type PriceInfo struct {
	Name            string
	UnitPrice       int64
	UnitWeightGrams int64
}

// Client fetches prices from the CMS REST API in batched requests.
type Client struct {
	baseURL  string
	apiToken string
	httpc    *http.Client
}

// NewClient constructs a catalog client from configuration.
func NewClient(cfg config.CatalogConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("catalog client requires a base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  base,
		apiToken: strings.TrimSpace(cfg.APIToken),
		httpc:    &http.Client{Timeout: timeout},
	}, nil
}

type entryDocument struct {
	DocumentID string   `json:"documentId"`
	Name       string   `json:"name"`
	BasePrice  *float64 `json:"basePrice"`
	Price      *float64 `json:"price"`
	Weight     float64  `json:"weight"`
}

type listResponse struct {
	Data []entryDocument `json:"data"`
}

// PriceLookup resolves prices for product and variant ids. One request is
// issued per namespace regardless of item count. When any requested id is
// missing the whole lookup fails with ErrProductNotFound.
func (c *Client) PriceLookup(ctx context.Context, productIDs, variantIDs []string) (map[string]PriceInfo, error) {
	products := dedupe(productIDs)
	variants := dedupe(variantIDs)

	prices := make(map[string]PriceInfo, len(products)+len(variants))

	if len(products) > 0 {
		if err := c.fetchNamespace(ctx, "products", []string{"documentId", "name", "basePrice", "weight"}, products, prices); err != nil {
			return nil, err
		}
	}
	if len(variants) > 0 {
		if err := c.fetchNamespace(ctx, "product-variants", []string{"documentId", "name", "price", "weight"}, variants, prices); err != nil {
			return nil, err
		}
	}

	for _, id := range products {
		if _, ok := prices[id]; !ok {
			return nil, fmt.Errorf("%w: product %s", ErrProductNotFound, id)
		}
	}
	for _, id := range variants {
		if _, ok := prices[id]; !ok {
			return nil, fmt.Errorf("%w: variant %s", ErrProductNotFound, id)
		}
	}

	return prices, nil
}

func (c *Client) fetchNamespace(ctx context.Context, namespace string, fields []string, ids []string, out map[string]PriceInfo) error {
	query := url.Values{}
	for i, id := range ids {
		query.Set(fmt.Sprintf("filters[documentId][$in][%d]", i), id)
	}
	for i, field := range fields {
		query.Set(fmt.Sprintf("fields[%d]", i), field)
	}

	endpoint := fmt.Sprintf("%s/api/%s?%s", c.baseURL, namespace, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("catalog: build request for %s: %w", namespace, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, namespace, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, namespace, resp.StatusCode)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrUnavailable, namespace, err)
	}

	for _, entry := range payload.Data {
		if entry.DocumentID == "" {
			continue
		}
		price := entry.Price
		if price == nil {
			price = entry.BasePrice
		}
		if price == nil {
			continue
		}
		out[entry.DocumentID] = PriceInfo{
			Name:            entry.Name,
			UnitPrice:       int64(math.Round(*price)),
			UnitWeightGrams: gramsFromKilograms(entry.Weight),
		}
	}
	return nil
}

// gramsFromKilograms converts the CMS decimal kilogram weights into grams.
func gramsFromKilograms(kg float64) int64 {
	if kg <= 0 {
		return 0
	}
	return int64(math.Round(kg * 1000))
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return unique
}
