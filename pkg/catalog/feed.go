package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxFeedResponseSize caps how much of a feed response is read.
const maxFeedResponseSize = 10 * 1024 * 1024

// FeedSettings is the connection data for the external catalog feed.
type FeedSettings struct {
	BaseURL string
	Token   string
}

// FeedError is a non-2xx answer from the external feed.
type FeedError struct {
	StatusCode int
	Message    string
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("catalog feed: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is matches ErrFeedUnavailable.
func (e *FeedError) Is(target error) bool {
	return target == ErrFeedUnavailable
}

// FeedClient reads products from the external catalog feed over HTTP.
type FeedClient struct {
	settings   func() FeedSettings
	httpClient *http.Client
}

// NewFeedClient creates a feed client. settings is read on every request.
func NewFeedClient(settings func() FeedSettings, timeout time.Duration) *FeedClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &FeedClient{
		settings:   settings,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type feedProduct struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	SKU           string   `json:"sku"`
	Stock         int      `json:"stock"`
	Price         string   `json:"price"`
	StockLocation string   `json:"stock_location"`
	Images        []string `json:"images"`
	WeightKg      float64  `json:"weight_kg"`
	HeightCm      float64  `json:"height_cm"`
	WidthCm       float64  `json:"width_cm"`
	LengthCm      float64  `json:"length_cm"`
}

type feedPage struct {
	Data []feedProduct `json:"data"`
}

// GetProduct fetches GET {base}/products/{id}.
func (c *FeedClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	var fp feedProduct
	if err := c.get(ctx, "/products/"+url.PathEscape(id), nil, &fp); err != nil {
		return nil, err
	}
	p, err := fp.toProduct()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts fetches GET {base}/products?search=&page=&limit=.
func (c *FeedClient) ListProducts(ctx context.Context, filter Filter) ([]Product, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	q.Set("page", strconv.Itoa(filter.Page))
	q.Set("limit", strconv.Itoa(filter.PageSize))

	var page feedPage
	if err := c.get(ctx, "/products", q, &page); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(page.Data))
	for _, fp := range page.Data {
		p, err := fp.toProduct()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (c *FeedClient) get(ctx context.Context, path string, query url.Values, out any) error {
	settings := c.settings()

	endpoint := strings.TrimRight(settings.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("catalog feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+settings.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrFeedUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrProductNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FeedError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrFeedUnavailable, err)
	}
	return nil
}

func (fp feedProduct) toProduct() (Product, error) {
	price, err := parsePrice(fp.Price)
	if err != nil {
		return Product{}, fmt.Errorf("%w: product %s: %w", ErrFeedUnavailable, fp.ID, err)
	}
	images := fp.Images
	if images == nil {
		images = []string{}
	}
	return Product{
		ID:            fp.ID,
		Name:          fp.Name,
		SKU:           fp.SKU,
		Stock:         fp.Stock,
		Price:         price,
		StockLocation: fp.StockLocation,
		Images:        images,
		WeightKg:      fp.WeightKg,
		HeightCm:      fp.HeightCm,
		WidthCm:       fp.WidthCm,
		LengthCm:      fp.LengthCm,
	}, nil
}
