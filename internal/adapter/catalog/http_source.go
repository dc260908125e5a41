package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/storefront/internal/core/domain"
)

const maxCatalogBody = 8 << 20

// HTTPSource reads the product listing from the commerce platform API.
type HTTPSource struct {
	baseURL   string
	login     string
	authToken string
	client    *http.Client
}

func NewHTTPSource(baseURL, login, authToken string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		login:     login,
		authToken: authToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *HTTPSource) Products(ctx context.Context) ([]domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/products.json", nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.login != "" || s.authToken != "" {
		req.SetBasicAuth(s.login, s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBody))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog responded %d", resp.StatusCode)
	}

	products, err := domain.ParseProviderProducts(body)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return products, nil
}
