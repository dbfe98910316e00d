package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/internal/repository/roster"
)

var _ roster.Source = (*StudentClient)(nil)

type StudentClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewStudentClient(baseURL, token string, timeout time.Duration) *StudentClient {
	return &StudentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *StudentClient) Students(ctx context.Context, viewer domain.Viewer) ([]domain.Student, error) {
	endpoint := fmt.Sprintf("%s/students/%s/%s", c.baseURL, url.PathEscape(viewer.UserID), url.PathEscape(string(viewer.Role)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch roster: unexpected status %d", resp.StatusCode)
	}

	var students []domain.Student
	if err := json.NewDecoder(resp.Body).Decode(&students); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return students, nil
}
