package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ukydev/carlink/internal/models"
)

// apiClient talks to the marketplace API as a single user.
type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is a non-2xx response from the API.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

func statusOf(err error) int {
	var e *apiError
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &apiError{Status: resp.StatusCode, Message: failure.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// signup registers the user, or logs in when the account already exists,
// and keeps the returned token for later calls.
func (c *apiClient) signup(ctx context.Context, name, email, password string) (*models.User, error) {
	var out struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/signup", models.SignupRequest{Name: name, Email: email, Password: password}, &out)
	if statusOf(err) == http.StatusBadRequest {
		err = c.do(ctx, http.MethodPost, "/auth/login", models.LoginRequest{Email: email, Password: password}, &out)
	}
	if err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out.User, nil
}

func (c *apiClient) createCar(ctx context.Context, in models.CarInput) (*models.Car, error) {
	var out struct {
		Car models.Car `json:"car"`
	}
	if err := c.do(ctx, http.MethodPost, "/cars", in, &out); err != nil {
		return nil, err
	}
	return &out.Car, nil
}

func (c *apiClient) listCars(ctx context.Context, q url.Values) ([]models.Car, error) {
	var out struct {
		Cars []models.Car `json:"cars"`
	}
	path := "/cars"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Cars, nil
}

func (c *apiClient) requestCar(ctx context.Context, carID, message string) (*models.BuyRequest, error) {
	var out struct {
		BuyRequest models.BuyRequest `json:"buyRequest"`
	}
	if err := c.do(ctx, http.MethodPost, "/buy-requests", models.CreateBuyRequest{CarID: carID, Message: message}, &out); err != nil {
		return nil, err
	}
	return &out.BuyRequest, nil
}

func (c *apiClient) pendingForSeller(ctx context.Context) ([]models.BuyRequest, error) {
	var out struct {
		Requests []models.BuyRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/buy-requests/seller?status=pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

func (c *apiClient) respond(ctx context.Context, requestID string, accept bool) error {
	action := "decline"
	if accept {
		action = "accept"
	}
	return c.do(ctx, http.MethodPut, "/buy-requests/"+requestID+"/"+action, nil, nil)
}
