package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
)

// HTTPService implements Service against a remote CRM REST API.
type HTTPService struct {
	baseURL    string
	httpClient *http.Client
	tokenFunc  func() string
}

var _ Service = (*HTTPService)(nil)

// NewHTTPService creates a new HTTPService
func NewHTTPService(baseURL string, tokenFunc func() string) *HTTPService {
	return &HTTPService{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		tokenFunc:  tokenFunc,
	}
}

func (h *HTTPService) addAuthHeaders(req *http.Request) {
	if h.tokenFunc != nil {
		if token := h.tokenFunc(); token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}
}

func (h *HTTPService) SearchListings(ctx context.Context, criteria SearchCriteria) ([]Listing, error) {
	q := url.Values{}
	if criteria.Location != "" {
		q.Set("location", criteria.Location)
	}
	if criteria.PriceMin != nil {
		q.Set("price_min", strconv.FormatFloat(*criteria.PriceMin, 'f', -1, 64))
	}
	if criteria.PriceMax != nil {
		q.Set("price_max", strconv.FormatFloat(*criteria.PriceMax, 'f', -1, 64))
	}
	if criteria.Bedrooms != nil {
		q.Set("bedrooms", strconv.Itoa(*criteria.Bedrooms))
	}
	if criteria.Type != "" {
		q.Set("type", criteria.Type)
	}

	endpoint := h.baseURL + "/api/listings"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to create request", err)
	}
	h.addAuthHeaders(httpReq)

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var listings []Listing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to decode response", err)
	}
	return listings, nil
}

type scheduleRequest struct {
	PropertyID string `json:"property_id"`
	Date       string `json:"date"`
	ClientName string `json:"client_name"`
}

func (h *HTTPService) ScheduleViewing(ctx context.Context, propertyID, dateISO, clientName string) (*Confirmation, error) {
	data, err := json.Marshal(scheduleRequest{PropertyID: propertyID, Date: dateISO, ClientName: clientName})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/viewings", bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	h.addAuthHeaders(httpReq)

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to send request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrCodeScheduleRejected, string(bytes.TrimSpace(body)), nil)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var confirmation Confirmation
	if err := json.NewDecoder(resp.Body).Decode(&confirmation); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCRMRequest, "failed to decode response", err)
	}
	return &confirmation, nil
}
