package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServiceSearchListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/listings", r.URL.Path)
		assert.Equal(t, "Antwerp", r.URL.Query().Get("location"))
		assert.Equal(t, "2", r.URL.Query().Get("bedrooms"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]Listing{{ID: "EB-1003", Location: "Antwerp", Bedrooms: 2}})
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, func() string { return "tok" })
	got, err := svc.SearchListings(context.Background(), SearchCriteria{Location: "Antwerp", Bedrooms: ptr(2)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EB-1003", got[0].ID)
}

func TestHTTPServiceScheduleViewing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.PropertyID == "taken" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte("slot already booked\n"))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Confirmation{ConfirmationID: "c-1", PropertyID: req.PropertyID, ClientName: req.ClientName})
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, nil)
	conf, err := svc.ScheduleViewing(context.Background(), "EB-1001", "2026-02-12", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "c-1", conf.ConfirmationID)
	assert.Equal(t, "Ann", conf.ClientName)

	_, err = svc.ScheduleViewing(context.Background(), "taken", "2026-02-12", "Ann")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeScheduleRejected, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "slot already booked")
}

func TestHTTPServiceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPService(srv.URL, nil).SearchListings(context.Background(), SearchCriteria{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCRMRequest, apperrors.CodeOf(err))
}
