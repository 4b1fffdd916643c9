package studio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/mid"
)

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func newServer(t *testing.T, limit mid.Middleware) (*harness, http.Handler) {
	t.Helper()
	h := newHarness(t, fakeAnalyzer{v: impala}, &fakeGen{})
	mux := http.NewServeMux()
	h.svc.Routes(mux, limit)
	return h, mid.Chain(mux, mid.Identity())
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(mid.UserHeader, vendor)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHTTPFlow(t *testing.T) {
	h, srv := newServer(t, nil)

	body, err := json.Marshal(StartRequest{Photo: photo(t)})
	require.NoError(t, err)
	rec := do(t, srv, http.MethodPost, "/api/cars", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var started Started
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	assert.Equal(t, domain.CategoryLowrider, started.Category)
	h.wait(t)
	carPath := "/api/cars/" + started.Car.ID

	rec = do(t, srv, http.MethodPost, carPath+"/styles/more", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.wait(t)

	rec = do(t, srv, http.MethodPost, carPath+"/styles", `{"styles":["`+started.Queued[0]+`"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.wait(t)

	rec = do(t, srv, http.MethodPut, carPath+"/vehicle", `{"year":"1964","make":"Chevrolet","model":"Impala"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, carPath+"/mockups", `{"style_id":"`+started.Queued[0]+`","product":"tee"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, carPath+"/orders", `{"style_id":"`+started.Queued[0]+`","product":"tee","quantity":1,"price_cents":3000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ev domain.EventSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ev))
	require.Len(t, ev.Cars, 1)
	assert.Equal(t, "1964", ev.Cars[0].Vehicle.Year)
	assert.Len(t, ev.Cars[0].Mockups, 1)
	assert.Len(t, ev.Cars[0].Orders, 1)
}

func TestHTTPErrors(t *testing.T) {
	h, srv := newServer(t, nil)
	started, err := h.svc.StartCar(context.Background(), vendor, photo(t))
	require.NoError(t, err)
	carPath := "/api/cars/" + started.Car.ID
	h.wait(t)

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad json", http.MethodPost, "/api/cars", `{`, http.StatusBadRequest},
		{"no photo", http.MethodPost, "/api/cars", `{}`, http.StatusBadRequest},
		{"unknown car", http.MethodPost, "/api/cars/nope/styles/more", "", http.StatusNotFound},
		{"unknown style", http.MethodPost, carPath + "/styles", `{"styles":["velvet"]}`, http.StatusBadRequest},
		{"empty selection", http.MethodPost, carPath + "/styles", `{"styles":[]}`, http.StatusBadRequest},
		{"bad year", http.MethodPut, carPath + "/vehicle", `{"year":"70"}`, http.StatusBadRequest},
		{"unknown mockup style", http.MethodPost, carPath + "/mockups", `{"style_id":"` + started.Queued[0] + `x","product":"tee"}`, http.StatusBadRequest},
		{"bad order", http.MethodPost, carPath + "/orders", `{"style_id":"anime","product":"tee"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHTTPConflict(t *testing.T) {
	gen := &fakeGen{gate: make(chan struct{})}
	h := newHarness(t, fakeAnalyzer{v: impala}, gen)
	mux := http.NewServeMux()
	h.svc.Routes(mux, nil)
	srv := mid.Chain(mux, mid.Identity())

	started, err := h.svc.StartCar(context.Background(), vendor, photo(t))
	require.NoError(t, err)
	carPath := "/api/cars/" + started.Car.ID

	rec := do(t, srv, http.MethodPost, carPath+"/styles", `{"styles":["`+started.Queued[0]+`"]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, srv, http.MethodPost, carPath+"/mockups", `{"style_id":"`+started.Queued[0]+`","product":"tee"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(gen.gate)
	h.wait(t)
}

func TestHTTPRateLimitOnlyGuardsGeneration(t *testing.T) {
	_, srv := newServer(t, mid.RateLimit(denyAll{}))

	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodPost, "/api/cars", `{"photo":"x"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/session", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/health", "").Code)
}

func TestHTTPRank(t *testing.T) {
	_, srv := newServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/styles/rank?year=1995&make=Nissan&model=Skyline", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out RankResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, domain.CategoryJDM, out.Category)
	assert.Len(t, out.Styles, 12)
}

func TestHTTPRankFreeText(t *testing.T) {
	_, srv := newServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/styles/rank?q=%2764+chevy+impala", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out RankResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, domain.CategoryLowrider, out.Category)

	rec = do(t, srv, http.MethodGet, "/api/styles/rank?q=flying+carpet", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
