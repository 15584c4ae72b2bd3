package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apri1one/predict-arb-sub004/internal/positions"
	"github.com/apri1one/predict-arb-sub004/pkg/healthprobe"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTasks struct {
	submitted *types.Task
	submitErr error
	cancelErr error
	tasks     map[string]*types.Task
	cancelled []string
}

func (f *fakeTasks) Submit(task *types.Task) (*types.Task, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	task.ID = "t-new"
	task.Status = types.TaskQueued
	f.submitted = task
	return task, nil
}

func (f *fakeTasks) Cancel(taskID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func (f *fakeTasks) Get(taskID string) (*types.Task, bool) {
	t, ok := f.tasks[taskID]
	return t, ok
}

func (f *fakeTasks) List() []*types.Task {
	out := make([]*types.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

type fakeQuotes struct {
	quotes []positions.CloseQuote
}

func (f *fakeQuotes) CloseQuotes() []positions.CloseQuote { return f.quotes }

type fakeBooks struct {
	books map[string]*types.NormalizedOrderBook
}

func (f *fakeBooks) Get(venue types.Venue, assetID string) (*types.NormalizedOrderBook, bool) {
	b, ok := f.books[string(venue)+"/"+assetID]
	return b, ok
}

type fakeMappings struct {
	mapping *types.MarketMapping
}

func (f *fakeMappings) MappingFor(marketID string) (*types.MarketMapping, bool) {
	if f.mapping == nil || f.mapping.PredictMarketID != marketID {
		return nil, false
	}
	return f.mapping, true
}

func newTestServer(t *testing.T, tasks *fakeTasks, quotes *fakeQuotes, books *fakeBooks, mappings *fakeMappings, token string) *httptest.Server {
	t.Helper()

	srv := New(&Config{
		Port:          "0",
		AuthToken:     token,
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
		Tasks:         tasks,
		CloseQuotes:   quotes,
		Books:         books,
		Mappings:      mappings,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func apiTask(id, marketID string, status types.TaskStatus) *types.Task {
	return &types.Task{
		ID:       id,
		Kind:     types.TaskBuy,
		Strategy: types.StrategyTaker,
		Mapping: types.MarketMapping{
			PredictMarketID:       marketID,
			PolymarketConditionID: "c1",
			PredictYesTokenID:     marketID + "-yes",
			PredictNoTokenID:      marketID + "-no",
			PolymarketYesTokenID:  "c1-y",
			PolymarketNoTokenID:   "c1-n",
		},
		ArbSide:  types.OutcomeYes,
		Quantity: decimal.RequireFromString("10"),
		Status:   status,
	}
}

func TestBearerGuard(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]*types.Task{}}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "secret")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/tasks", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks", "wrong", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks", "secret", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Probes stay open without the token.
	resp = doRequest(t, http.MethodGet, ts.URL+"/health", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateTask(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]*types.Task{}}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	body, err := json.Marshal(apiTask("", "m1", ""))
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/tasks", "", body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created types.Task
	decodeBody(t, resp, &created)
	assert.Equal(t, "t-new", created.ID)
	assert.Equal(t, types.TaskQueued, created.Status)
	require.NotNil(t, tasks.submitted)
	assert.Equal(t, "m1", tasks.submitted.Mapping.PredictMarketID)
}

func TestCreateTaskMarketBusy(t *testing.T) {
	tasks := &fakeTasks{
		tasks:     map[string]*types.Task{},
		submitErr: fmt.Errorf("market m1 held by task t1: %w", types.ErrMarketBusy),
	}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	body, _ := json.Marshal(apiTask("", "m1", ""))
	resp := doRequest(t, http.MethodPost, ts.URL+"/api/tasks", "", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var errResp ErrorResponse
	decodeBody(t, resp, &errResp)
	assert.Contains(t, errResp.Error, "MARKET_BUSY")
}

func TestCreateTaskValidationError(t *testing.T) {
	tasks := &fakeTasks{
		tasks:     map[string]*types.Task{},
		submitErr: &types.ValidationError{Field: "quantity", Reason: "must be positive"},
	}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	body, _ := json.Marshal(apiTask("", "m1", ""))
	resp := doRequest(t, http.MethodPost, ts.URL+"/api/tasks", "", body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTaskBadBody(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]*types.Task{}}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/tasks", "", []byte("{not json"))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTask(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]*types.Task{
		"t1": apiTask("t1", "m1", types.TaskRunning),
	}}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/tasks/t1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Task
	decodeBody(t, resp, &got)
	assert.Equal(t, "t1", got.ID)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks/missing", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelTask(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]*types.Task{
		"t1": apiTask("t1", "m1", types.TaskRunning),
	}}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	resp := doRequest(t, http.MethodDelete, ts.URL+"/api/tasks/t1", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"t1"}, tasks.cancelled)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/tasks/missing", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelTerminalTaskConflicts(t *testing.T) {
	tasks := &fakeTasks{
		tasks:     map[string]*types.Task{"t1": apiTask("t1", "m1", types.TaskCompleted)},
		cancelErr: fmt.Errorf("task t1 already terminal"),
	}
	ts := newTestServer(t, tasks, &fakeQuotes{}, nil, nil, "")

	resp := doRequest(t, http.MethodDelete, ts.URL+"/api/tasks/t1", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCloseOpportunities(t *testing.T) {
	quotes := &fakeQuotes{quotes: []positions.CloseQuote{
		{PredictAsk: decimal.RequireFromString("0.55")},
	}}
	ts := newTestServer(t, &fakeTasks{tasks: map[string]*types.Task{}}, quotes, nil, nil, "")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/close-opportunities", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got []positions.CloseQuote
	decodeBody(t, resp, &got)
	require.Len(t, got, 1)
	assert.True(t, got[0].PredictAsk.Equal(decimal.RequireFromString("0.55")))
}

func TestOrderbookEndpoint(t *testing.T) {
	mapping := apiTask("", "m1", "").Mapping
	books := &fakeBooks{books: map[string]*types.NormalizedOrderBook{
		string(types.VenuePredict) + "/m1-yes": {
			Venue:   types.VenuePredict,
			AssetID: "m1-yes",
			Bids:    []types.BookLevel{{Price: decimal.RequireFromString("0.54"), Size: decimal.RequireFromString("100")}},
			Asks:    []types.BookLevel{{Price: decimal.RequireFromString("0.56"), Size: decimal.RequireFromString("50")}},
		},
	}}
	ts := newTestServer(t, &fakeTasks{tasks: map[string]*types.Task{}}, &fakeQuotes{}, books, &fakeMappings{mapping: &mapping}, "")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/orderbook?market=m1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got OrderbookResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, "m1", got.MarketID)
	require.Len(t, got.Books, 1)
	assert.Equal(t, "m1-yes", got.Books[0].TokenID)
	assert.True(t, got.Books[0].BestBidPrice.Equal(decimal.RequireFromString("0.54")))

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/orderbook?market=unknown", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/orderbook", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
