package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"papertrade/alerts"
	"papertrade/assistant"
	"papertrade/auth"
	"papertrade/config"
	"papertrade/db"
	"papertrade/hub"
	"papertrade/market"
	"papertrade/metrics"
	"papertrade/model"
	"papertrade/protocol"
	"papertrade/trademanager"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type testEnv struct {
	srv    *httptest.Server
	store  *db.MemoryStore
	issuer *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New()
	store := db.NewMemoryStore()
	mkt := market.New(market.DefaultQuotes())
	issuer := auth.NewIssuer("test-secret", time.Hour)
	h := hub.New(logger, m, hub.DefaultOptions())
	trades := trademanager.NewTradeManager(store, logger)

	a := New(Deps{
		Store:     store,
		Market:    mkt,
		Issuer:    issuer,
		Trades:    trades,
		Alerts:    alerts.NewService(store, h, logger, m),
		Assistant: assistant.New(mkt, trades, store, logger),
		Feed:      h,
		Metrics:   m,
		Logger:    logger,
		Auth: config.AuthConfig{
			MinPasswordLength: 6,
			StartingBalance:   100000,
		},
		HistoryRand: market.NewRand(7),
		Clock:       fixedClock{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	})

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
	})
	return &testEnv{srv: srv, store: store, issuer: issuer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	code, body := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"name": "Test User", "email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var res sessionResponse
	require.NoError(t, json.Unmarshal(body, &res))
	return res.Token
}

func errorOf(t *testing.T, body []byte) string {
	t.Helper()
	var res map[string]string
	require.NoError(t, json.Unmarshal(body, &res), string(body))
	return res["error"]
}

func TestHealthAndNotFound(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"status":"ok"`)
	assert.Contains(t, string(body), `"timestamp":"2024-05-01T00:00:00Z"`)

	code, body = e.do(t, "GET", "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Route not found", errorOf(t, body))

	code, _ = e.do(t, "GET", "/", "", nil)
	assert.Equal(t, http.StatusNotFound, code, "plain GET / is not an upgrade")

	code, body = e.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "papertrade_http_requests_total")
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, code)
	var reg sessionResponse
	require.NoError(t, json.Unmarshal(body, &reg))
	assert.Equal(t, "Account created successfully", reg.Message)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, 100000.0, reg.User.Balance)
	assert.NotEmpty(t, reg.Token)
	assert.NotContains(t, string(body), "password")

	code, body = e.do(t, "POST", "/api/auth/signup", "", map[string]string{
		"fullName": "Ada Again", "email": "ada@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email already registered", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Password must be at least 6 characters", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/auth/register", "", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "All fields are required", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong!"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid credentials", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	var login sessionResponse
	require.NoError(t, json.Unmarshal(body, &login))
	assert.Equal(t, "Login successful", login.Message)

	code, body = e.do(t, "GET", "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var me model.Profile
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, reg.User, me)
}

func TestRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.do(t, "GET", "/api/stocks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "No authentication token provided", errorOf(t, body))

	code, body = e.do(t, "GET", "/api/stocks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid authentication token", errorOf(t, body))

	ghost, err := e.issuer.Issue(uuid.NewString())
	require.NoError(t, err)
	code, body = e.do(t, "GET", "/api/stocks", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "User not found", errorOf(t, body))
}

func TestStocks(t *testing.T) {
	e := newTestEnv(t)
	token := e.register(t, "s@example.com")

	code, body := e.do(t, "GET", "/api/stocks", token, nil)
	require.Equal(t, http.StatusOK, code)
	var quotes []model.Quote
	require.NoError(t, json.Unmarshal(body, &quotes))
	assert.Len(t, quotes, 8)
	assert.Equal(t, "AAPL", quotes[0].Symbol)

	code, body = e.do(t, "GET", "/api/stocks/search", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Search query required", errorOf(t, body))

	code, body = e.do(t, "GET", "/api/stocks/search?q=zzz", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	code, body = e.do(t, "GET", "/api/stocks/tsla", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"symbol":"TSLA"`)

	code, body = e.do(t, "GET", "/api/stocks/NOPE", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Stock not found", errorOf(t, body))

	code, body = e.do(t, "GET", "/api/stocks/AAPL/history?days=5", token, nil)
	require.Equal(t, http.StatusOK, code)
	var points []market.HistoryPoint
	require.NoError(t, json.Unmarshal(body, &points))
	require.Len(t, points, 6)
	assert.Equal(t, "2024-05-01", points[5].Date)

	code, _ = e.do(t, "GET", "/api/stocks/NOPE/history", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPortfolioFlow(t *testing.T) {
	e := newTestEnv(t)
	token := e.register(t, "p@example.com")

	code, body := e.do(t, "POST", "/api/portfolio/buy", token, map[string]interface{}{"symbol": "AAPL", "name": "Apple Inc."})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "All fields are required", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/portfolio/buy", token, map[string]interface{}{"symbol": "AAPL", "name": "Apple Inc.", "shares": -1, "price": 10})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Shares must be positive", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/portfolio/buy", token, map[string]interface{}{"symbol": "AAPL", "name": "Apple Inc.", "shares": 1000, "price": 178.45})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Insufficient balance", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/portfolio/buy", token, map[string]interface{}{"symbol": "AAPL", "name": "Apple Inc.", "shares": 10, "price": 100})
	require.Equal(t, http.StatusOK, code, string(body))
	var buy struct {
		Message    string        `json:"message"`
		Holding    model.Holding `json:"holding"`
		NewBalance float64       `json:"newBalance"`
	}
	require.NoError(t, json.Unmarshal(body, &buy))
	assert.Equal(t, "Purchase successful", buy.Message)
	assert.Equal(t, 99000.0, buy.NewBalance)
	assert.Equal(t, 10.0, buy.Holding.Shares)

	code, body = e.do(t, "POST", "/api/portfolio/sell", token, map[string]interface{}{"symbol": "MSFT", "shares": 1, "price": 100})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Stock not in portfolio", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/portfolio/sell", token, map[string]interface{}{"symbol": "AAPL", "shares": 11, "price": 100})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Insufficient shares", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/portfolio/sell", token, map[string]interface{}{"symbol": "AAPL", "shares": 5, "price": 110})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Sale successful","revenue":550,"newBalance":99550}`, string(body))

	code, body = e.do(t, "GET", "/api/portfolio/summary", token, nil)
	require.Equal(t, http.StatusOK, code)
	var sum trademanager.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	require.Len(t, sum.Holdings, 1)
	assert.Equal(t, 178.45, sum.Holdings[0].CurrentPrice)
	assert.Equal(t, "892.25", sum.Summary.TotalValue)
	assert.Equal(t, "500.00", sum.Summary.TotalInvested)
	assert.Equal(t, "99550.00", sum.Summary.Cash)

	code, body = e.do(t, "GET", "/api/portfolio", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"symbol":"AAPL"`)
}

func TestWatchlistFlow(t *testing.T) {
	e := newTestEnv(t)
	token := e.register(t, "w@example.com")

	code, body := e.do(t, "POST", "/api/watchlist", token, map[string]string{"symbol": "TSLA"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Symbol and name are required", errorOf(t, body))

	code, _ = e.do(t, "POST", "/api/watchlist", token, map[string]string{"symbol": "TSLA", "name": "Tesla Inc."})
	assert.Equal(t, http.StatusCreated, code)

	code, body = e.do(t, "POST", "/api/watchlist", token, map[string]string{"symbol": "tsla", "name": "Tesla Inc."})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Stock already in watchlist", errorOf(t, body))

	code, body = e.do(t, "GET", "/api/watchlist/check/TSLA", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"inWatchlist":true}`, string(body))

	code, body = e.do(t, "DELETE", "/api/watchlist/TSLA", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Removed from watchlist"}`, string(body))

	code, body = e.do(t, "DELETE", "/api/watchlist/TSLA", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Stock not in watchlist", errorOf(t, body))

	code, body = e.do(t, "GET", "/api/watchlist", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
}

func dialFeed(t *testing.T, e *testEnv, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var ack protocol.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, protocol.TypeConnection, ack.Type)
	require.Equal(t, protocol.ConnectedMessage, ack.Message)
	return conn
}

func TestAlertsFlow(t *testing.T) {
	e := newTestEnv(t)
	token := e.register(t, "a@example.com")
	conn := dialFeed(t, e, "/")

	code, body := e.do(t, "POST", "/api/alerts", token, map[string]interface{}{
		"symbol": "TSLA", "name": "Tesla Inc.", "targetPrice": 240, "condition": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `Condition must be "above" or "below"`, errorOf(t, body))

	code, body = e.do(t, "POST", "/api/alerts", token, map[string]interface{}{
		"symbol": "TSLA", "name": "Tesla Inc.", "targetPrice": 240, "condition": "below",
	})
	require.Equal(t, http.StatusCreated, code)
	var created model.Alert
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.IsActive)

	code, body = e.do(t, "GET", "/api/alerts/count", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":1}`, string(body))

	code, body = e.do(t, "PATCH", "/api/alerts/"+created.ID, token, `{"isActive":false,"triggered":"true"}`)
	require.Equal(t, http.StatusOK, code, string(body))
	var updated model.Alert
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.True(t, updated.Triggered)
	assert.False(t, updated.IsActive)

	var msg protocol.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, protocol.TypeAlertTriggered, msg.Type)
	require.NotNil(t, msg.Alert)
	assert.Equal(t, created.ID, msg.Alert.ID)

	code, body = e.do(t, "PATCH", "/api/alerts/"+uuid.NewString(), token, `{"triggered":true}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Alert not found", errorOf(t, body))

	code, body = e.do(t, "DELETE", "/api/alerts/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Alert deleted"}`, string(body))

	code, _ = e.do(t, "DELETE", "/api/alerts/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAlertsAreScopedToOwner(t *testing.T) {
	e := newTestEnv(t)
	owner := e.register(t, "owner@example.com")
	other := e.register(t, "other@example.com")

	code, body := e.do(t, "POST", "/api/alerts", owner, map[string]interface{}{
		"symbol": "AAPL", "name": "Apple Inc.", "targetPrice": 200, "condition": "above",
	})
	require.Equal(t, http.StatusCreated, code)
	var created model.Alert
	require.NoError(t, json.Unmarshal(body, &created))

	code, _ = e.do(t, "PATCH", "/api/alerts/"+created.ID, other, `{"triggered":true}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(t, "GET", "/api/alerts", other, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAI(t *testing.T) {
	e := newTestEnv(t)
	token := e.register(t, "ai@example.com")

	code, body := e.do(t, "GET", "/api/ai/predict/AAPL", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"prediction":"Likely Uptrend"`)

	code, body = e.do(t, "GET", "/api/ai/predict/NOPE", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Stock not found", errorOf(t, body))

	code, body = e.do(t, "GET", "/api/ai/news/TSLA", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"sentiment":"Negative"`)

	code, body = e.do(t, "GET", "/api/ai/recommendations", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"riskLevel":"Moderate"`)

	code, body = e.do(t, "GET", "/api/ai/portfolio-advice", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"overallHealth":"Good"`)

	code, body = e.do(t, "POST", "/api/ai/chat", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Message is required", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/ai/chat", token, map[string]string{"message": "buy 2 shares of apple"})
	require.Equal(t, http.StatusOK, code)
	var reply assistant.ChatReply
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, assistant.ReplyBuySuccess, reply.Type)
	require.NotNil(t, reply.NewBalance)
	assert.Equal(t, 99643.1, *reply.NewBalance)

	code, body = e.do(t, "POST", "/api/ai/predictions/batch", token, map[string]interface{}{"symbols": "AAPL"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Symbols array is required", errorOf(t, body))

	code, body = e.do(t, "POST", "/api/ai/predictions/batch", token, map[string]interface{}{"symbols": []string{"AAPL", "NOPE", "NVDA"}})
	require.Equal(t, http.StatusOK, code)
	var preds []assistant.Prediction
	require.NoError(t, json.Unmarshal(body, &preds))
	assert.Len(t, preds, 2)
}

func TestRecovererAnswersJSON(t *testing.T) {
	a := &API{logger: zap.NewNop()}
	h := a.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}
