package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"papertrade/alerts"
	"papertrade/assistant"
	"papertrade/auth"
	"papertrade/config"
	"papertrade/db"
	"papertrade/market"
	"papertrade/metrics"
	"papertrade/trademanager"
)

// Feed is the price feed endpoint: it upgrades requests and reports how many
// connections are open.
type Feed interface {
	http.Handler
	Len() int
}

type Deps struct {
	Store     db.Store
	Market    *market.Market
	Issuer    *auth.Issuer
	Trades    *trademanager.TradeManager
	Alerts    *alerts.Service
	Assistant *assistant.Assistant
	Feed      Feed
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	Auth        config.AuthConfig
	CORSOrigins []string

	// HistoryRand drives generated price history. Defaults to a time-seeded source.
	HistoryRand market.Rand
	Clock       market.Clock
}

// API serves the REST endpoints and the price feed upgrade.
type API struct {
	router    *mux.Router
	store     db.Store
	market    *market.Market
	issuer    *auth.Issuer
	trades    *trademanager.TradeManager
	alerts    *alerts.Service
	assistant *assistant.Assistant
	feed      Feed
	metrics   *metrics.Metrics
	logger    *zap.Logger
	validate  *validator.Validate

	authCfg     config.AuthConfig
	corsOrigins []string
	historyRand market.Rand
	clock       market.Clock
}

func New(d Deps) *API {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.HistoryRand == nil {
		d.HistoryRand = market.NewRand(time.Now().UnixNano())
	}
	if d.Clock == nil {
		d.Clock = market.RealClock{}
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}

	a := &API{
		router:      mux.NewRouter(),
		store:       d.Store,
		market:      d.Market,
		issuer:      d.Issuer,
		trades:      d.Trades,
		alerts:      d.Alerts,
		assistant:   d.Assistant,
		feed:        d.Feed,
		metrics:     d.Metrics,
		logger:      d.Logger.Named("api"),
		validate:    validator.New(),
		authCfg:     d.Auth,
		corsOrigins: d.CORSOrigins,
		historyRand: d.HistoryRand,
		clock:       d.Clock,
	}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	r := a.router
	r.Use(a.recoverer, a.instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", a.healthHandler).Methods("GET")
	r.Handle("/metrics", a.metrics.Handler()).Methods("GET")

	// Price feed. Upgrade requests are also accepted on the root path.
	r.Handle("/ws", a.feed).Methods("GET")
	r.Handle("/", a.feed).Methods("GET").Headers("Upgrade", "websocket")

	r.HandleFunc("/api/auth/register", a.registerHandler).Methods("POST")
	r.HandleFunc("/api/auth/signup", a.signupHandler).Methods("POST")
	r.HandleFunc("/api/auth/login", a.loginHandler).Methods("POST")

	p := r.PathPrefix("/api").Subrouter()
	p.Use(a.requireAuth)

	p.HandleFunc("/auth/me", a.meHandler).Methods("GET")

	p.HandleFunc("/stocks", a.listStocksHandler).Methods("GET")
	p.HandleFunc("/stocks/search", a.searchStocksHandler).Methods("GET")
	p.HandleFunc("/stocks/{symbol}", a.getStockHandler).Methods("GET")
	p.HandleFunc("/stocks/{symbol}/history", a.stockHistoryHandler).Methods("GET")

	p.HandleFunc("/portfolio", a.portfolioHandler).Methods("GET")
	p.HandleFunc("/portfolio/buy", a.buyHandler).Methods("POST")
	p.HandleFunc("/portfolio/sell", a.sellHandler).Methods("POST")
	p.HandleFunc("/portfolio/summary", a.summaryHandler).Methods("GET")

	p.HandleFunc("/watchlist", a.watchlistHandler).Methods("GET")
	p.HandleFunc("/watchlist", a.addWatchlistHandler).Methods("POST")
	p.HandleFunc("/watchlist/check/{symbol}", a.checkWatchlistHandler).Methods("GET")
	p.HandleFunc("/watchlist/{symbol}", a.removeWatchlistHandler).Methods("DELETE")

	p.HandleFunc("/alerts", a.listAlertsHandler).Methods("GET")
	p.HandleFunc("/alerts", a.createAlertHandler).Methods("POST")
	p.HandleFunc("/alerts/count", a.countAlertsHandler).Methods("GET")
	p.HandleFunc("/alerts/{id}", a.updateAlertHandler).Methods("PATCH")
	p.HandleFunc("/alerts/{id}", a.deleteAlertHandler).Methods("DELETE")

	p.HandleFunc("/ai/predict/{symbol}", a.predictHandler).Methods("GET")
	p.HandleFunc("/ai/recommendations", a.recommendationsHandler).Methods("GET")
	p.HandleFunc("/ai/news/{symbol}", a.newsHandler).Methods("GET")
	p.HandleFunc("/ai/portfolio-advice", a.portfolioAdviceHandler).Methods("GET")
	p.HandleFunc("/ai/chat", a.chatHandler).Methods("POST")
	p.HandleFunc("/ai/predictions/batch", a.batchPredictionsHandler).Methods("POST")
}

// Handler returns the router wrapped in CORS handling.
func (a *API) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(a.router)
}

func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":      "ok",
		"timestamp":   a.clock.Now().UTC().Format(time.RFC3339),
		"connections": a.feed.Len(),
	}
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Warn("Store ping failed", zap.Error(err))
		health["status"] = "degraded"
	}
	respondWithJSON(w, http.StatusOK, health)
}

// decodeJSON reads the request body into v. A malformed body is answered
// with 400 and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Error marshaling JSON"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// internalError logs err and answers with a generic 500.
func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	a.logger.Error(message, zap.Error(err), zap.String("path", r.URL.Path))
	respondWithError(w, http.StatusInternalServerError, message)
}
