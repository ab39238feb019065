package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"papertrade/market"
)

func (a *API) listStocksHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, a.market.All())
}

func (a *API) searchStocksHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondWithError(w, http.StatusBadRequest, "Search query required")
		return
	}
	respondWithJSON(w, http.StatusOK, a.market.Search(q))
}

func (a *API) getStockHandler(w http.ResponseWriter, r *http.Request) {
	quote, ok := a.market.Get(mux.Vars(r)["symbol"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Stock not found")
		return
	}
	respondWithJSON(w, http.StatusOK, quote)
}

// stockHistoryHandler serves generated daily history. days defaults to 30
// when missing or not a number.
func (a *API) stockHistoryHandler(w http.ResponseWriter, r *http.Request) {
	quote, ok := a.market.Get(mux.Vars(r)["symbol"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Stock not found")
		return
	}

	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		days = market.DefaultHistoryDays
	}
	respondWithJSON(w, http.StatusOK, market.History(quote, days, a.historyRand, a.clock.Now()))
}
