package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"papertrade/db"
	"papertrade/model"
)

func (a *API) watchlistHandler(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.Watchlist(r.Context(), userFrom(r).ID)
	if err != nil {
		a.internalError(w, r, err, "Failed to fetch watchlist")
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (a *API) addWatchlistHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Symbol string `json:"symbol" validate:"required"`
		Name   string `json:"name" validate:"required"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	if err := a.validate.Struct(request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Symbol and name are required")
		return
	}

	entry := model.WatchlistEntry{
		ID:      uuid.NewString(),
		UserID:  userFrom(r).ID,
		Symbol:  model.NormalizeSymbol(request.Symbol),
		Name:    request.Name,
		AddedAt: time.Now().UTC(),
	}
	if err := a.store.AddWatchlist(r.Context(), &entry); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			respondWithError(w, http.StatusBadRequest, "Stock already in watchlist")
			return
		}
		a.internalError(w, r, err, "Failed to add to watchlist")
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

func (a *API) removeWatchlistHandler(w http.ResponseWriter, r *http.Request) {
	symbol := model.NormalizeSymbol(mux.Vars(r)["symbol"])
	err := a.store.RemoveWatchlist(r.Context(), userFrom(r).ID, symbol)
	if errors.Is(err, db.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Stock not in watchlist")
		return
	}
	if err != nil {
		a.internalError(w, r, err, "Failed to remove from watchlist")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Removed from watchlist"})
}

func (a *API) checkWatchlistHandler(w http.ResponseWriter, r *http.Request) {
	symbol := model.NormalizeSymbol(mux.Vars(r)["symbol"])
	in, err := a.store.InWatchlist(r.Context(), userFrom(r).ID, symbol)
	if err != nil {
		a.internalError(w, r, err, "Failed to check watchlist")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"inWatchlist": in})
}
