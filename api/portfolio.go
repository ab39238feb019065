package api

import (
	"errors"
	"net/http"

	"papertrade/db"
	"papertrade/trademanager"
)

// tradeError maps ledger errors to responses. It reports false when err is
// not a ledger error.
func tradeError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, trademanager.ErrInvalidShares):
		respondWithError(w, http.StatusBadRequest, "Shares must be positive")
	case errors.Is(err, trademanager.ErrInvalidPrice):
		respondWithError(w, http.StatusBadRequest, "Price must be positive")
	case errors.Is(err, trademanager.ErrInsufficientBalance):
		respondWithError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, trademanager.ErrInsufficientShares):
		respondWithError(w, http.StatusBadRequest, "Insufficient shares")
	case errors.Is(err, trademanager.ErrNotHeld):
		respondWithError(w, http.StatusNotFound, "Stock not in portfolio")
	default:
		return false
	}
	return true
}

func (a *API) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	holdings, err := a.store.Holdings(r.Context(), userFrom(r).ID)
	if err != nil {
		a.internalError(w, r, err, "Failed to fetch portfolio")
		return
	}
	respondWithJSON(w, http.StatusOK, holdings)
}

func (a *API) buyHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Symbol string  `json:"symbol" validate:"required"`
		Name   string  `json:"name" validate:"required"`
		Shares float64 `json:"shares" validate:"required"`
		Price  float64 `json:"price" validate:"required"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	if err := a.validate.Struct(request); err != nil {
		respondWithError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	res, err := a.trades.Buy(r.Context(), userFrom(r).ID, request.Symbol, request.Name, request.Shares, request.Price)
	if err != nil {
		if !tradeError(w, err) {
			a.internalError(w, r, err, "Purchase failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Purchase successful",
		"holding":    res.Holding,
		"newBalance": res.NewBalance,
	})
}

func (a *API) sellHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Symbol string  `json:"symbol" validate:"required"`
		Shares float64 `json:"shares" validate:"required"`
		Price  float64 `json:"price" validate:"required"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	if err := a.validate.Struct(request); err != nil {
		respondWithError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	res, err := a.trades.Sell(r.Context(), userFrom(r).ID, request.Symbol, request.Shares, request.Price)
	if err != nil {
		if !tradeError(w, err) {
			a.internalError(w, r, err, "Sale failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Sale successful",
		"revenue":    res.Revenue,
		"newBalance": res.NewBalance,
	})
}

func (a *API) summaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := a.trades.Summary(r.Context(), userFrom(r).ID, a.market)
	if errors.Is(err, db.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		a.internalError(w, r, err, "Failed to fetch portfolio summary")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
