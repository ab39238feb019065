package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

func (a *API) predictHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := a.assistant.Predict(mux.Vars(r)["symbol"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Stock not found")
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (a *API) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, a.assistant.Recommendations())
}

func (a *API) newsHandler(w http.ResponseWriter, r *http.Request) {
	n, ok := a.assistant.News(mux.Vars(r)["symbol"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Stock not found")
		return
	}
	respondWithJSON(w, http.StatusOK, n)
}

func (a *API) portfolioAdviceHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, a.assistant.PortfolioAdvice())
}

func (a *API) chatHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Message) == "" {
		respondWithError(w, http.StatusBadRequest, "Message is required")
		return
	}

	reply := a.assistant.Chat(r.Context(), userFrom(r), request.Message)
	respondWithJSON(w, http.StatusOK, reply)
}

func (a *API) batchPredictionsHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Symbols json.RawMessage `json:"symbols"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}

	var symbols []string
	if len(request.Symbols) == 0 || json.Unmarshal(request.Symbols, &symbols) != nil || symbols == nil {
		respondWithError(w, http.StatusBadRequest, "Symbols array is required")
		return
	}
	respondWithJSON(w, http.StatusOK, a.assistant.PredictBatch(symbols))
}
