package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"papertrade/alerts"
	"papertrade/db"
)

func (a *API) listAlertsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := a.alerts.List(r.Context(), userFrom(r).ID)
	if err != nil {
		a.internalError(w, r, err, "Failed to fetch alerts")
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (a *API) createAlertHandler(w http.ResponseWriter, r *http.Request) {
	var request alerts.CreateRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	alert, err := a.alerts.Create(r.Context(), userFrom(r).ID, request)
	if err != nil {
		var verr *alerts.ValidationError
		if errors.As(err, &verr) {
			respondWithError(w, http.StatusBadRequest, verr.Message)
			return
		}
		a.internalError(w, r, err, "Failed to create alert")
		return
	}
	respondWithJSON(w, http.StatusCreated, alert)
}

func (a *API) countAlertsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.alerts.CountActive(r.Context(), userFrom(r).ID)
	if err != nil {
		a.internalError(w, r, err, "Failed to count alerts")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"count": n})
}

// updateAlertHandler is what a client calls once it has seen an alert fire.
func (a *API) updateAlertHandler(w http.ResponseWriter, r *http.Request) {
	var request alerts.PatchRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	alert, err := a.alerts.Update(r.Context(), userFrom(r).ID, mux.Vars(r)["id"], request)
	if errors.Is(err, db.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		a.internalError(w, r, err, "Failed to update alert")
		return
	}
	respondWithJSON(w, http.StatusOK, alert)
}

func (a *API) deleteAlertHandler(w http.ResponseWriter, r *http.Request) {
	err := a.alerts.Delete(r.Context(), userFrom(r).ID, mux.Vars(r)["id"])
	if errors.Is(err, db.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		a.internalError(w, r, err, "Failed to delete alert")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Alert deleted"})
}
