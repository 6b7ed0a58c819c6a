package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/datalift/searchsync/internal/handlers"
)

// NewRouter sets up the read-side API routes.
func NewRouter(search *handlers.SearchHandler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", search.Health).Methods(http.MethodGet)

	router.HandleFunc("/search", search.Search).Methods(http.MethodPost)
	router.HandleFunc("/search/{index}/scroll", search.Scroll).Methods(http.MethodGet)

	router.HandleFunc("/indices", search.ListIndices).Methods(http.MethodGet)
	router.HandleFunc("/indices/{index}/fields", search.IndexFields).Methods(http.MethodGet)

	return router
}
