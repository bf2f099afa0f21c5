package handler

import (
	"net/http"

	"github.com/mochilink/mochi-sync/docs"
)

// Docs serves the embedded API reference as markdown.
func Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(docs.APIReference)
}
