package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
)

// exportLimit caps how many activity entries one export carries.
const exportLimit = 10000

// exportActivity streams the activity log as a zstd-compressed JSON
// array, newest first.
func (s *Server) exportActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListActivity(r.URL.Query().Get("task"), exportLimit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("activity-%s.json.zst", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	zw, err := zstd.NewWriter(w)
	if err != nil {
		jsonError(w, fmt.Sprintf("create zstd writer: %v", err), http.StatusInternalServerError)
		return
	}
	defer zw.Close()

	if err := json.NewEncoder(zw).Encode(entries); err != nil {
		// Headers are already written; nothing left to report to the client
		return
	}
}
