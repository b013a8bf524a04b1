// Package responses writes the {success, detail, data, total} envelope every
// endpoint returns.
package responses

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

const detailOK = "ok"

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessDetail(w, http.StatusOK, detailOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteSuccessDetail(w, status, detailOK, data)
}

func WriteSuccessDetail(w http.ResponseWriter, status int, detail string, data any) {
	writeJSON(w, status, types.Envelope{Success: 1, Detail: detail, Data: data})
}

// WriteList carries the unpaged row count next to one page of data.
func WriteList(w http.ResponseWriter, data any, total int64) {
	writeJSON(w, http.StatusOK, types.Envelope{Success: 1, Detail: detailOK, Data: data, Total: &total})
}

// writeJSON encodes before touching the header so an unencodable payload
// still produces a well-formed 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(types.ErrorEnvelope{Detail: "failed to encode response", Code: "INTERNAL_ERROR"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
