package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds request bodies. Messages are capped far below this.
const maxBodyBytes = 1 << 20

// ParseJSON decodes JSON from the request body into the given destination.
// An empty body leaves dest untouched.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// WantsEventStream reports whether a turn should be streamed as SSE. Streaming
// is the default; an Accept header naming only application/json opts out.
func WantsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/event-stream") {
		return true
	}
	return !strings.Contains(accept, "application/json")
}
