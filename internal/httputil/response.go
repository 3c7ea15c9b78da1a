package httputil

import (
	"encoding/json"
	"net/http"
)

// RespondJSON writes a JSON response with the given status code.
// The body is marshaled before headers are sent, so an encoding failure
// still produces a clean 500.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ProblemDetail represents an RFC 7807 Problem Details response
type ProblemDetail struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object.
func (p ProblemDetail) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(p.Extra)+5)
	for k, v := range p.Extra {
		m[k] = v
	}
	// Standard members win over extras with the same name.
	m["type"] = p.Type
	m["title"] = p.Title
	m["status"] = p.Status
	if p.Detail != "" {
		m["detail"] = p.Detail
	}
	if p.Instance != "" {
		m["instance"] = p.Instance
	}
	return json.Marshal(m)
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, status int, detail string) {
	RespondErrorWithExtras(w, status, detail, nil)
}

// RespondErrorWithExtras writes an RFC 7807 error with additional members,
// e.g. awaiting_human on a conflict with a suspended thread.
func RespondErrorWithExtras(w http.ResponseWriter, status int, detail string, extras map[string]interface{}) {
	payload, err := json.Marshal(ProblemDetail{
		Type:   errorTypeFromStatus(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Extra:  extras,
	})
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	w.Write(payload)
}

var problemTypes = map[int]string{
	http.StatusBadRequest:          "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.1",
	http.StatusUnauthorized:        "https://datatracker.ietf.org/doc/html/rfc7235#section-3.1",
	http.StatusForbidden:           "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.3",
	http.StatusNotFound:            "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.4",
	http.StatusConflict:            "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.8",
	http.StatusInternalServerError: "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.1",
}

// errorTypeFromStatus returns the RFC 7807 type URI for a status code
func errorTypeFromStatus(status int) string {
	if t, ok := problemTypes[status]; ok {
		return t
	}
	return "about:blank"
}
