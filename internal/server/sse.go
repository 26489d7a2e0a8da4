// ABOUTME: Server-sent-events transport for the streaming variant of POST /message.
// ABOUTME: Each runtime.Event is framed as one "data: <json>\n\n" chunk and flushed immediately.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func (s *Server) streamMessage(w http.ResponseWriter, r *http.Request, tenant *Tenant, req messageRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported by this response writer")
		return
	}

	events, err := tenant.Facade.PostMessageStream(r.Context(), req.Message, req.Entrypoint, 0)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
