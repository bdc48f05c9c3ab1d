package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyBytes caps a request body, batches included
const maxBodyBytes = 1 << 20

// ServeHTTP accepts a single JSON-RPC request object or a batch array
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeResponse(w, errorResponse(KindParseError, "failed to read body"))
		return
	}
	if len(body) > maxBodyBytes {
		writeResponse(w, errorResponse(KindInvalidRequest, "request body too large"))
		return
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		writeResponse(w, errorResponse(KindParseError, "request body is not valid JSON"))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			writeResponse(w, errorResponse(KindParseError, "malformed batch"))
			return
		}
		if len(raws) == 0 {
			writeResponse(w, errorResponse(KindInvalidRequest, "empty batch"))
			return
		}
		writeResponse(w, g.serveBatch(r, raws))
		return
	}

	req, rpcErr := decodeRequest(body)
	if rpcErr != nil {
		writeResponse(w, Response{JSONRPC: Version, Error: rpcErr})
		return
	}
	writeResponse(w, g.Dispatch(r.Context(), req))
}

func (g *Gateway) serveBatch(r *http.Request, raws []json.RawMessage) []Response {
	reqs := make([]Request, 0, len(raws))
	index := make([]int, 0, len(raws))
	responses := make([]Response, len(raws))

	// Entries that are not request objects get their own error response
	// without aborting the rest of the batch
	for i, raw := range raws {
		req, rpcErr := decodeRequest(raw)
		if rpcErr != nil {
			responses[i] = Response{JSONRPC: Version, Error: rpcErr}
			continue
		}
		reqs = append(reqs, req)
		index = append(index, i)
	}

	for j, resp := range g.DispatchBatch(r.Context(), reqs) {
		responses[index[j]] = resp
	}
	return responses
}

func decodeRequest(raw json.RawMessage) (Request, *Error) {
	var req Request
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return req, newError(KindInvalidRequest, "request must be a JSON object")
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, newError(KindInvalidRequest, "malformed request: "+err.Error())
	}
	return req, nil
}

func errorResponse(kind Kind, msg string) Response {
	return Response{JSONRPC: Version, Error: newError(kind, msg)}
}

// writeResponse always answers 200; errors travel inside the envelope
func writeResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
