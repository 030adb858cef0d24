package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON sends body to endpoint and decodes a 200 response into out.
// Every failure comes back as *Error.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindUnavailable, Message: "marshaling request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindUnavailable, Message: "creating request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return &Error{Kind: KindUnavailable, Message: "sending request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Message: "decoding response", Err: err}
	}
	return nil
}

// readError parses the {"error":{"message":"..."}} body both Gemini and
// OpenAI-compatible servers return.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var wire struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		msg = wire.Error.Message
	}
	kind := KindUnavailable
	if resp.StatusCode == http.StatusTooManyRequests || wire.Error.Status == "RESOURCE_EXHAUSTED" {
		kind = KindRateLimited
	}
	return &Error{Kind: kind, StatusCode: resp.StatusCode, Message: msg}
}

func emptyReply(backend string) error {
	return &Error{Kind: KindMalformedResponse, Message: fmt.Sprintf("%s returned no text", backend)}
}
