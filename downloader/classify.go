package downloader

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// classify turns a transport response into a cacheable payload or a
// failure. JSON payloads whose code loosely equals 500 are failures.
func classify(resp *Response) (*Payload, error) {
	if resp == nil || resp.Data == nil {
		return nil, ErrEmptyResponse
	}

	payload := resp.Data
	if !payload.IsJSON() {
		return payload, nil
	}

	var body any
	if err := json.Unmarshal([]byte(payload.Text()), &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	switch v := body.(type) {
	case nil:
		return nil, fmt.Errorf("%w: null body", ErrMalformedPayload)
	case map[string]any:
		if isServerErrorCode(v["code"]) {
			return nil, &ServerError{Code: serverErrorCode, Msg: message(v["msg"])}
		}
	}

	return payload, nil
}

// isServerErrorCode compares code to 500 the way a loosely typed
// equality would: numbers and numeric strings both match.
func isServerErrorCode(code any) bool {
	switch v := code.(type) {
	case float64:
		return v == serverErrorCode
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && f == serverErrorCode
	default:
		return false
	}
}

func message(msg any) string {
	switch v := msg.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
