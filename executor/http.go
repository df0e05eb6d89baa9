package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ccos-project/ccos-core/manifest"
)

// HTTPExecutor dispatches to a plain HTTP endpoint. Inputs are accepted
// either as a single map (keys: url, method, headers, body — url/method
// optional when the provider already names a base URL) or as a
// positional sequence mapped to [url, method, headers, body] (spec.md
// §4.3).
type HTTPExecutor struct{}

func (HTTPExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	http1, ok := provider.(manifest.HTTPProvider)
	if !ok {
		return nil, fmt.Errorf("executor: HTTPExecutor received non-http provider %T", provider)
	}

	url, method, headers, body, err := normalizeHTTPInputs(inputs, http1.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("executor: http capability %s: %w", ec.CapabilityID, err)
	}
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("executor: http capability %s: marshaling body: %w", ec.CapabilityID, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	timeout := http1.Timeout
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("executor: http capability %s: building request: %w", ec.CapabilityID, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if http1.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+http1.AuthToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executor: http capability %s: %w", ec.CapabilityID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("executor: http capability %s: reading response: %w", ec.CapabilityID, err)
	}

	respHeaders := map[string]string{}
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	var decodedBody interface{} = string(respBody)
	var asJSON interface{}
	if json.Unmarshal(respBody, &asJSON) == nil {
		decodedBody = asJSON
	}

	return map[string]interface{}{
		"status":  resp.StatusCode,
		"body":    decodedBody,
		"headers": respHeaders,
	}, nil
}

func normalizeHTTPInputs(inputs interface{}, defaultURL string) (url, method string, headers map[string]string, body interface{}, err error) {
	url = defaultURL
	headers = map[string]string{}

	switch v := inputs.(type) {
	case nil:
		return url, method, headers, nil, nil
	case map[string]interface{}:
		if u, ok := v["url"].(string); ok && u != "" {
			url = u
		}
		if m, ok := v["method"].(string); ok {
			method = m
		}
		if h, ok := v["headers"].(map[string]string); ok {
			headers = h
		} else if h, ok := v["headers"].(map[string]interface{}); ok {
			for k, val := range h {
				if s, ok := val.(string); ok {
					headers[k] = s
				}
			}
		}
		body = v["body"]
		return url, method, headers, body, nil
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				url = s
			}
		}
		if len(v) > 1 {
			if s, ok := v[1].(string); ok {
				method = s
			}
		}
		if len(v) > 2 {
			if h, ok := v[2].(map[string]string); ok {
				headers = h
			}
		}
		if len(v) > 3 {
			body = v[3]
		}
		return url, method, headers, body, nil
	default:
		return "", "", nil, nil, fmt.Errorf("unsupported HTTP input shape %T", inputs)
	}
}
