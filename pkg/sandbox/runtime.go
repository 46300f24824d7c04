package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"
)

// consoleBuffer captures console.log output from tool code so it can be
// included in the textual result.
type consoleBuffer struct {
	b strings.Builder
}

func (c *consoleBuffer) String() string {
	return strings.TrimRight(c.b.String(), "\n")
}

// installBindings populates a fresh VM with the allow-listed host surface:
// console.log/warn/error capture and bounded HTTP helpers. Nothing else is
// exposed; in particular there is no filesystem, no process access and no
// module loader.
func installBindings(vm *goja.Runtime, cfg Config) *consoleBuffer {
	console := &consoleBuffer{}

	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, stringify(arg))
		}
		console.b.WriteString(strings.Join(parts, " "))
		console.b.WriteString("\n")
		return goja.Undefined()
	}

	consoleObj := vm.NewObject()
	consoleObj.Set("log", logFn)
	consoleObj.Set("warn", logFn)
	consoleObj.Set("error", logFn)
	vm.Set("console", consoleObj)

	client := &http.Client{Timeout: cfg.HTTPTimeout}

	vm.Set("httpGet", func(url string, headers map[string]string) (string, error) {
		return boundedRequest(client, http.MethodGet, url, "", headers, cfg.MaxHTTPBody)
	})
	vm.Set("httpPost", func(url string, body string, headers map[string]string) (string, error) {
		return boundedRequest(client, http.MethodPost, url, body, headers, cfg.MaxHTTPBody)
	})

	return console
}

// boundedRequest performs an HTTP call on behalf of tool code, bounding both
// duration (client timeout) and response size.
func boundedRequest(client *http.Client, method, url, body string, headers map[string]string, maxBody int64) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("only http and https URLs are allowed")
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if method == http.MethodPost && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncateForError(string(data)))
	}
	return string(data), nil
}

func truncateForError(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// stringify converts a JS value to the text representation fed back to the
// planner. Objects and arrays are rendered as JSON.
func stringify(value goja.Value) string {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return ""
	}

	exported := value.Export()
	switch exported.(type) {
	case string, bool, int64, float64:
		return value.String()
	default:
		data, err := json.Marshal(exported)
		if err != nil {
			return value.String()
		}
		return string(data)
	}
}
