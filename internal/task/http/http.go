// ABOUTME: HTTP task executor (C4): resolves method/url/headers/body templates and dispatches via resty
// ABOUTME: Grounded in the teacher's internal/tasks/slack net/http POST pattern, generalized to any method/URL

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// Executor runs an HTTP task spec.
type Executor struct {
	spec   *types.HTTPSpec
	client *resty.Client
}

// New builds an HTTP executor for spec. A fresh resty client is used per
// executor instance; resty clients are cheap and safe to build per task spec.
func New(spec *types.HTTPSpec) *Executor {
	return &Executor{spec: spec, client: resty.New()}
}

// Execute resolves the spec's templates against rc, issues the request, and
// classifies any failure per §7. resolvedInput is accepted for interface
// symmetry but unused: an HTTP task spec's method/url/headers/body are
// themselves templates resolved against the live context, not the step's
// input mapping.
func (e *Executor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	method, err := resolveString(e.spec.Method, rc)
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, types.NewConfigurationError("http task: method resolved to an empty string")
	}

	rawURL, err := resolveString(e.spec.URL, rc)
	if err != nil {
		return nil, err
	}
	if rawURL == "" {
		return nil, types.NewConfigurationError("http task: url resolved to an empty string")
	}
	host := hostOf(rawURL)

	headers := map[string]string{}
	for k, tmpl := range e.spec.Headers {
		v, err := resolveString(tmpl, rc)
		if err != nil {
			return nil, err
		}
		headers[k] = v
	}

	var body string
	if e.spec.Body != "" {
		body, err = resolveString(e.spec.Body, rc)
		if err != nil {
			return nil, err
		}
	}

	req := e.client.R().SetContext(ctx).SetHeaders(headers)
	if body != "" {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewTimeoutError(fmt.Sprintf("http task timed out: %v", err))
		}
		return nil, types.NewNetworkError(fmt.Sprintf("http request to %s failed", host), err)
	}

	status := resp.StatusCode()
	output := map[string]interface{}{}
	contentType := resp.Header().Get("Content-Type")
	raw := resp.Body()

	if status >= 200 && status < 300 {
		if strings.Contains(contentType, "json") {
			var parsed interface{}
			if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil {
				output["output"] = parsed
				return output, nil
			}
		}
		output["rawBody"] = string(raw)
		return output, nil
	}

	switch status {
	case 401, 403:
		return nil, types.NewAuthenticationError(status, fmt.Sprintf("http %d from %s", status, host))
	case 429:
		return nil, types.NewRateLimitError(fmt.Sprintf("http 429 from %s", host), host)
	default:
		return nil, types.NewHTTPError(status, fmt.Sprintf("http %d from %s", status, host), host)
	}
}

func resolveString(tmpl string, rc *runtime.Context) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	v, err := template.Resolve(tmpl, rc)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), nil
	}
	return s, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
