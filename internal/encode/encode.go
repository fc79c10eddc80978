// Package encode converts a captured HTTP response into the envelope that is
// delivered to webhooks.
package encode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
)

// Encode builds a ResponseEnvelope from resp based on its declared Content-Type:
// JSON bodies are embedded as JSON, text bodies as strings, anything else as base64.
func Encode(resp *domain.CapturedResponse) (*domain.ResponseEnvelope, error) {
	if resp == nil {
		return nil, domain.ErrEncoding("no response to encode", nil)
	}

	contentType := resp.ContentType()
	env := &domain.ResponseEnvelope{StatusCode: resp.StatusCode}

	switch {
	case strings.Contains(contentType, "application/json"):
		if !json.Valid(resp.Body) {
			return nil, domain.ErrEncoding(fmt.Sprintf("body is not valid JSON (content type %q)", contentType), nil)
		}
		env.Data = json.RawMessage(append([]byte(nil), resp.Body...))
	case strings.Contains(contentType, "text"):
		env.Data = decodeText(resp.Body, contentType)
	default:
		env.Data = base64.StdEncoding.EncodeToString(resp.Body)
	}

	return env, nil
}

// decodeText converts body to a string using the charset declared in contentType.
// Unknown or missing charsets fall back to treating the bytes as UTF-8.
func decodeText(body []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body)
	}
	charset := strings.TrimSpace(params["charset"])
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return string(body)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// Marshal serializes env as the webhook request body. HTML escaping is disabled so
// text payloads arrive byte-for-byte.
func Marshal(env *domain.ResponseEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, domain.ErrEncoding("marshal envelope", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
