// Package curl translates free-form shell curl commands into webhook
// configuration drafts. It is used when configuration is authored by
// extracting it from user-supplied text.
package curl

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plannerhq/webhook-engine/internal/domain"
)

// Draft is the translation result: everything needed to author a webhook
// configuration except trigger policy.
type Draft struct {
	URL            string                `json:"url"`
	Method         string                `json:"method"`
	Headers        map[string]string     `json:"headers"`
	Body           map[string]any        `json:"body,omitempty"`
	Authentication domain.Authentication `json:"authentication"`
}

// ParseError is a translation failure. No partial draft accompanies it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "cannot parse curl command: " + e.Reason
}

// Header names treated as API-key credentials when inferring auth.
var apiKeyHeaderNames = map[string]bool{
	"x-api-key":    true,
	"x-apikey":     true,
	"api-key":      true,
	"apikey":       true,
	"x-auth-token": true,
}

// Parse extracts URL, method, headers, body, and authentication from a raw
// curl command string.
func Parse(command string) (*Draft, error) {
	tokens, err := tokenize(command)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Reason: "empty command"}
	}

	draft := &Draft{
		Method:  "",
		Headers: map[string]string{},
	}
	var rawBody string
	var hasBody bool
	var basicUser string

	next := func(i int, flag string) (string, error) {
		if i+1 >= len(tokens) {
			return "", &ParseError{Reason: fmt.Sprintf("flag %s has no value", flag)}
		}
		return tokens[i+1], nil
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch {
		case tok == "-X" || tok == "--request":
			val, err := next(i, tok)
			if err != nil {
				return nil, err
			}
			draft.Method = strings.ToUpper(val)
			i++

		case strings.HasPrefix(tok, "--request="):
			draft.Method = strings.ToUpper(strings.TrimPrefix(tok, "--request="))

		case tok == "-H" || tok == "--header":
			val, err := next(i, tok)
			if err != nil {
				return nil, err
			}
			name, value, ok := splitHeader(val)
			if ok {
				draft.Headers[name] = value
			}
			i++

		case tok == "-d" || tok == "--data" || tok == "--data-raw" || tok == "--data-binary" || tok == "--data-ascii":
			val, err := next(i, tok)
			if err != nil {
				return nil, err
			}
			rawBody = val
			hasBody = true
			i++

		case tok == "-u" || tok == "--user":
			val, err := next(i, tok)
			if err != nil {
				return nil, err
			}
			basicUser = val
			i++

		case strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://"):
			if draft.URL == "" {
				draft.URL = tok
			}
		}
	}

	if draft.URL == "" {
		return nil, &ParseError{Reason: "no http(s) URL found in command"}
	}

	if draft.Method == "" {
		draft.Method = "POST"
	}
	if !domain.MethodAllowed(draft.Method) {
		return nil, &ParseError{Reason: fmt.Sprintf("method %s is not supported for webhooks (allowed: GET, POST, PUT, PATCH)", draft.Method)}
	}

	if hasBody {
		draft.Body = parseBody(rawBody)
	}

	draft.Authentication = inferAuth(draft.Headers)
	if draft.Authentication.Type == domain.AuthNone && basicUser != "" {
		user, pass, _ := strings.Cut(basicUser, ":")
		draft.Authentication = domain.Authentication{
			Type:     domain.AuthBasic,
			Username: user,
			Password: pass,
		}
	}

	return draft, nil
}

// parseBody attempts strict JSON parsing; anything that is not a JSON
// object is wrapped under a single "data" field rather than failing the
// whole translation.
func parseBody(raw string) map[string]any {
	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err == nil {
		return body
	}
	return map[string]any{"data": raw}
}

func splitHeader(raw string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(raw, ":")
	if !ok {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

// inferAuth converts credential-shaped headers into structured
// authentication, removing them from the header map so they never reach
// the generic header bag. Authorization is checked before API-key header
// variants.
func inferAuth(headers map[string]string) domain.Authentication {
	for name, value := range headers {
		if !strings.EqualFold(name, "Authorization") {
			continue
		}

		if token, found := strings.CutPrefix(value, "Bearer "); found {
			delete(headers, name)
			return domain.Authentication{Type: domain.AuthBearer, Token: strings.TrimSpace(token)}
		}

		if encoded, found := strings.CutPrefix(value, "Basic "); found {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
			if err != nil {
				// Undecodable credentials stay where they are.
				continue
			}
			user, pass, _ := strings.Cut(string(decoded), ":")
			delete(headers, name)
			return domain.Authentication{Type: domain.AuthBasic, Username: user, Password: pass}
		}
	}

	for name, value := range headers {
		if apiKeyHeaderNames[strings.ToLower(name)] {
			delete(headers, name)
			return domain.Authentication{
				Type:         domain.AuthAPIKey,
				APIKey:       value,
				APIKeyHeader: name,
			}
		}
	}

	return domain.Authentication{Type: domain.AuthNone}
}

// tokenize splits a shell command into tokens, honouring single quotes,
// double quotes, backslash escapes, and line continuations.
func tokenize(command string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	var inToken bool

	const (
		stateNone = iota
		stateSingle
		stateDouble
	)
	state := stateNone

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch state {
		case stateSingle:
			if ch == '\'' {
				state = stateNone
			} else {
				cur.WriteRune(ch)
			}

		case stateDouble:
			if ch == '"' {
				state = stateNone
			} else if ch == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
				cur.WriteRune(runes[i+1])
				i++
			} else {
				cur.WriteRune(ch)
			}

		default:
			switch {
			case ch == '\'':
				state = stateSingle
				inToken = true
			case ch == '"':
				state = stateDouble
				inToken = true
			case ch == '\\' && i+1 < len(runes):
				if runes[i+1] == '\n' {
					// Line continuation.
					i++
				} else {
					cur.WriteRune(runes[i+1])
					inToken = true
					i++
				}
			case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
				if inToken {
					tokens = append(tokens, cur.String())
					cur.Reset()
					inToken = false
				}
			default:
				cur.WriteRune(ch)
				inToken = true
			}
		}
	}

	if state != stateNone {
		return nil, &ParseError{Reason: "unclosed quote"}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}

	return tokens, nil
}
