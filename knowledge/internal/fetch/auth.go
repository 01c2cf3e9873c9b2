package fetch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Auth types accepted in a source's auth_config.
const (
	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthHeader = "header"
)

// Auth is the decoded auth_config of a source.
//
//	{"type":"bearer","token":"..."}
//	{"type":"basic","username":"...","password":"..."}
//	{"type":"header","header":"X-Api-Key","value":"..."}
type Auth struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Header   string `json:"header,omitempty"`
	Value    string `json:"value,omitempty"`
}

// ParseAuth decodes and checks an auth_config document. Empty input yields nil.
func ParseAuth(raw json.RawMessage) (*Auth, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a Auth
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("auth_config: %w", err)
	}
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	switch a.Type {
	case AuthBearer:
		if a.Token == "" {
			return nil, fmt.Errorf("auth_config: bearer requires token")
		}
	case AuthBasic:
		if a.Username == "" {
			return nil, fmt.Errorf("auth_config: basic requires username")
		}
	case AuthHeader:
		if a.Header == "" || a.Value == "" {
			return nil, fmt.Errorf("auth_config: header requires header and value")
		}
	default:
		return nil, fmt.Errorf("auth_config: unknown type %q", a.Type)
	}
	return &a, nil
}

// Apply sets the credentials on an outgoing request.
func (a *Auth) Apply(req *http.Request) {
	if a == nil {
		return
	}
	switch a.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case AuthBasic:
		req.SetBasicAuth(a.Username, a.Password)
	case AuthHeader:
		req.Header.Set(a.Header, a.Value)
	}
}
