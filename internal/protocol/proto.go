// Package protocol defines the newline-delimited JSON wire protocol spoken
// between hostlink servers and their control clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved public command names that never require authentication.
const (
	CmdPing              = "ping"
	CmdGetInstanceInfo   = "get_instance_info"
	CmdGetServerInfo     = "get_server_info"
	CmdAuthenticate      = "authenticate"
	CmdDiscoverInstances = "discover_instances"
)

// Request is one parsed command line.  Beyond the command type it exposes
// typed accessors over the raw JSON fields so handlers stay schema-free.
type Request struct {
	Type string
	// ClientIP is injected by the transport layer before dispatch; it is
	// never trusted from the payload itself.
	ClientIP string

	fields map[string]json.RawMessage
}

// ParseRequest decodes a single wire line into a [Request].
func ParseRequest(line []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, err
	}
	req := &Request{fields: fields}
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &req.Type)
	}
	return req, nil
}

// NewRequest builds a request programmatically, used by the in-process
// function router and by tests.
func NewRequest(cmdType string, params map[string]any) *Request {
	fields := make(map[string]json.RawMessage, len(params)+1)
	for k, v := range params {
		if b, err := json.Marshal(v); err == nil {
			fields[k] = b
		}
	}
	req := &Request{Type: cmdType, fields: fields}
	return req
}

// EncodeRequest marshals a request as one wire line, newline included.
func EncodeRequest(r *Request) ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(r.fields)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	tb, err := json.Marshal(r.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = tb
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// String returns the string field for key, or "" when absent or not a
// string.
func (r *Request) String(key string) string {
	var v string
	if raw, ok := r.fields[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

// StringOr returns the string field for key, or def when absent or empty.
func (r *Request) StringOr(key, def string) string {
	if v := r.String(key); v != "" {
		return v
	}
	return def
}

// Int returns the integer field for key, or def when absent or invalid.
func (r *Request) Int(key string, def int) int {
	if raw, ok := r.fields[key]; ok {
		var v int
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return def
}

// Bool returns the boolean field for key, or def when absent or invalid.
func (r *Request) Bool(key string, def bool) bool {
	if raw, ok := r.fields[key]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return def
}

// Raw returns the raw JSON for key and whether it was present.
func (r *Request) Raw(key string) (json.RawMessage, bool) {
	raw, ok := r.fields[key]
	return raw, ok
}

// ClientID returns the caller-supplied client identifier.  It is not bound
// to the transport connection; see the authentication middleware notes.
func (r *Request) ClientID() string {
	return r.StringOr("client_id", "default")
}

// Response is the JSON object written back for one request.  Every response
// carries a "success" field.
type Response map[string]any

// OK returns a success response ready for additional fields.
func OK() Response {
	return Response{"success": true}
}

// Fail returns a failure response with a formatted error message.
func Fail(format string, args ...any) Response {
	return Response{"success": false, "error": fmt.Sprintf(format, args...)}
}

// With adds a field and returns the response for chaining.
func (r Response) With(key string, value any) Response {
	r[key] = value
	return r
}

// Succeeded reports the value of the "success" field.
func (r Response) Succeeded() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// ErrorMessage returns the "error" field, or "" on success responses.
func (r Response) ErrorMessage() string {
	msg, _ := r["error"].(string)
	return msg
}

// EncodeLine marshals a response followed by the protocol's newline
// terminator.
func EncodeLine(r Response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// DecodeResponse parses one received line into a [Response].
func DecodeResponse(line []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(line))), &r); err != nil {
		return nil, err
	}
	return r, nil
}
