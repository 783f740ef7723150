package pluginapi

import (
	"net/http"
	"net/url"
)

// Request carries the host-resolved context of one HTTP call into a plugin
// handler. RawBody always holds the exact request bytes; Body is the parsed
// JSON object when the request carried one.
type Request struct {
	TenantID       string
	UserID         string
	OrganizationID string
	WorkspaceID    string
	Params         map[string]string
	Query          url.Values
	Header         http.Header
	RemoteAddr     string
	RawBody        []byte
	Body           map[string]any
	File           *UploadedFile
	Config         map[string]any
}

// UploadedFile holds one multipart upload already read into memory.
type UploadedFile struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// Response is returned by plugin handlers and serialized as JSON by the host.
type Response struct {
	Status int
	Body   any
}

// OK wraps a payload in a 200 response.
func OK(body any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// Created wraps a payload in a 201 response.
func Created(body any) Response {
	return Response{Status: http.StatusCreated, Body: body}
}

// Error builds an error response with the conventional {"error": msg} body.
func Error(status int, msg string) Response {
	return Response{Status: status, Body: map[string]string{"error": msg}}
}
