package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

const maxRequestBody = 64 << 20 // uploads included

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// matchRoute matches a registered route pattern against a request path.
// Pattern segments of the form {name} capture the corresponding path segment.
func matchRoute(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(patternParts) != len(pathParts) {
		return nil, false
	}
	params := make(map[string]string)
	for i, part := range patternParts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			params[strings.Trim(part, "{}")] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}

// handlePluginRoute resolves the installed plugin, matches the sub-path
// against its registered routes and invokes the handler with a host-built
// request.
func (s *Server) handlePluginRoute(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["plugin"]
	routes, ok := s.Service.PluginRoutes(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "plugin " + name + " not installed"})
		return
	}

	subPath := strings.TrimPrefix(r.URL.Path, "/api/v1/plugins/"+name)
	if subPath == "" {
		subPath = "/"
	}
	var handler pluginapi.Handler
	var params map[string]string
	pathMatched := false
	for key, h := range routes {
		p, ok := matchRoute(key.Path, subPath)
		if !ok {
			continue
		}
		pathMatched = true
		if key.Method == r.Method {
			handler = h
			params = p
			break
		}
	}
	if handler == nil {
		if pathMatched {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such route"})
		return
	}

	req, err := s.buildRequest(r, name, params)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp := handler(r.Context(), req)
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	writeJSON(w, resp.Status, resp.Body)
}

func (s *Server) buildRequest(r *http.Request, plugin string, params map[string]string) (pluginapi.Request, error) {
	req := pluginapi.Request{
		TenantID:       r.Header.Get("X-Tenant-ID"),
		UserID:         r.Header.Get("X-User-ID"),
		OrganizationID: r.Header.Get("X-Organization-ID"),
		WorkspaceID:    r.Header.Get("X-Workspace-ID"),
		Params:         params,
		Query:          r.URL.Query(),
		Header:         r.Header,
		RemoteAddr:     r.RemoteAddr,
	}
	if config, ok := s.Service.PluginConfig(plugin); ok {
		req.Config = config
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxRequestBody); err != nil {
			return req, err
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer func() { _ = file.Close() }()
			content, err := io.ReadAll(io.LimitReader(file, maxRequestBody))
			if err != nil {
				return req, err
			}
			req.File = &pluginapi.UploadedFile{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        int64(len(content)),
				Content:     content,
			}
		}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				if req.Body == nil {
					req.Body = make(map[string]any)
				}
				req.Body[key] = values[0]
			}
		}
		return req, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return req, err
	}
	req.RawBody = body
	if len(body) > 0 && strings.HasPrefix(contentType, "application/json") {
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err == nil {
			req.Body = parsed
		}
	}
	return req, nil
}

func (s *Server) handleConfigurePlugin(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["plugin"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	var config map[string]any
	if err := json.Unmarshal(body, &config); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.Service.ConfigurePlugin(r.Context(), name, config); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": name})
}
