// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package edge

import (
	"context"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	applog "github.com/ManuGH/infinitune/internal/log"
)

// openAPISpec is the published schema document for the control-plane
// REST surface. It is validated once at process startup (see
// loadOpenAPIDocument) so a malformed edit to this literal fails fast
// instead of silently serving a broken document.
const openAPISpec = `{
  "openapi": "3.0.3",
  "info": { "title": "infinitune room coordinator", "version": "1" },
  "paths": {
    "/api/v1/rooms": {
      "get": {
        "summary": "List rooms",
        "responses": { "200": { "description": "OK" } }
      },
      "post": {
        "summary": "Create a room (idempotent)",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["id", "playlistKey"],
                "properties": {
                  "id": { "type": "string" },
                  "name": { "type": "string" },
                  "playlistKey": { "type": "string" }
                }
              }
            }
          }
        },
        "responses": { "200": { "description": "OK" } }
      }
    },
    "/api/v1/rooms/{roomID}": {
      "delete": {
        "summary": "Remove a room",
        "parameters": [
          { "name": "roomID", "in": "path", "required": true, "schema": { "type": "string" } }
        ],
        "responses": { "204": { "description": "Removed" }, "404": { "description": "Not found" } }
      }
    },
    "/api/v1/now-playing": {
      "get": {
        "summary": "Compact playback summary for status-bar integrations",
        "parameters": [
          { "name": "room", "in": "query", "required": true, "schema": { "type": "string" } }
        ],
        "responses": { "200": { "description": "OK" }, "404": { "description": "Not found" } }
      }
    },
    "/health": {
      "get": {
        "summary": "Liveness and room count",
        "responses": { "200": { "description": "OK" } }
      }
    }
  }
}`

var (
	openAPIOnce sync.Once
	openAPIBody []byte
	openAPIErr  error
)

// loadOpenAPIDocument parses and validates openAPISpec once per process,
// returning the raw bytes to serve. A validation failure here is a
// build-time mistake baked into the literal, not a runtime condition.
func loadOpenAPIDocument() ([]byte, error) {
	openAPIOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData([]byte(openAPISpec))
		if err != nil {
			openAPIErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openAPIErr = err
			return
		}
		openAPIBody = []byte(openAPISpec)
	})
	return openAPIBody, openAPIErr
}

// handleOpenAPI implements GET /api/v1/openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := loadOpenAPIDocument()
	if err != nil {
		applog.L().Error().Err(err).Msg("openapi document failed validation")
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(doc)
}
