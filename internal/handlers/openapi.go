package handlers

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPIHandler serves the API description
type OpenAPIHandler struct {
	yamlDoc []byte
	jsonDoc []byte
}

// NewOpenAPIHandler parses the embedded document once so both encodings are ready
func NewOpenAPIHandler() (*OpenAPIHandler, error) {
	return newOpenAPIHandler(openAPIDocument)
}

func newOpenAPIHandler(doc []byte) (*OpenAPIHandler, error) {
	var parsed map[string]any
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	jsonDoc, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return &OpenAPIHandler{yamlDoc: doc, jsonDoc: jsonDoc}, nil
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/openapi.json", h.ServeJSON).Methods("GET")
}

// ServeYAML serves the OpenAPI document in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(h.yamlDoc)
}

// ServeJSON serves the OpenAPI document in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.jsonDoc)
}
