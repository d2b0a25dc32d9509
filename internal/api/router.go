package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Thianvelaz/Cognio/internal/api/recovery"
	"github.com/Thianvelaz/Cognio/internal/services"
)

// RouterConfig carries what NewRouter needs besides the service.
type RouterConfig struct {
	APIKey  string
	Version string
	Health  ServiceHealth
	Log     zerolog.Logger
}

// NewRouter wires HTTP routes to handlers.
func NewRouter(svc *services.MemoryService, cfg RouterConfig) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware(cfg.Log))
	root.Use(RequireAPIKey(cfg.APIKey, "/", "/health"))

	health := NewHealthHandler(cfg.Health, cfg.Version)
	root.HandleFunc("/", health.Root).Methods("GET")
	root.HandleFunc("/health", health.CheckHealth).Methods("GET")

	memory := NewMemoryHandler(svc)
	root.HandleFunc("/memory/save", memory.SaveMemory).Methods("POST")
	root.HandleFunc("/memory/search", memory.SearchMemory).Methods("GET")
	root.HandleFunc("/memory/list", memory.ListMemories).Methods("GET")
	root.HandleFunc("/memory/stats", memory.Stats).Methods("GET")
	root.HandleFunc("/memory/export", memory.Export).Methods("GET")
	root.HandleFunc("/memory/import", memory.Import).Methods("POST")
	root.HandleFunc("/memory/bulk-delete", memory.BulkDelete).Methods("POST")
	root.HandleFunc("/memory/{id}", memory.GetMemory).Methods("GET")
	root.HandleFunc("/memory/{id}", memory.DeleteMemory).Methods("DELETE")
	return root
}
