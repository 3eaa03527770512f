package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"launchpad/internal/service"
	"launchpad/internal/transport/rest/handler"
	"launchpad/internal/transport/rest/middleware"
	"launchpad/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService    *service.AuthService
	Sessions       *service.SessionManager
	WSHandler      *ws.Handler
	AllowedOrigins []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	authHandler := handler.NewAuthHandler()
	sessionHandler := handler.NewSessionHandler(c.Sessions)
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket routes (token in query param)
	if c.WSHandler != nil {
		v1.HandleFunc("/ws/sessions/{sessionId}", c.WSHandler.SessionWS).Methods("GET")
	}

	founder := v1.NewRoute().Subrouter()
	founder.Use(authMW.RequireFounder)

	founder.HandleFunc("/auth/me", authHandler.Me).Methods("GET")
	founder.HandleFunc("/projects/{projectId}/sessions", sessionHandler.Open).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}", sessionHandler.Get).Methods("GET")
	founder.HandleFunc("/sessions/{sessionId}", sessionHandler.Close).Methods("DELETE")
	founder.HandleFunc("/sessions/{sessionId}/fields/{questionId}", sessionHandler.SetField).Methods("PUT")
	founder.HandleFunc("/sessions/{sessionId}/fields/{questionId}/{fieldKey}", sessionHandler.SetField).Methods("PUT")
	founder.HandleFunc("/sessions/{sessionId}/save", sessionHandler.Save).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/steps/next", sessionHandler.Next).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/steps/back", sessionHandler.Back).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/steps/jump", sessionHandler.Jump).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/validate", sessionHandler.Validate).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/submit", sessionHandler.Submit).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/documents", sessionHandler.Upload).Methods("POST")
	founder.HandleFunc("/sessions/{sessionId}/documents/{documentId}", sessionHandler.RemoveDocument).Methods("DELETE")

	return newCORS(c.AllowedOrigins).Handler(r)
}

func newCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
