package router

import (
	"net/http"

	"noteszone/config"
	notehandler "noteszone/internal/note"
	noteservice "noteszone/internal/note/service"
	userhandler "noteszone/internal/user"
	userservice "noteszone/internal/user/service"
	"noteszone/middleware"
	"noteszone/pkg/response"
	"noteszone/socket"

	"github.com/gorilla/mux"
)

type Deps struct {
	Auth  *userservice.AuthService
	Notes *noteservice.NoteService
	Hub   *socket.Hub
	CORS  config.CORSConfig
}

func Setup(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(d.CORS.AllowedOrigins, d.CORS.AllowedMethods, d.CORS.AllowedHeaders))

	authHandler := userhandler.NewAuthHandler(d.Auth)
	noteHandler := notehandler.NewNoteHandler(d.Notes)
	gateway := socket.NewGateway(d.Auth)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(d.Auth))
	protected.HandleFunc("/auth/me", authHandler.Me).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/owned", noteHandler.ListOwned).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/shared", noteHandler.ListShared).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes", noteHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/notes/{id}/share", noteHandler.Share).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}/unshare", noteHandler.Unshare).Methods("POST", "OPTIONS")

	// The gateway authenticates websocket upgrades itself.
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		socket.ServeWs(d.Hub, gateway, w, req)
	})
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]string{"status": "ok"})
	}).Methods("GET")

	return r
}
