package server

func (s *Server) registerRoutes() {
	s.router.Use(s.observe)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/sessions/{id}/messages", s.handlePostMessage).Methods("POST")
	api.HandleFunc("/tools/{agent}/{tool}", s.requireStaff(s.handleExecuteTool)).Methods("POST")
	api.HandleFunc("/notifications/callback", s.handleNotificationCallback).Methods("POST")
}
