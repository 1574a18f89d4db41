package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/attendance-cam/internal/web/handlers"
	"github.com/kozaktomas/attendance-cam/internal/web/middleware"
	"github.com/kozaktomas/attendance-cam/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.engine)
	galleryHandler := handlers.NewGalleryHandler(s.engine, s.jobManager)
	classifyHandler := handlers.NewClassifyHandler(s.engine)
	attendanceHandler := handlers.NewAttendanceHandler(s.engine)
	studentsHandler := handlers.NewStudentsHandler(s.engine)
	policyHandler := handlers.NewPolicyHandler(s.engine)
	camerasHandler := handlers.NewCamerasHandler(s.engine, s.config.Camera.AllowedDevices())

	s.router.Get("/api/v1/health", healthHandler.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.NoCache)

		// Gallery
		r.Get("/gallery", galleryHandler.Info)
		r.Post("/gallery/rebuild", galleryHandler.Rebuild)
		r.Get("/gallery/rebuild/{jobId}", galleryHandler.Status)
		r.Get("/gallery/rebuild/{jobId}/events", galleryHandler.Events)
		r.Delete("/gallery/rebuild/{jobId}", galleryHandler.Cancel)

		// Recognition
		r.Post("/classify", classifyHandler.Classify)

		// Attendance
		r.Get("/attendance", attendanceHandler.List)
		r.Post("/attendance", attendanceHandler.Record)
		r.Post("/attendance/manual", attendanceHandler.Manual)
		r.Put("/attendance/{id}/status", attendanceHandler.UpdateStatus)

		// Students
		r.Get("/students", studentsHandler.List)
		r.Get("/students/{id}", studentsHandler.Get)

		// Policy
		r.Get("/policy", policyHandler.Get)
		r.Put("/policy", policyHandler.Update)

		// Cameras
		r.Get("/cameras", camerasHandler.List)
		r.Post("/cameras", camerasHandler.Start)
		r.Delete("/cameras/{id}", camerasHandler.Stop)
	})

	s.router.Get("/video_feed", camerasHandler.VideoFeed)
	s.router.Get("/update_db_faces", galleryHandler.Refresh)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders())
		r.Get("/", s.servePage("index.html"))
		r.Get("/dashboard", s.servePage("dashboard.html"))
	})
}

// servePage serves one of the embedded HTML pages
func (s *Server) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := static.Page(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
