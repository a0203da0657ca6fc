package app

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"examhub/internal/app/observability"
	"examhub/internal/auth"
	"examhub/internal/exam"
	"examhub/internal/grading"
	"examhub/internal/question"
	"examhub/internal/report"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	mailer := auth.NewSMTPMailer(auth.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Pass:     cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		StartTLS: cfg.SMTPStartTLS,
	})

	authSvc := auth.NewService(db, auth.ServiceConfig{
		Mailer:  mailer,
		BaseURL: cfg.BaseURL,
	})
	authHandler := auth.NewHandler(authSvc)

	examSvc := exam.NewService(db)
	examHandler := exam.NewHandler(examSvc)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc)

	gradingSvc := grading.NewService(db)
	gradingHandler := grading.NewHandler(gradingSvc)

	reportSvc := report.NewService(db, cfg.PassThresholdPct)
	reportHandler := report.NewHandler(reportSvc)

	r.Use(RouteGate(authHandler))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true,"data":{"service":"examhub"}}`))
	})

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Group(func(pub chi.Router) {
		pub.Use(RateLimitMiddleware(authLimiter))
		pub.Post("/register", authHandler.Register)
		pub.Post("/login", authHandler.Login)
		pub.Post("/auth/verify-otp", authHandler.VerifyOTP)
		pub.Post("/reset-password", authHandler.RequestPasswordReset)
		pub.Post("/reset-password/{token}", authHandler.ResetPassword)
	})
	r.Post("/logout", authHandler.Logout)

	r.Group(func(secure chi.Router) {
		secure.Use(authHandler.RequireAuth)

		secure.Get("/profile", authHandler.Me)
		secure.Post("/profile/2fa/enable", authHandler.EnableTwoFactor)
		secure.Post("/profile/2fa/disable", authHandler.DisableTwoFactor)

		secure.Group(func(student chi.Router) {
			student.Use(authHandler.RequireRoles("student"))
			student.Get("/student/dashboard", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"ok":true,"data":{"page":"student dashboard"}}`))
			})
			student.Get("/student/exams/{id}/take", gradingHandler.TakeExam)
			student.Post("/student/exams/{id}/submit", gradingHandler.Submit)
			student.Get("/student/submissions/{id}/results", gradingHandler.StudentResults)
		})

		secure.Group(func(staff chi.Router) {
			staff.Use(authHandler.RequireRoles("instructor", "admin"))

			staff.Get("/exams", examHandler.List)
			staff.Post("/exams/create", examHandler.Create)
			staff.Get("/exams/{id}", examHandler.Get)
			staff.Post("/exams/{id}/edit", examHandler.Update)
			staff.Post("/exams/schedule/{id}", examHandler.Schedule)
			staff.Post("/exams/{id}/publish", examHandler.Publish)

			staff.Get("/exams/{id}/questions", questionHandler.List)
			staff.Post("/exams/{id}/questions/add", questionHandler.Add)
			staff.Post("/exams/{id}/questions/{questionID}/edit", questionHandler.Edit)
			staff.Post("/exams/{id}/questions/{questionID}/delete", questionHandler.Delete)

			staff.Get("/exams/{id}/submissions", gradingHandler.ListSubmissions)
			staff.Get("/exams/submissions/{id}", gradingHandler.ViewSubmission)
			staff.Post("/exams/submissions/{id}/grade", gradingHandler.ManualGrade)
			staff.Post("/exams/{id}/publish_grades", gradingHandler.PublishGrades)

			staff.Get("/analytics/exams/{id}/report", reportHandler.ExamReport)
			staff.Get("/analytics/exams/{id}/export", reportHandler.ExportExamXLSX)

			staff.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles("admin"))
				admin.Get("/analytics/login-attempts", reportHandler.LoginAttempts)
			})
		})
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))

	return r
}
