package httpserver

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts every API endpoint under /v1. The router applies the
// cross-cutting middleware; auth runs here so public routes stay open.
func (s *Server) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", s.LoginHandler())
		r.Post("/auth/recover-admin-account", s.RecoverAdminHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)

			r.Post("/sales", s.CommitSaleHandler())
			r.Get("/sales", s.ListSalesHandler())
			r.Post("/sales/{id}/void", s.VoidSaleHandler())

			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", s.ListInventoryHandler())
				r.Get("/movements", s.MovementsHandler())
				r.Post("/batches", s.CreateBatchHandler())
				r.Get("/batches", s.ListBatchesHandler())
				r.Get("/batches/{id}", s.GetBatchHandler())
				r.Put("/batches/{id}", s.EditBatchHandler())
				r.Post("/batches/{id}/void", s.VoidBatchHandler())
				r.Put("/{product_id}", s.SetLevelHandler())
				r.Delete("/{product_id}", s.ClearLevelHandler())
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.ListExpensesHandler())
				r.Post("/", s.CreateExpenseHandler())
				r.Put("/{id}", s.UpdateExpenseHandler())
				r.Delete("/{id}", s.DeleteExpenseHandler())
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", s.ListPaymentsHandler())
				r.Post("/", s.CreatePaymentHandler())
				r.Delete("/{id}", s.DeletePaymentHandler())
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", s.ListProductsHandler())
				r.Post("/", s.CreateProductHandler())
				r.Put("/{id}", s.UpdateProductHandler())
				r.Delete("/{id}", s.DeactivateProductHandler())
			})

			r.Route("/locations", func(r chi.Router) {
				r.Get("/", s.ListBranchesHandler())
				r.Post("/", s.CreateBranchHandler())
				r.Put("/{id}", s.UpdateBranchHandler())
				r.Delete("/{id}", s.DeactivateBranchHandler())
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.ListNotificationsHandler())
				r.Put("/{id}/read", s.MarkNotificationReadHandler())
				r.Route("/rules", func(r chi.Router) {
					r.Get("/", s.ListRulesHandler())
					r.Post("/", s.CreateRuleHandler())
					r.Put("/{id}", s.UpdateRuleHandler())
					r.Delete("/{id}", s.DeleteRuleHandler())
				})
			})

			r.Route("/archive", func(r chi.Router) {
				r.Get("/settings", s.ArchiveSettingsHandler())
				r.Put("/settings", s.UpdateArchiveSettingsHandler())
				r.Post("/run", s.RunArchiveHandler())
				r.Get("/runs", s.ListArchiveRunsHandler())
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.RequireAdmin)
				r.Post("/staff", s.CreateStaffProfileHandler())
				r.Get("/staff", s.ListStaffProfilesHandler())
				r.Delete("/staff/{id}", s.ArchiveStaffProfileHandler())
				r.Post("/users", s.CreateAccountHandler())
				r.Patch("/users/{id}/status", s.SetAccountStatusHandler())
				r.Put("/users/{id}", s.UpdateAccountHandler())
			})
		})
	})
}
