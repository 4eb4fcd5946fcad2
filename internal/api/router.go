package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router mounts every endpoint on a chi router.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(s.log))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)
		r.Get("/version", s.HandleVersion)
		r.Get("/connect/{address}", s.HandleConnect)

		r.Route("/karma", func(r chi.Router) {
			r.Get("/supply", s.HandleSupply)
			r.Get("/{address}/balance", s.HandleBalance)
			r.Get("/{owner}/allowance/{spender}", s.HandleAllowance)
		})
		r.Get("/settlement/{address}", s.HandleSettlement)
		r.Get("/paymaster", s.HandlePaymaster)

		r.Route("/content", func(r chi.Router) {
			r.Get("/", s.HandleListContent)
			r.Get("/owners/{owner}/count", s.HandleContentCount)
			r.Get("/owners/{owner}/tokens/{index}", s.HandleTokenOfOwner)
			r.Get("/{id}", s.HandleContent)
			r.Get("/{id}/owner", s.HandleContentOwner)
		})

		r.Route("/stake", func(r chi.Router) {
			r.Get("/search", s.HandleSearchUsers)
			r.Get("/{address}/incoming", s.HandleIncomingStakes)
			r.Get("/{address}/outgoing", s.HandleOutgoingStakes)
			r.Get("/{address}/name", s.HandleUserName)
			r.Get("/{address}/pic", s.HandleUserPic)
			r.Get("/{address}/profile", s.HandleUserProfile)
			r.Get("/{address}/connected", s.HandleUserConnected)
		})

		r.Get("/events", s.HandleEvents)
		r.Get("/audit", s.HandleAudit)
		r.Post("/tx", s.HandleSubmitTx)
		r.Post("/relay", s.HandleSubmitRelay)
		r.Get("/logs", s.HandleLogs)

		r.Get("/backups", s.HandleBackupsList)
		r.Post("/backups", s.HandleCreateBackup)
		r.Get("/backups/snapshot", s.HandleSnapshotDownload)

		r.Get("/docs", s.HandleDocs)
	})

	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeWS(s.store))
	}
	return r
}
