// Package server exposes the ledger over HTTP: document upload into the
// extraction pipeline, read access to the three collections, and the edit
// entry points. The server holds no state of its own; every mutation goes
// through the ledger.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"invoicedesk/internal/extraction"
	"invoicedesk/internal/ledger"
	"invoicedesk/internal/logger"
)

// Server wires the ledger and the extractor behind a gin router.
type Server struct {
	ledger    *ledger.Ledger
	extractor extraction.Extractor
	router    *gin.Engine
	log       zerolog.Logger
}

// New creates a Server. The extractor may be nil, in which case document
// upload is unavailable but ingestion of pre-extracted payloads and all
// read/edit endpoints still work.
func New(l *ledger.Ledger, ex extraction.Extractor) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		ledger:    l,
		extractor: ex,
		router:    gin.New(),
		log:       logger.WithComponent("server"),
	}
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	{
		api.POST("/extract", s.handleExtract)
		api.POST("/invoices", s.handleIngest)

		api.GET("/invoices", s.handleListInvoices)
		api.GET("/products", s.handleListProducts)
		api.GET("/customers", s.handleListCustomers)

		api.PATCH("/invoices/:id", s.handleEditInvoice)
		api.PATCH("/products/:id", s.handleEditProduct)
		api.PATCH("/customers/:id", s.handleEditCustomer)
	}
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Router exposes the underlying gin engine (used by tests and by Run).
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP on the given address until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("HTTP server listening")
	return s.router.Run(addr)
}
