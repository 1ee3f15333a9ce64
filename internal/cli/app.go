package cli

import (
	"fmt"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
)

// app holds what the maintenance commands share. close waits for pending
// audit writes before the database goes away.
type app struct {
	db      *database.Database
	audit   *audit.Service
	service *circulation.Service
}

func openApp(cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	auditSvc := audit.NewService(auditrepo.NewRepository(db.DB), nil)
	svc, err := circulation.NewService(db,
		circulation.WithPolicy(circulation.PolicyFromConfig(cfg.Library)),
		circulation.WithAuditSink(auditSvc),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{db: db, audit: auditSvc, service: svc}, nil
}

func (a *app) close() {
	a.audit.Wait()
	a.db.Close()
}
