package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/activities"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/archives"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/audit"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/documents"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/emailevents"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/filereminders"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/files"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/rules"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// choose between the pool and a transaction per call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rules(db dbx.DBTX) rules.Repository
	Activities(db dbx.DBTX) activities.Repository
	Files(db dbx.DBTX) files.Repository
	Documents(db dbx.DBTX) documents.Repository
	Users(db dbx.DBTX) users.Repository
	Audit(db dbx.DBTX) audit.Repository
	EmailEvents(db dbx.DBTX) emailevents.Repository
	Archives(db dbx.DBTX) archives.Repository
	FileReminders(db dbx.DBTX) filereminders.Repository
}
