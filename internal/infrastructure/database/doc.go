// Package database provides SQLite connectivity for the tour store.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Versioned up/down SQL migrations read from any fs.FS
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
//
// Usage:
//
//	db, err := database.OpenMigrated(ctx, database.ConfigFrom(cfg.Database), migrations.FS)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. New columns must be nullable or carry a
// default so a rollback of the binary keeps working.
package database
