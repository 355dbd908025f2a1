// Package database opens the bridge's SQLite database and applies its
// schema migrations.
//
// The database holds the registered accessories so they survive restarts.
// Connections use WAL mode and a busy timeout; files are created with 0600
// permissions.
//
//	db, err := database.Open(database.Config{Path: "./data/c4bridge.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql / .down.sql and are
// registered through MigrationsFS, normally by importing the migrations
// package for its side effect.
package database
