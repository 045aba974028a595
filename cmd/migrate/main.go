package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"passgate.org/internal/config"
	"passgate.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	config.LoadDotenv()
	var (
		dsn            = flag.String("dsn", os.Getenv("PASSGATE_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory of SQL seeds (default: embedded)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PASSGATE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	migrations, seeds := migrate.Embedded()
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	if *seedsPath != "" {
		seeds = os.DirFS(*seedsPath)
	}
	mgr := migrate.NewManager(db, migrations, seeds)

	var names []string
	switch flag.Arg(0) {
	case "up":
		names, err = mgr.Up(ctx)
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		names = []string{name}
	case "seed":
		names, err = mgr.Seed(ctx)
	case "status":
		names, err = mgr.Status(ctx)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, item := range names {
		fmt.Println(item)
	}
}
