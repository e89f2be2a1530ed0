package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/leaguedraft/go/internal/dbconfig"
	"github.com/mcdev12/leaguedraft/go/internal/roster"
)

func main() {
	file := flag.String("file", "go/internal/assets/players.yaml", "YAML player list")
	league := flag.String("league", "", "league id for -exclude")
	season := flag.String("season", "", "season id for -exclude")
	exclude := flag.String("exclude", "", "comma separated player ids unavailable to -league/-season")
	flag.Parse()

	ctx := context.Background()

	// 1) Load players
	players, err := roster.LoadPlayersFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load players: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	dir := roster.NewPostgresDirectory(pool)
	if err := dir.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 3) Seed players
	affected, err := dir.UpsertPlayers(ctx, players)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed players: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Players seed: total=%d upserted=%d\n", len(players), affected)

	// 4) Optional league season exclusions
	if *exclude == "" {
		return
	}
	leagueID, err := uuid.Parse(*league)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -league: %v\n", err)
		os.Exit(1)
	}
	seasonID, err := uuid.Parse(*season)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -season: %v\n", err)
		os.Exit(1)
	}
	ids, err := parseIDs(*exclude)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -exclude: %v\n", err)
		os.Exit(1)
	}
	if err := dir.Exclude(ctx, leagueID, seasonID, ids...); err != nil {
		fmt.Fprintf(os.Stderr, "exclude players: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exclusions: league=%s season=%s players=%d\n", leagueID, seasonID, len(ids))
}
