package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/config"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	var (
		dbPath     string
		configFile string
	)
	flag.StringVar(&dbPath, "db", "", "Path to database file (uses config if not specified)")
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.Parse()

	if dbPath == "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			log.Printf("Warning: Failed to load config: %v", err)
			dbPath = "reconcile.db" // fallback
		} else {
			dbPath = cfg.Storage.DatabasePath
			if dbPath == "" {
				dbPath = "reconcile.db" // fallback
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Println("📊 RECONCILIATION AUDIT REPORT")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	// Overall Statistics
	fmt.Println("📈 OVERALL STATISTICS")
	fmt.Println(strings.Repeat("-", 40))

	var totalDecisions, strictCount, fuzzyCount int
	var totalAmount float64

	err = db.QueryRow(`
		SELECT
			COUNT(*) as total_decisions,
			SUM(CASE WHEN pass = 'strict' THEN 1 ELSE 0 END) as strict_count,
			SUM(CASE WHEN pass = 'fuzzy' THEN 1 ELSE 0 END) as fuzzy_count,
			COALESCE(SUM(CAST(amount AS REAL)), 0) as total_amount
		FROM linkage_decisions
	`).Scan(&totalDecisions, &strictCount, &fuzzyCount, &totalAmount)

	if err != nil {
		log.Printf("Error getting stats: %v", err)
	}

	strictRate := 0.0
	if totalDecisions > 0 {
		strictRate = float64(strictCount) / float64(totalDecisions) * 100
	}

	fmt.Printf("Total Linked Decisions: %d\n", totalDecisions)
	fmt.Printf("Strict Matches: %d (%.1f%%)\n", strictCount, strictRate)
	fmt.Printf("Fuzzy Matches: %d\n", fuzzyCount)
	fmt.Printf("Total Amount Linked: $%.2f\n", totalAmount)
	fmt.Println()

	// Run History
	fmt.Println("🔄 RECENT RUNS")
	fmt.Println(strings.Repeat("-", 40))

	rows, err := db.Query(`
		SELECT
			started_at,
			staged,
			strict_matched,
			fuzzy_matched,
			unmatched,
			applied,
			skipped,
			errored,
			dry_run,
			status
		FROM recon_runs
		ORDER BY started_at DESC
		LIMIT 10
	`)
	if err != nil {
		log.Printf("Error getting runs: %v", err)
	} else {
		defer rows.Close()

		fmt.Printf("%-20s %-8s %-16s %-10s %-6s\n", "Date/Time", "Staged", "Matched", "Applied", "Mode")
		fmt.Println(strings.Repeat("-", 70))

		for rows.Next() {
			var startedAt sql.NullString
			var staged, strict, fuzzy, unmatched, applied, skipped, errored, dryRun int
			var status string

			err := rows.Scan(&startedAt, &staged, &strict, &fuzzy, &unmatched, &applied, &skipped, &errored, &dryRun, &status)
			if err != nil {
				continue
			}

			startTime, _ := time.Parse("2006-01-02 15:04:05", startedAt.String)
			matched := fmt.Sprintf("✅%d 🔍%d ❌%d", strict, fuzzy, unmatched)
			mode := "PROD"
			if dryRun == 1 {
				mode = "DRY"
			}

			fmt.Printf("%-20s %-8d %-16s %-10d %-6s\n",
				startTime.Format("2006-01-02 15:04"),
				staged,
				matched,
				applied,
				mode,
			)
		}
	}
	fmt.Println()

	// Per-Source-System Breakdown
	fmt.Println("🏦 BY SOURCE SYSTEM")
	fmt.Println(strings.Repeat("-", 40))

	rows, err = db.Query(`
		SELECT
			source_system,
			COUNT(*) as count,
			SUM(CASE WHEN pass = 'strict' THEN 1 ELSE 0 END) as strict_count,
			COALESCE(SUM(CAST(amount AS REAL)), 0) as total_amount
		FROM linkage_decisions
		GROUP BY source_system
		ORDER BY count DESC
	`)
	if err != nil {
		log.Printf("Error getting system breakdown: %v", err)
	} else {
		defer rows.Close()

		for rows.Next() {
			var system string
			var count, strict int
			var amount float64

			if err := rows.Scan(&system, &count, &strict, &amount); err != nil {
				continue
			}

			fmt.Printf("%-22s %5d decisions (%d strict)  $%.2f\n", system, count, strict, amount)
		}
	}
	fmt.Println()

	// Recent Decisions
	fmt.Println("📝 RECENT DECISIONS")
	fmt.Println(strings.Repeat("-", 40))

	rows, err = db.Query(`
		SELECT
			idempotency_key,
			source_system,
			target_table,
			target_id,
			amount,
			confidence,
			pass,
			applied_at
		FROM linkage_decisions
		ORDER BY applied_at DESC
		LIMIT 10
	`)
	if err != nil {
		log.Printf("Error getting decisions: %v", err)
	} else {
		defer rows.Close()

		for rows.Next() {
			var key, system, table, amount, pass string
			var targetID int64
			var confidence int
			var appliedAt sql.NullString

			err := rows.Scan(&key, &system, &table, &targetID, &amount, &confidence, &pass, &appliedAt)
			if err != nil {
				continue
			}

			passIcon := "✅"
			if pass == "fuzzy" {
				passIcon = "🔍"
			}

			fmt.Printf("\n%s %s\n", passIcon, key)
			fmt.Printf("   %s → %s #%d | $%s\n", system, table, targetID, amount)
			fmt.Printf("   Confidence: %d | Pass: %s | Applied: %s\n", confidence, pass, appliedAt.String)
		}
	}
	fmt.Println()

	// Data Quality Checks
	fmt.Println("🔍 DATA QUALITY CHECKS")
	fmt.Println(strings.Repeat("-", 40))

	// At-most-one-link: no target should carry two decisions.
	var doubleLinked int
	err = db.QueryRow(`
		SELECT COUNT(*)
		FROM (
			SELECT target_id, COUNT(*) as cnt
			FROM linkage_decisions
			GROUP BY target_id
			HAVING cnt > 1
		)
	`).Scan(&doubleLinked)
	if err != nil {
		log.Printf("Error checking double links: %v", err)
	}

	if doubleLinked > 0 {
		fmt.Printf("⚠️  Found %d targets with more than one linked decision\n", doubleLinked)
	} else {
		fmt.Printf("✅ No target carries more than one linked decision\n")
	}

	// Every decision's target should record its back-reference.
	var unmarked int
	err = db.QueryRow(`
		SELECT COUNT(*)
		FROM linkage_decisions d
		JOIN target_records t ON t.id = d.target_id
		WHERE t.existing_link = ''
	`).Scan(&unmarked)
	if err != nil {
		log.Printf("Error checking back-references: %v", err)
	}

	if unmarked > 0 {
		fmt.Printf("⚠️  Found %d decisions whose target lacks a back-reference\n", unmarked)
	} else {
		fmt.Printf("✅ All linked targets carry their back-reference\n")
	}

	fmt.Println()
	fmt.Println("=" + strings.Repeat("=", 60))
}
