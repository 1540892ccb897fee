package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"dineflow/common/database"
	"dineflow/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <migration_file.sql> [more.sql ...]", os.Args[0])
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	for _, file := range os.Args[1:] {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("Failed to read migration file %s: %v", file, err)
		}
		statements := splitStatements(string(content))
		fmt.Printf("Applying %s (%d statements)\n", file, len(statements))
		for i, stmt := range statements {
			if _, err := db.Exec(stmt); err != nil {
				log.Fatalf("Failed to execute statement %d of %s: %v\nStatement: %s", i+1, file, err, stmt[:min(100, len(stmt))])
			}
		}
		fmt.Printf("Applied %s\n\n", file)
	}

	fmt.Println("Migration completed successfully")
}

// splitStatements splits on ';' after dropping "--" comment lines. Migrations must
// not contain semicolons inside string literals or function bodies.
func splitStatements(sqlContent string) []string {
	var kept []string
	for _, line := range strings.Split(sqlContent, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	var out []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
