package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopback-hub/loopback/internal/knowledge"
	srv "github.com/loopback-hub/loopback/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "loopback"}

	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr == "" {
				serveAddr = os.Getenv("LOOPBACK_HTTP_ADDR")
			}
			return srv.Run(serveAddr, cfgPath)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to config general.listen)")
	serve.Flags().StringVar(&cfgPath, "config", "", "path to config file")

	var migDir string
	var migDirDefault = "file://migrations"
	var direction string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				host := getenv("POSTGRES_HOST", "localhost")
				port := getenv("POSTGRES_PORT", "5432")
				user := os.Getenv("POSTGRES_USER")
				pass := os.Getenv("POSTGRES_PASSWORD")
				db := os.Getenv("POSTGRES_DB")
				ssl := getenv("POSTGRES_SSLMODE", "disable")
				dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
			}
			if migDir == "" {
				migDir = migDirDefault
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDirDefault, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var kbDir string
	var kbCSV string
	var consolidate = &cobra.Command{
		Use:   "consolidate",
		Short: "Merge loose knowledge articles into the knowledge base CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := knowledge.Consolidate(kbDir, kbCSV)
			if err != nil {
				return err
			}
			fmt.Printf("consolidated %d new articles into %s\n", added, kbCSV)
			return nil
		},
	}
	consolidate.Flags().StringVar(&kbDir, "dir", "knowledge", "knowledge directory")
	consolidate.Flags().StringVar(&kbCSV, "csv", "Workplace_IT_Support_Database.csv", "target CSV file name")

	root.AddCommand(serve, migrate, consolidate)
	_ = root.Execute()
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
