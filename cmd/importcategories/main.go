package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dzrentit/rentit-app-backend/db"
)

// importcategories loads a category tree from a CSV file with the columns
// name,slug,parent_slug,icon. Parents must appear before their children or
// already exist in the database. The whole file is validated before anything
// is written, and the rows are applied in one transaction, so a failed import
// leaves the database untouched. With --dry-run nothing is written at all.
// Existing slugs are skipped unless --update is given.
func main() {
	flag.String("mongo", "mongodb://localhost:27017", "sets the mongo URI")
	flag.String("csv", "", "path to the CSV file to import")
	flag.Bool("dry-run", false, "validate the file without writing anything")
	flag.Bool("update", false, "update categories whose slug already exists")
	flag.Bool("debug", false, "sets log level to debug")

	flag.Parse()

	viper.SetEnvPrefix("RENTIT")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	mongoURI := viper.GetString("mongo")
	csvPath := viper.GetString("csv")
	dryRun := viper.GetBool("dry-run")
	update := viper.GetBool("update")
	debug := viper.GetBool("debug")

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if csvPath == "" {
		log.Fatal().Msg("--csv is required")
	}

	rows, err := readCategoryFile(csvPath)
	if err != nil {
		log.Fatal().Err(err).Msgf("invalid import file %s", csvPath)
	}
	log.Info().Msgf("read %d categories from %s", len(rows), csvPath)

	database, err := db.New(mongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to the database")
	}
	defer func() {
		if err := database.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	ctx := context.Background()
	if err := validateParents(ctx, database.CategoryService, rows); err != nil {
		log.Fatal().Err(err).Msg("import aborted, nothing was written")
	}

	if dryRun {
		log.Info().Msgf("dry run: %d categories validated, nothing written", len(rows))
		return
	}

	created, updated, skipped, err := database.CategoryService.ImportCategories(ctx, rows, update)
	if err != nil {
		log.Fatal().Err(err).Msg("import failed, transaction rolled back, nothing was written")
	}
	log.Info().
		Int("created", created).
		Int("updated", updated).
		Int("skipped", skipped).
		Msg("import complete")
}

// readCategoryFile parses and validates the CSV file. Returns the rows in
// file order. A UTF-8 BOM on the first cell is tolerated.
func readCategoryFile(path string) ([]db.CategorySeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 4
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("file is empty")
	}

	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	header := records[0]
	expected := []string{"name", "slug", "parent_slug", "icon"}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("unexpected header %q, want name,slug,parent_slug,icon", strings.Join(header, ","))
		}
	}

	seen := map[string]int{}
	rows := make([]db.CategorySeed, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		row := db.CategorySeed{
			Name:       strings.TrimSpace(record[0]),
			Slug:       strings.TrimSpace(record[1]),
			ParentSlug: strings.TrimSpace(record[2]),
			Icon:       strings.TrimSpace(record[3]),
			Line:       line,
		}
		if row.Name == "" {
			return nil, fmt.Errorf("line %d: name must not be empty", line)
		}
		if row.Slug == "" {
			return nil, fmt.Errorf("line %d: slug must not be empty", line)
		}
		if prev, ok := seen[row.Slug]; ok {
			return nil, fmt.Errorf("line %d: duplicate slug %q (first seen on line %d)", line, row.Slug, prev)
		}
		seen[row.Slug] = line
		rows = append(rows, row)
	}
	return rows, nil
}

// validateParents checks that every parent_slug resolves to a row earlier in
// the file or to a category already in the database.
func validateParents(ctx context.Context, categories *db.CategoryService, rows []db.CategorySeed) error {
	inFile := map[string]bool{}
	for _, row := range rows {
		if row.ParentSlug != "" && !inFile[row.ParentSlug] {
			if _, err := categories.GetCategoryBySlug(ctx, row.ParentSlug); err != nil {
				if errors.Is(err, db.ErrCategoryNotFound) {
					return fmt.Errorf("line %d: parent slug %q not found in file (before this line) or database", row.Line, row.ParentSlug)
				}
				return err
			}
		}
		inFile[row.Slug] = true
	}
	return nil
}
