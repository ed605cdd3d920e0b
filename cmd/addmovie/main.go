package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/JohnDeved/addmovie/internal/client"
	"github.com/JohnDeved/addmovie/internal/config"
	"github.com/JohnDeved/addmovie/internal/logx"
	"github.com/JohnDeved/addmovie/internal/poster"
	"github.com/JohnDeved/addmovie/internal/scrape"
	"github.com/JohnDeved/addmovie/internal/store"
	"github.com/JohnDeved/addmovie/internal/tui"
	"github.com/JohnDeved/addmovie/internal/util"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "addmovie [query...]",
		Short: "Look up movies on IMDb and save them to a local catalogue",
		Long: `addmovie - search IMDb titles through Bing, scrape title, year, rating,
poster and Amazon ASIN, and save the ones you pick.

Without a terminal the query arguments are searched and printed instead.`,
		Args: cobra.ArbitraryArgs,
		RunE: runTUI,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search IMDb and print the scraped records",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().Int("limit", 0, "Maximum number of records to print (0 = all)")
	searchCmd.Flags().Bool("json", false, "Output JSON")

	showCmd := &cobra.Command{
		Use:   "show <tt-id>",
		Short: "Scrape a single title",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	showCmd.Flags().Bool("json", false, "Output JSON")

	saveCmd := &cobra.Command{
		Use:   "save <tt-id>",
		Short: "Scrape a title and save it to the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSave,
	}
	saveCmd.Flags().Bool("replace", false, "Replace the record if it is already saved")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List or search saved titles",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().String("query", "", "Full-text search over saved titles")
	listCmd.Flags().Int("limit", 50, "Maximum number of titles")
	listCmd.Flags().Bool("json", false, "Output JSON")

	deleteCmd := &cobra.Command{
		Use:   "delete <tt-id>",
		Short: "Remove a saved title",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	posterCmd := &cobra.Command{
		Use:   "poster <tt-id>",
		Short: "Download a title's poster image",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoster,
	}
	posterCmd.Flags().StringP("output", "o", "", "Output directory (defaults to poster_dir)")

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-scrape saved titles and update them",
		Args:  cobra.NoArgs,
		RunE:  runRefresh,
	}
	refreshCmd.Flags().Int("older-than", 0, "Only refresh titles not updated for this many days (0 = all)")
	refreshCmd.Flags().Int("workers", 2, "Number of titles to scrape in parallel")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	statsCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(searchCmd, showCmd, saveCmd, listCmd, deleteCmd, posterCmd, refreshCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is the wiring shared by every command.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	client  *client.Client
	scraper *scrape.Scraper
}

func setup(cmd *cobra.Command, log func(level string) zerolog.Logger) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := cfg.LogLevel
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	logger := log(level)

	c := client.New(client.Options{
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.HTTPTimeout(),
		Logger:            logger,
	})
	s := scrape.New(c, scrape.Options{
		SearchURL:   cfg.SearchURL,
		SiteDomain:  cfg.SiteDomain,
		SiteOrigin:  cfg.SiteOrigin,
		PosterCDN:   cfg.PosterCDN,
		ResultCount: cfg.ResultCount,
		Logger:      logger,
	})
	return &env{cfg: cfg, log: logger, client: c, scraper: s}, nil
}

func setupCLI(cmd *cobra.Command) (*env, error) {
	return setup(cmd, logx.Console)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isInteractiveTerminal() {
		if len(args) == 0 {
			return errors.New("not a terminal: pass a query to search, or use a subcommand")
		}
		return runSearch(cmd, args)
	}

	var logFile io.Closer
	e, err := setup(cmd, func(level string) zerolog.Logger {
		logger, f, err := logx.File(level, config.LogPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
			return zerolog.Nop()
		}
		logFile = f
		return logger
	})
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	st, closeStore, err := store.Open(e.cfg, e.log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()

	posters := poster.NewManager(e.client, e.cfg.PosterCDN, e.cfg.PosterDir, 2, e.log)
	defer posters.Close()

	return tui.Run(e.scraper, st, posters, e.log, strings.Join(args, " "))
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	e, err := setupCLI(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	records := e.scraper.Find(ctx, query)
	limit, _ := cmd.Flags().GetInt("limit")
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		if records == nil {
			records = []scrape.Record{}
		}
		out := struct {
			Query   string          `json:"query"`
			Count   int             `json:"count"`
			Results []scrape.Record `json:"results"`
		}{
			Query:   query,
			Count:   len(records),
			Results: records,
		}
		return writeJSON(out)
	}

	if len(records) == 0 {
		fmt.Println("No titles found.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-10s  %-50s  %s\n", r.ID, r.Label(), util.OrDash(r.AmazonID))
	}
	fmt.Fprintf(os.Stderr, "\n%d titles found.\n", len(records))
	return nil
}

// extractArg scrapes the title named by a "tt..." id, bare number or URL.
func extractArg(ctx context.Context, e *env, arg string) (scrape.Record, error) {
	id := scrape.NormalizeID(arg)
	if id == "" {
		return scrape.Record{}, fmt.Errorf("not an IMDb title id: %q", arg)
	}
	rec := e.scraper.Extract(ctx, id)
	if rec == nil {
		return scrape.Record{}, fmt.Errorf("no title found for tt%s", id)
	}
	return *rec, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	e, err := setupCLI(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rec, err := extractArg(ctx, e, args[0])
	if err != nil {
		return err
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		out := struct {
			scrape.Record
			Query     string `json:"query"`
			PosterURL string `json:"poster_url,omitempty"`
		}{
			Record:    rec,
			Query:     rec.Query(),
			PosterURL: rec.PosterURL(e.cfg.PosterCDN),
		}
		return writeJSON(out)
	}

	fmt.Printf("IMDb ID:   %s\n", rec.ID)
	fmt.Printf("Title:     %s\n", rec.Title)
	fmt.Printf("Year:      %s\n", rec.Year)
	fmt.Printf("Type:      %s\n", rec.Type)
	fmt.Printf("Poster:    %s\n", util.OrDash(rec.PosterURL(e.cfg.PosterCDN)))
	fmt.Printf("Amazon ID: %s\n", util.OrDash(rec.AmazonID))
	if rec.Fallback {
		fmt.Println("(parsed from the alternate page layout; poster and ASIN not available)")
	}
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	e, err := setupCLI(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rec, err := extractArg(ctx, e, args[0])
	if err != nil {
		return err
	}

	st, closeStore, err := store.Open(e.cfg, e.log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()

	replace, _ := cmd.Flags().GetBool("replace")
	exists, err := st.Exists(ctx, rec)
	if err != nil {
		return err
	}
	if exists && !replace {
		return fmt.Errorf("%q already in DB (use --replace to overwrite)", rec.Title)
	}
	if err := st.Insert(ctx, rec); err != nil {
		return err
	}
	fmt.Printf("Saved: %s\n", rec.Label())
	return nil
}

// openDB opens the SQLite catalogue for commands that browse it. Other
// backends cannot be listed, so they are refused.
func openDB() (*store.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return openCatalogue(cfg)
}

func openCatalogue(cfg *config.Config) (*store.DB, error) {
	if cfg.Store != config.StoreSQLite {
		return nil, fmt.Errorf("store %q cannot be browsed; set \"store\": %q in %s", cfg.Store, config.StoreSQLite, config.ConfigPath())
	}
	db, err := store.OpenDB(config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("limit")
	ctx := context.Background()

	var saved []store.Saved
	if query != "" {
		saved, err = db.Search(ctx, query, limit)
	} else {
		saved, err = db.List(ctx, limit)
	}
	if err != nil {
		return err
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		if saved == nil {
			saved = []store.Saved{}
		}
		out := struct {
			Query   string        `json:"query,omitempty"`
			Count   int           `json:"count"`
			Results []store.Saved `json:"results"`
		}{
			Query:   query,
			Count:   len(saved),
			Results: saved,
		}
		return writeJSON(out)
	}

	if len(saved) == 0 {
		fmt.Println("No saved titles.")
		return nil
	}
	for _, s := range saved {
		fmt.Printf("%-10s  %-50s  %-12s  %s\n", s.ID, s.Label(), util.OrDash(s.AmazonID), s.LastUpdate.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := scrape.NormalizeID(args[0])
	if id == "" {
		return fmt.Errorf("not an IMDb title id: %q", args[0])
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.Delete(context.Background(), "tt"+id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("tt%s is not saved", id)
	}
	fmt.Printf("Deleted tt%s\n", id)
	return nil
}

func runPoster(cmd *cobra.Command, args []string) error {
	e, err := setupCLI(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rec, err := extractArg(ctx, e, args[0])
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("output")
	if outDir == "" {
		outDir = e.cfg.PosterDir
	}

	m := poster.NewManager(e.client, e.cfg.PosterCDN, outDir, 1, e.log)
	item, started, err := m.Enqueue(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", rec.Label(), err)
	}
	if !started {
		fmt.Printf("Already saved: %s\n", item.DestPath)
		return nil
	}

	fmt.Fprintf(os.Stderr, "Downloading: %s\n", item.URL)
	m.Wait()

	status, errVal := item.State()
	if status == poster.StatusFailed {
		return fmt.Errorf("poster download failed: %w", errVal)
	}
	fmt.Printf("Saved: %s (%s)\n", item.DestPath, util.FormatBytes(item.DoneBytes.Load()))
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	e, err := setupCLI(cmd)
	if err != nil {
		return err
	}
	db, err := openCatalogue(e.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	olderThan, _ := cmd.Flags().GetInt("older-than")
	workers, _ := cmd.Flags().GetInt("workers")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	r := store.NewRefresher(e.scraper, db, time.Duration(olderThan)*24*time.Hour, e.log)
	r.SetWorkers(workers)
	r.SetProgressCallback(func(p store.RefreshProgress) {
		fmt.Fprintf(os.Stderr, "\r  Refreshing: %-10s  [%d/%d  updated: %d  errors: %d]",
			p.Current, p.Processed, p.Total, p.Updated, p.Errors)
	})

	if err := r.Run(ctx); err != nil {
		return err
	}

	p := r.Progress()
	fmt.Fprintf(os.Stderr, "\n\nDone! Refreshed %d of %d titles (%d errors)\n", p.Updated, p.Total, p.Errors)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats(context.Background())
	if err != nil {
		return err
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		out := struct {
			Movies       int    `json:"movies"`
			WithPoster   int    `json:"with_poster"`
			WithAmazonID int    `json:"with_amazon_id"`
			Database     string `json:"database"`
		}{
			Movies:       stats.Movies,
			WithPoster:   stats.WithPoster,
			WithAmazonID: stats.WithAmazonID,
			Database:     config.DBPath(),
		}
		return writeJSON(out)
	}

	fmt.Printf("Store Statistics:\n")
	fmt.Printf("  Titles:      %d\n", stats.Movies)
	fmt.Printf("  With poster: %d\n", stats.WithPoster)
	fmt.Printf("  With ASIN:   %d\n", stats.WithAmazonID)
	fmt.Printf("  Database:    %s\n", config.DBPath())
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isInteractiveTerminal() bool {
	inInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	outInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (inInfo.Mode()&os.ModeCharDevice) != 0 && (outInfo.Mode()&os.ModeCharDevice) != 0
}
