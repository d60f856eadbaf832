package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/papermes/internal/app"
	"github.com/dvloznov/papermes/internal/config"
	"github.com/dvloznov/papermes/internal/firefly"
	"github.com/dvloznov/papermes/internal/logger"
	"github.com/dvloznov/papermes/internal/receipt"
	"github.com/dvloznov/papermes/internal/tools"
)

const commandTimeout = 5 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "accounts":
		runAccounts(os.Args[2:])
	case "account":
		runAccount(os.Args[2:])
	case "analyze":
		runAnalyze(os.Args[2:])
	case "post":
		runPost(os.Args[2:])
	case "withdraw":
		runSplit(firefly.TransactionKindWithdrawal, os.Args[2:])
	case "deposit":
		runSplit(firefly.TransactionKindDeposit, os.Args[2:])
	case "transfer":
		runSplit(firefly.TransactionKindTransfer, os.Args[2:])
	case "delete":
		runDelete(os.Args[2:], false)
	case "delete-journal":
		runDelete(os.Args[2:], true)
	case "upload":
		runUpload(os.Args[2:])
	case "prompt":
		runPrompt(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("papermes - receipt bookkeeping for Firefly III")
	fmt.Println("\nUsage:")
	fmt.Println("  papermes <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  accounts         List ledger accounts")
	fmt.Println("  account          Show one ledger account by ID")
	fmt.Println("  analyze          Analyze a receipt image (local path or gs:// URI)")
	fmt.Println("  post             Create transactions from a JSON batch file")
	fmt.Println("  withdraw         Book an expense from an asset account")
	fmt.Println("  deposit          Book income into an asset account")
	fmt.Println("  transfer         Move money between asset accounts")
	fmt.Println("  delete           Delete a transaction group by ID")
	fmt.Println("  delete-journal   Delete a single transaction journal by ID")
	fmt.Println("  upload           Upload a receipt image to the configured bucket")
	fmt.Println("  prompt           Render a prompt from the catalog")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nRun 'papermes <command> -h' for more information on a command.")
	fmt.Println("\nSettings come from config.yml, .env and PAPERMES_* environment variables.")
}

// cli bundles what every subcommand needs after flag parsing.
type cli struct {
	log zerolog.Logger
	app *app.App
}

// setup loads settings and wires the services. ledger reports whether the
// command talks to Firefly III.
func setup(configFile string, ledger bool) *cli {
	settings, err := config.Load(config.Options{ConfigFile: configFile})
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewFromConfig(settings.App.LogLevel, settings.App.LogFormat)

	if ledger {
		if err := settings.RequireLedger(); err != nil {
			log.Fatal().Err(err).Msg("Ledger is not configured")
		}
	}

	a, err := app.New(settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	return &cli{log: log, app: a}
}

func (c *cli) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	return logger.WithContext(ctx, c.log), cancel
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to config file (default: search for config.yml)")
}

func runAccounts(args []string) {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	cfgPath := configFlag(fs)
	fs.Parse(args)

	c := setup(*cfgPath, true)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	accts, err := c.app.Accounts.Fetch(ctx)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to list accounts")
	}
	printJSON(os.Stdout, accts)
}

func runAccount(args []string) {
	fs := flag.NewFlagSet("account", flag.ExitOnError)
	cfgPath := configFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: papermes account [-config FILE] ACCOUNT_ID")
		os.Exit(2)
	}

	c := setup(*cfgPath, true)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	err := firefly.WithClient(ctx, c.app.Ledger, func(ctx context.Context, client *firefly.Client) error {
		acc, err := client.GetAccount(ctx, firefly.ID(fs.Arg(0)))
		if err != nil {
			return err
		}
		printJSON(os.Stdout, acc)
		return nil
	})
	if err != nil {
		c.log.Fatal().Err(err).Str("account_id", fs.Arg(0)).Msg("Failed to get account")
	}
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cfgPath := configFlag(fs)
	post := fs.Bool("post", false, "Store the extracted transactions in the ledger")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: papermes analyze [-config FILE] [-post] IMAGE")
		os.Exit(2)
	}

	c := setup(*cfgPath, true)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	analyzer, err := c.app.Analyzer(ctx)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to create analyzer")
	}

	analysis, err := analyzer.Analyze(ctx, fs.Arg(0))
	if err != nil {
		c.log.Fatal().Err(err).Msg("Analysis failed")
	}

	out := struct {
		Analysis *receipt.Analysis `json:"analysis"`
		Results  []tools.Result    `json:"results,omitempty"`
	}{Analysis: analysis}

	failed := false
	if *post {
		out.Results = analyzer.Post(ctx, analysis, c.app.Tools)
		for _, res := range out.Results {
			if !res.Success {
				failed = true
			}
		}
	}
	printJSON(os.Stdout, out)
	if failed {
		os.Exit(1)
	}
}

func runPost(args []string) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	cfgPath := configFlag(fs)
	file := fs.String("file", "", "JSON file with {\"transactions\": [...], \"group_title\": \"...\"} ('-' for stdin)")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: papermes post [-config FILE] -file BATCH.json")
		os.Exit(2)
	}

	batch, err := readArgs(*file)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to read batch")
	}

	c := setup(*cfgPath, true)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	res := c.app.Tools.CreateTransactionsFromArgs(ctx, batch)
	printJSON(os.Stdout, res)
	if !res.Success {
		os.Exit(1)
	}
}

// runSplit books a single withdrawal, deposit or transfer. Accounts are given by
// id, except the revenue side of a deposit which is given by name.
func runSplit(kind firefly.TransactionKind, args []string) {
	fs := flag.NewFlagSet(string(kind), flag.ExitOnError)
	cfgPath := configFlag(fs)
	amount := fs.String("amount", "", "Amount, e.g. 12.50")
	description := fs.String("description", "", "Transaction description")
	from := fs.String("from", "", "Source account ID (revenue account name for deposit)")
	to := fs.String("to", "", "Destination account ID")
	date := fs.String("date", "", "Date as YYYY-MM-DD (default: today)")
	category := fs.String("category", "", "Category name")
	budget := fs.String("budget", "", "Budget name")
	notes := fs.String("notes", "", "Notes")
	tags := fs.String("tags", "", "Comma-separated tags")
	title := fs.String("title", "", "Group title")
	fs.Parse(args)

	if *amount == "" || *description == "" || *from == "" || *to == "" {
		fmt.Fprintf(os.Stderr, "Usage: papermes %s [-config FILE] -amount N -description TEXT -from SRC -to DST [options]\n", kind)
		os.Exit(2)
	}

	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Str("amount", *amount).Msg("Invalid amount")
	}
	opts, err := splitOptions(*date, *category, *budget, *notes, *tags, *title)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid options")
	}

	c := setup(*cfgPath, true)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	err = firefly.WithClient(ctx, c.app.Ledger, func(ctx context.Context, client *firefly.Client) error {
		group, err := bookSplit(ctx, client, kind, amt, *description, *from, *to, opts)
		if err != nil {
			return err
		}
		printJSON(os.Stdout, group)
		return nil
	})
	if err != nil {
		c.log.Fatal().Err(err).Str("kind", string(kind)).Msg("Failed to create transaction")
	}
}

func splitOptions(date, category, budget, notes, tags, title string) (firefly.SplitOptions, error) {
	opts := firefly.SplitOptions{
		CategoryName: category,
		BudgetName:   budget,
		Notes:        notes,
		GroupTitle:   title,
	}
	if date != "" {
		d, err := firefly.ParseDate(date)
		if err != nil {
			return opts, err
		}
		opts.Date = &d
	}
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			opts.Tags = append(opts.Tags, tag)
		}
	}
	return opts, nil
}

func bookSplit(ctx context.Context, client *firefly.Client, kind firefly.TransactionKind, amount decimal.Decimal, description, from, to string, opts firefly.SplitOptions) (*firefly.TransactionGroup, error) {
	switch kind {
	case firefly.TransactionKindWithdrawal:
		return client.CreateWithdrawal(ctx, amount, description, firefly.ID(from), firefly.ID(to), opts)
	case firefly.TransactionKindDeposit:
		return client.CreateDeposit(ctx, amount, description, from, firefly.ID(to), opts)
	case firefly.TransactionKindTransfer:
		return client.CreateTransfer(ctx, amount, description, firefly.ID(from), firefly.ID(to), opts)
	default:
		return nil, fmt.Errorf("bookSplit: unsupported kind %q", kind)
	}
}

func runDelete(args []string, journal bool) {
	name, what := "delete", "transaction group"
	if journal {
		name, what = "delete-journal", "transaction journal"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := configFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: papermes %s [-config FILE] ID\n", name)
		os.Exit(2)
	}

	c := setup(*cfgPath, true)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	id := firefly.ID(fs.Arg(0))
	err := firefly.WithClient(ctx, c.app.Ledger, func(ctx context.Context, client *firefly.Client) error {
		if journal {
			return client.DeleteTransactionJournal(ctx, id)
		}
		return client.DeleteTransactionGroup(ctx, id)
	})
	if err != nil {
		c.log.Fatal().Err(err).Str("id", string(id)).Msg("Delete failed")
	}
	fmt.Printf("Deleted %s %s\n", what, id)
}

func runUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	cfgPath := configFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: papermes upload [-config FILE] IMAGE")
		os.Exit(2)
	}

	c := setup(*cfgPath, false)
	defer c.app.Close()
	ctx, cancel := c.context()
	defer cancel()

	uri, err := c.app.Images.UploadFile(ctx, fs.Arg(0))
	if err != nil {
		c.log.Fatal().Err(err).Str("file", fs.Arg(0)).Msg("Upload failed")
	}
	fmt.Println(uri)
}

func runPrompt(args []string) {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	cfgPath := configFlag(fs)
	argsFile := fs.String("args", "", "JSON file with prompt arguments")
	list := fs.Bool("list", false, "List available prompts")
	fs.Parse(args)

	if !*list && fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: papermes prompt [-config FILE] [-args ARGS.json] NAME | -list")
		os.Exit(2)
	}

	promptArgs := map[string]any{}
	if *argsFile != "" {
		var err error
		if promptArgs, err = readArgs(*argsFile); err != nil {
			boot := logger.New()
			boot.Fatal().Err(err).Msg("Failed to read prompt arguments")
		}
	}

	// Ledger settings are optional: without them the developer prompt lists no accounts.
	c := setup(*cfgPath, false)
	defer c.app.Close()

	if *list {
		printJSON(os.Stdout, c.app.Tools.Prompts())
		return
	}

	ctx, cancel := c.context()
	defer cancel()

	out, err := c.app.Tools.RenderPrompt(ctx, fs.Arg(0), promptArgs)
	if err != nil {
		c.log.Fatal().Err(err).Str("prompt", fs.Arg(0)).Msg("Failed to render prompt")
	}
	fmt.Println(out)
}

// readArgs decodes a JSON object from path, or stdin when path is "-".
// Numbers are kept as json.Number so amounts keep their exact digits.
func readArgs(path string) (map[string]any, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("readArgs: open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("readArgs: decode %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
