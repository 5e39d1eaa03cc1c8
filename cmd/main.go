package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/observability"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kafeventavro: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := kingpin.New("kafeventavro", "Collapse batches of JSON events into Avro object containers")
	app.HelpFlag.Short('h')
	app.Version(fmt.Sprintf("%s (%s)", version, commit))
	logLevel := app.Flag("log-level", "Log level of the offline commands (debug, info, warn, error)").
		Envar("LOG_LEVEL").Default("info").String()

	// Priority: flag > CONFIG_PATH > default path
	serveCmd := app.Command("serve", "Consume Kafka topics and deliver collapsed containers").Default()
	configPath := serveCmd.Flag("config", "Path to configuration file").
		Envar("CONFIG_PATH").Default("config/application.yaml").String()

	var collapseOpts collapseOptions
	collapseCmd := app.Command("collapse", "Collapse newline-delimited JSON bodies into one Avro container")
	collapseCmd.Flag("schema", "Schema locator (path, file://, http(s)://)").Short('s').Required().StringVar(&collapseOpts.Locator)
	collapseCmd.Flag("envelope-key", "Top-level body key holding the record").Default("gpsrecord").StringVar(&collapseOpts.EnvelopeKey)
	collapseCmd.Flag("codec", "Container block codec (null, deflate, snappy)").Default("deflate").StringVar(&collapseOpts.Codec)
	collapseCmd.Flag("block-length", "Records per container block").Default("100").IntVar(&collapseOpts.BlockLength)
	collapseCmd.Flag("compression", "Whole-file compression (none, gzip, zstd, lz4)").Default("none").StringVar(&collapseOpts.Compression)
	collapseCmd.Flag("skip-invalid", "Drop records that fail to transcode instead of failing").BoolVar(&collapseOpts.SkipInvalid)
	collapseCmd.Flag("http-timeout", "Timeout of http(s) schema downloads").Default("10s").DurationVar(&collapseOpts.HTTPTimeout)
	collapseCmd.Flag("output", "Output file ('-' for stdout)").Short('o').Default("-").StringVar(&collapseOpts.Output)
	collapseCmd.Arg("files", "Input files ('-' or none reads stdin)").StringsVar(&collapseOpts.Inputs)

	var inspectOpts inspectOptions
	inspectCmd := app.Command("inspect", "Print the schema and records of an Avro container")
	inspectCmd.Arg("file", "Container file, optionally compressed").Required().ExistingFileVar(&inspectOpts.Path)
	inspectCmd.Flag("limit", "Maximum records to print; 0 prints all").Default("0").IntVar(&inspectOpts.Limit)
	inspectCmd.Flag("schema-only", "Print the embedded schema instead of records").BoolVar(&inspectOpts.SchemaOnly)

	var generateOpts generateOptions
	generateCmd := app.Command("generate", "Generate synthetic GPS record bodies")
	generateCmd.Flag("count", "Number of events").Short('n').Default("10").IntVar(&generateOpts.Count)
	generateCmd.Flag("envelope-key", "Top-level body key holding the record").Default("gpsrecord").StringVar(&generateOpts.EnvelopeKey)
	generateCmd.Flag("schema-url", "Schema locator set as the CloudEvent dataschema").StringVar(&generateOpts.SchemaURL)
	generateCmd.Flag("optional-percent", "Chance, 0-100, that each optional field is emitted").Default("50").IntVar(&generateOpts.OptionalPercent)
	generateCmd.Flag("cloudevents", "Wrap each body in a structured CloudEvent").BoolVar(&generateOpts.CloudEvents)
	generateCmd.Flag("schema-out", "Also write the GPS record schema to this path").StringVar(&generateOpts.SchemaOut)

	cmd, err := app.Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse command line arguments: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd == serveCmd.FullCommand() {
		return serve(ctx, *configPath)
	}

	logger, err := observability.NewLogger(observability.LoggingConfig{
		Level:  *logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	start := time.Now()
	defer func() {
		logger.Debug("command finished", zap.String("command", cmd), zap.Duration("elapsed", time.Since(start)))
	}()

	switch cmd {
	case collapseCmd.FullCommand():
		return collapseFiles(ctx, collapseOpts, os.Stdin, os.Stdout, logger)
	case inspectCmd.FullCommand():
		return inspectFile(inspectOpts, os.Stdout)
	case generateCmd.FullCommand():
		return generateEvents(generateOpts, os.Stdout, logger)
	default:
		return fmt.Errorf("unimplemented command %q", cmd)
	}
}
