package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"flexmailer/batch"
	"flexmailer/composer"
	"flexmailer/flexmailer"
	"flexmailer/internal/audit"
	"flexmailer/internal/config"
	"flexmailer/internal/dkim"
	"flexmailer/internal/headers"
	"flexmailer/internal/logging"
	"flexmailer/internal/metrics"
	"flexmailer/internal/render"
	"flexmailer/storage"
)

var version = "dev"

// errPartial is returned when some recipients could not be composed or
// previewed.
var errPartial = errors.New("some recipients failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errPartial) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flexmailer",
		Short:         "Compose standard bulk-mail headers for mailing batches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newComposeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

type composeOptions struct {
	batchPath string
	outPath   string
	envFile   string
	spool     bool
	sign      bool
}

func newComposeCmd() *cobra.Command {
	var opts composeOptions
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Add List-Unsubscribe, Message-ID, Precedence, job_id, From and Reply-To to a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd.Flags(), &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogDest)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()
			audit.SetLogger(logger)

			return runCompose(cmd.Context(), cfg, opts, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.batchPath, "batch", "-", "Batch JSON file to read (- for stdin)")
	flags.StringVar(&opts.outPath, "out", "-", "Result JSON file to write (- for stdout)")
	flags.StringVar(&opts.envFile, "env-file", "", "Optional dotenv file loaded before reading the environment")
	flags.BoolVar(&opts.spool, "spool", false, "Write a header preview per recipient to the spool directory")
	flags.BoolVar(&opts.sign, "sign", false, "DKIM-sign spooled previews (requires FLEXMAILER_DKIM_* settings)")
	flags.String("spool-dir", "", "Spool directory (overrides FLEXMAILER_SPOOL_DIR)")
	flags.String("localpart", "", "Message-ID localpart (overrides FLEXMAILER_LOCALPART)")
	flags.String("email-domain", "", "Message-ID domain (overrides FLEXMAILER_EMAIL_DOMAIN)")
	flags.String("log-level", "", "Logging level: debug, info, warn, error (overrides FLEXMAILER_LOG_LEVEL)")
	return cmd
}

// applyFlags overrides cfg with the flags the user set explicitly.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	overrides := map[string]*string{
		"spool-dir":    &cfg.SpoolDir,
		"localpart":    &cfg.Localpart,
		"email-domain": &cfg.EmailDomain,
		"log-level":    &cfg.LogLevel,
	}
	for name, target := range overrides {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*target = v
	}
	return nil
}

func runCompose(ctx context.Context, cfg config.Config, opts composeOptions, logger *logrus.Logger, stdin io.Reader, stdout io.Writer) error {
	var signer *dkim.Signer
	if opts.spool && opts.sign {
		s, err := dkim.New(cfg.DKIM)
		if err != nil {
			return err
		}
		if s == nil {
			return errors.New("--sign requires FLEXMAILER_DKIM_SELECTOR and a private key")
		}
		signer = s
	}

	in, closeIn, err := openInput(opts.batchPath, stdin)
	if err != nil {
		return err
	}
	b, err := batch.Decode(in)
	closeIn()
	if err != nil {
		return err
	}

	var events flexmailer.Events
	c := composer.New(headers.VERPMessageID(cfg.Localpart, cfg.EmailDomain, cfg.VERPSeparator), logger)
	if err := flexmailer.NewBasicHeaders(c).Register(&events); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}

	e := b.Event(ctx)
	_ = events.AlterBatch(e)
	if err := ctx.Err(); err != nil {
		return err
	}
	res := batch.NewResult(b, e.Failures())

	if opts.spool {
		spoolPreviews(cfg.SpoolDir, signer, b.Mailing.FromEmail, &res, logger)
	}

	out, closeOut, err := openOutput(opts.outPath, stdout)
	if err != nil {
		return err
	}
	if err := batch.EncodeResult(out, res); err != nil {
		closeOut()
		return fmt.Errorf("write result: %w", err)
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"job_id":   res.JobID,
		"composed": res.Composed,
		"failed":   res.Failed,
	}).Info("batch processed")

	if res.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPartial, res.Failed, len(res.Tasks))
	}
	return nil
}

// spoolPreviews writes one preview per composed task. A task whose preview
// cannot be written is marked failed in res; the others are unaffected.
func spoolPreviews(dir string, signer *dkim.Signer, sender string, res *batch.Result, logger logrus.FieldLogger) {
	storage.SetBaseDir(dir)

	failed := make(map[int64]error)
	for _, tr := range res.Tasks {
		if tr.Headers == nil {
			continue
		}
		path, err := spoolPreview(signer, sender, res.JobID, tr)
		if err != nil {
			metrics.PreviewFailures.Add(1)
			logger.WithFields(logrus.Fields{
				"job_id":         res.JobID,
				"event_queue_id": tr.EventQueueID,
			}).WithError(err).Warn("preview not spooled")
			failed[tr.EventQueueID] = err
			continue
		}
		metrics.PreviewsSpooled.Add(1)
		audit.Log("spooled preview for queue %d at %s", tr.EventQueueID, path)
	}
	for queueID, err := range failed {
		res.Fail(queueID, err)
	}
	logger.WithField("dir", dir).Debug("previews spooled")
}

func spoolPreview(signer *dkim.Signer, sender string, jobID int64, tr batch.TaskResult) (string, error) {
	data, err := render.Render(tr.Headers)
	if err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	if data, err = signer.Sign(data, sender); err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	path, err := storage.SavePreview(jobID, tr.EventQueueID, tr.Address, data)
	if err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	return path, nil
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open batch: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open result: %w", err)
	}
	return f, f.Close, nil
}
