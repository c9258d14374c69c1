package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	machinery "github.com/RichardKnop/machinery/v1"
	"github.com/RichardKnop/machinery/v1/tasks"
	"github.com/inconshreveable/go-update"
	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/blankon/submission-relay/internal/config"
	"github.com/blankon/submission-relay/internal/logging"
	"github.com/blankon/submission-relay/internal/monitoring"
	"github.com/blankon/submission-relay/internal/source"
	"github.com/blankon/submission-relay/internal/submission/endpoint"
	"github.com/blankon/submission-relay/internal/submission/model"
	"github.com/blankon/submission-relay/pkg/systemutil"
)

var (
	app     *cli.App
	server  *machinery.Server
	version string

	relayConfig = config.RelayConfig{}
	logger      zerolog.Logger
	counters    = &monitoring.Counters{}
)

func main() {
	var err error
	relayConfig, err = config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't load config")
	}

	logger, err = logging.Setup(relayConfig.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't set up logging")
	}

	if version != "" {
		monitoring.Version = version
	}

	app = cli.NewApp()
	app.Name = "submission-relay"
	app.Usage = "relay assignment submissions to object storage"
	app.Author = "BlankOn Developer"
	app.Email = "blankon-dev@googlegroups.com"
	app.Version = monitoring.Version

	app.Commands = []cli.Command{
		{
			Name:    "worker",
			Aliases: []string{"w"},
			Usage:   "Consume submission events from the queue (default)",
			Action: func(c *cli.Context) error {
				return runWorker()
			},
		},
		{
			Name:      "process",
			Aliases:   []string{"p"},
			Usage:     "Relay an event read from a file, or stdin with -",
			ArgsUsage: "<file|->",
			Action: func(c *cli.Context) error {
				return processFile(c.Args().First())
			},
		},
		{
			Name:  "send",
			Usage: "Queue a single submission",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "email", Usage: "student email"},
				cli.StringFlag{Name: "url, repo", Usage: "artifact URL, a release zip or https://host/owner/repo.git#tag"},
				cli.StringFlag{Name: "tag", Usage: "release tag"},
				cli.BoolFlag{Name: "wait", Usage: "wait for the task result"},
			},
			Action: func(c *cli.Context) error {
				return sendSubmission(c.String("email"), c.String("url"), c.String("tag"), c.Bool("wait"))
			},
		},
		{
			Name:  "audit",
			Usage: "List recent audit records",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit", Value: 20},
				cli.StringFlag{Name: "email", Usage: "filter by student email"},
			},
			Action: func(c *cli.Context) error {
				return listAudit(c.Int("limit"), c.String("email"))
			},
		},
		{
			Name:  "logs",
			Usage: "Print the relay log file",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "follow, f", Usage: "keep streaming new lines"},
			},
			Action: func(c *cli.Context) error {
				if relayConfig.Logging.File == "" {
					return errors.New("logging.file is not configured")
				}
				return systemutil.StreamLog(context.Background(), relayConfig.Logging.File, os.Stdout, c.Bool("follow"))
			},
		},
		{
			Name:  "status",
			Usage: "Show relay workers registered in redis",
			Action: func(c *cli.Context) error {
				return printStatus()
			},
		},
		{
			Name:  "update",
			Usage: "Replace this binary with the one at --url",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "url", Usage: "download URL of the new binary"},
			},
			Action: func(c *cli.Context) error {
				return selfUpdate(c.String("url"))
			},
		},
	}

	app.Action = func(c *cli.Context) error {
		return runWorker()
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("submission-relay failed")
	}
}

func runWorker() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, err := buildRelayApp(ctx, relayConfig, logger)
	if err != nil {
		return fmt.Errorf("could not build relay: %w", err)
	}
	defer relay.Close()

	task := endpoint.NewTaskEndpoint(relay.relay, counters, relayConfig.Notification.WebhookURL)

	var registry *monitoring.Registry
	if relayConfig.Monitoring.Enabled {
		ttl := time.Duration(relayConfig.Monitoring.InstanceTimeout) * time.Second
		registry, err = monitoring.NewRegistry(ctx, relayConfig.Redis, ttl)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create monitoring registry")
		} else {
			defer registry.Close()
			interval := time.Duration(relayConfig.Monitoring.HeartbeatInterval) * time.Second
			go monitoring.StartHeartbeat(ctx, registry, interval, instanceSnapshot(time.Now()))
		}
	}

	go serve(relay.audit, registry)

	server, err = newMachineryServer(relayConfig)
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	if err := server.RegisterTask(endpoint.TaskName, task.Relay); err != nil {
		return fmt.Errorf("could not register task: %w", err)
	}

	worker := server.NewWorker("relay", 1)
	if err := worker.Launch(); err != nil {
		return fmt.Errorf("could not launch worker: %w", err)
	}
	return nil
}

func instanceSnapshot(startTime time.Time) func() monitoring.InstanceInfo {
	instanceID := monitoring.GenerateInstanceID(monitoring.InstanceTypeRelay)
	diskPath := os.TempDir()
	if relayConfig.Audit.Driver == config.AuditDriverSQLite {
		diskPath = relayConfig.Audit.DBPath
	}

	return func() monitoring.InstanceInfo {
		metrics := monitoring.CollectMetrics(diskPath)
		batches, succeeded, failed := counters.Snapshot()

		return monitoring.InstanceInfo{
			InstanceID:       instanceID,
			InstanceType:     monitoring.InstanceTypeRelay,
			Hostname:         monitoring.GetHostname(),
			PID:              os.Getpid(),
			Queue:            relayConfig.Queue,
			StartTime:        startTime,
			BatchesProcessed: batches,
			RecordsSucceeded: succeeded,
			RecordsFailed:    failed,
			MemoryUsage:      metrics.MemoryUsage,
			DiskUsage:        metrics.DiskUsage,
			DiskTotal:        metrics.DiskTotal,
			Version:          monitoring.Version,
		}
	}
}

func serve(audit endpoint.AuditReader, registry *monitoring.Registry) {
	var instances endpoint.InstanceLister
	if registry != nil {
		instances = registry
	}

	handler := endpoint.NewSubmissionHTTPEndpoint(monitoring.Version, audit, instances)
	log.Info().Str("address", relayConfig.Relay.Address).Msg("submission-relay status server now live")
	if err := http.ListenAndServe(relayConfig.Relay.Address, handler.Routes()); err != nil {
		log.Error().Err(err).Msg("status server stopped")
	}
}

func processFile(path string) error {
	if path == "" {
		return errors.New("event file should not be empty, use - for stdin")
	}

	var (
		payload []byte
		err     error
	)
	if path == "-" {
		payload, err = ioutil.ReadAll(os.Stdin)
	} else {
		payload, err = ioutil.ReadFile(path)
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	relay, err := buildRelayApp(ctx, relayConfig, logger)
	if err != nil {
		return fmt.Errorf("could not build relay: %w", err)
	}
	defer relay.Close()

	result, err := endpoint.NewTaskEndpoint(relay.relay, counters, relayConfig.Notification.WebhookURL).Process(ctx, payload)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func sendSubmission(email, artifactURL, tag string, wait bool) (err error) {
	req := model.SubmissionRequest{UserEmail: email, GithubRepo: artifactURL, ReleaseTag: tag}
	for _, field := range submissionFields(&req) {
		if *field.value != "" {
			if err := field.validate(*field.value); err != nil {
				return fmt.Errorf("%s: %w", field.label, err)
			}
			continue
		}
		prompt := promptui.Prompt{
			Label:    field.label,
			Validate: field.validate,
		}
		*field.value, err = prompt.Run()
		if err != nil {
			return err
		}
	}

	payload, err := newEvent(req)
	if err != nil {
		return err
	}

	server, err = newMachineryServer(relayConfig)
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	asyncResult, err := server.SendTask(endpoint.NewRelaySignature(string(payload)))
	if err != nil {
		return fmt.Errorf("could not send task: %w", err)
	}
	fmt.Println("Task ID: " + asyncResult.Signature.UUID)

	if !wait {
		return nil
	}

	results, err := asyncResult.Get(time.Second)
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}
	fmt.Println(tasks.HumanReadableResults(results))
	return nil
}

func listAudit(limit int, email string) error {
	ctx := context.Background()
	a := &relayApp{}
	defer a.Close()

	store, err := openAuditStore(relayConfig.Audit, a)
	if err != nil {
		return err
	}

	records, err := store.Recent(ctx, limit, email)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tSTATUS\tTIMESTAMP")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", record.ID, record.Email, record.Status, record.Timestamp.Format(time.RFC3339))
	}
	return w.Flush()
}

func printStatus() error {
	ctx := context.Background()
	ttl := time.Duration(relayConfig.Monitoring.InstanceTimeout) * time.Second
	registry, err := monitoring.NewRegistry(ctx, relayConfig.Redis, ttl)
	if err != nil {
		return err
	}
	defer registry.Close()

	response, err := registry.GetSummary(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tSTATUS\tBATCHES\tOK\tFAILED\tMEMORY\tLAST HEARTBEAT")
	for _, instance := range response.Instances {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			instance.InstanceID,
			instance.Status,
			instance.BatchesProcessed,
			instance.RecordsSucceeded,
			instance.RecordsFailed,
			monitoring.FormatBytes(instance.MemoryUsage),
			instance.LastHeartbeat.Format(time.RFC3339),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d instances, %d online, %d offline\n",
		response.Summary.Total, response.Summary.Online, response.Summary.Offline)
	return nil
}

func selfUpdate(url string) error {
	if url == "" {
		return errors.New("--url should not be empty")
	}

	log.Info().Str("url", url).Msg("Self-updating...")

	binary, err := source.NewHTTPSource(5*time.Minute, relayConfig.Source.MaxBytes).Fetch(context.Background(), url)
	if err != nil {
		return err
	}

	if err := update.Apply(bytes.NewReader(binary), update.Options{}); err != nil {
		return err
	}

	log.Info().Msg("Updated, restart the relay to use the new binary")
	return nil
}
