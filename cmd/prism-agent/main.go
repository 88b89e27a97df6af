package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/go-json-experiment/json"
	"github.com/sourcegraph/conc/pool"

	"github.com/prism/prism/internal/agentrpc"
	"github.com/prism/prism/pkg/clog"
)

const version = "0.1.0"

var (
	app = kingpin.New("prism-agent", "Connect a coding agent to a prism server")

	serverURL = app.Flag("server", "Prism server URL").Envar("PRISM_SERVER_URL").Default("http://localhost:3100").String()
	apiKey    = app.Flag("api-key", "API key").Envar("PRISM_API_KEY").Required().String()
	agentID   = app.Flag("agent-id", "Agent ID").Envar("PRISM_AGENT_ID").Required().String()
	verbose   = app.Flag("verbose", "Enable debug logs").Short('v').Bool()

	listenCmd      = app.Command("listen", "Register, keep a heartbeat and print dispatched commands")
	listenInterval = listenCmd.Flag("heartbeat-interval", "Heartbeat interval").Default("30s").Duration()

	reportCmd     = app.Command("report", "Send one status report")
	reportTaskID  = reportCmd.Arg("task-id", "Task ID").Required().String()
	reportStatus  = reportCmd.Arg("status", "Reported status, e.g. IN_PROGRESS, GENERATED, DONE").Required().String()
	reportDetails = reportCmd.Flag("details", "Progress details").String()
	reportBranch  = reportCmd.Flag("branch", "Git branch").String()
	reportCommit  = reportCmd.Flag("commit", "Git commit hash").String()
	reportPRURL   = reportCmd.Flag("pr-url", "Pull request URL").String()

	heartbeatCmd = app.Command("heartbeat", "Send one heartbeat")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(clog.NewTextHandler(os.Stderr, clog.WithLevel(level)))))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := agentrpc.NewClient(agentrpc.NewHTTPClient(*apiKey), *serverURL)

	var err error
	switch command {
	case listenCmd.FullCommand():
		err = listen(ctx, client, *listenInterval)
	case reportCmd.FullCommand():
		err = report(ctx, client)
	case heartbeatCmd.FullCommand():
		err = heartbeat(ctx, client)
	}
	if err != nil && ctx.Err() == nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func listen(ctx context.Context, client *agentrpc.Client, interval time.Duration) error {
	resp, err := client.RegisterAgent(ctx, &agentrpc.RegisterAgentRequest{AgentID: *agentID, Version: version})
	if err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	slog.Info("registered", "agent_id", *agentID, "message", resp.Message)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := client.Heartbeat(ctx, &agentrpc.HeartbeatRequest{AgentID: *agentID}); err != nil {
					slog.Warn("heartbeat failed", "error", err)
				}
			}
		}
	})
	p.Go(func(ctx context.Context) error {
		return client.Listen(ctx, *agentID, func(msg *agentrpc.DispatchMessage) error {
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		})
	})
	return p.Wait()
}

func report(ctx context.Context, client *agentrpc.Client) error {
	resp, err := client.UpdateTaskStatus(ctx, &agentrpc.UpdateTaskStatusRequest{
		TaskID:        *reportTaskID,
		Status:        *reportStatus,
		Details:       *reportDetails,
		AgentID:       *agentID,
		GitBranch:     *reportBranch,
		GitCommitHash: *reportCommit,
		GitPRURL:      *reportPRURL,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("report rejected: %s", resp.Message)
	}
	color.New(color.FgGreen).Printf("reported %s for task %s\n", *reportStatus, *reportTaskID)
	return nil
}

func heartbeat(ctx context.Context, client *agentrpc.Client) error {
	resp, err := client.Heartbeat(ctx, &agentrpc.HeartbeatRequest{AgentID: *agentID})
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("acknowledged: %t\n", resp.Acknowledged)
	return nil
}
