package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	analysisimpl "github.com/foxseedlab/tsuhoban/external/analysis"
	audioimpl "github.com/foxseedlab/tsuhoban/external/audio"
	configloader "github.com/foxseedlab/tsuhoban/external/config"
	gatewayimpl "github.com/foxseedlab/tsuhoban/external/gateway"
	repositoryimpl "github.com/foxseedlab/tsuhoban/external/repository"
	rtcimpl "github.com/foxseedlab/tsuhoban/external/rtc"
	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/call"
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/foxseedlab/tsuhoban/internal/repository"
	"github.com/samber/do/v2"
)

const reportListLimit = 20

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching operator console")
	runConsole(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	gatewayimpl.RegisterDI(injector)
	analysisimpl.RegisterDI(injector)
	rtcimpl.RegisterDI(injector)
	call.RegisterDI(injector)

	return injector
}

func runConsole(injector do.Injector) {
	registry, err := do.Invoke[*call.Registry](injector)
	if err != nil {
		slog.Error("failed to resolve session registry", "error", err)
		os.Exit(1)
	}
	repo, err := do.Invoke[repository.Repository](injector)
	if err != nil {
		slog.Error("failed to resolve repository", "error", err)
		os.Exit(1)
	}
	session := registry.Acquire(&loggingObserver{})
	defer registry.Reset()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	commands := make(chan string)
	go readCommands(commands)

	printHelp()
	for {
		select {
		case <-sigCh:
			slog.Info("shutting down")
			return
		case line, ok := <-commands:
			if !ok {
				return
			}
			if quit := dispatch(session, repo, line); quit {
				return
			}
		}
	}
}

func readCommands(out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out <- line
		}
	}
	close(out)
}

func dispatch(session *call.Session, repo repository.Repository, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]
	ctx := context.Background()

	switch cmd {
	case "join":
		channelName := ""
		if len(args) > 0 {
			channelName = args[0]
		}
		name, err := session.JoinChannel(ctx, channelName)
		if err != nil {
			slog.Error("join failed", "error", err)
			return false
		}
		slog.Info("joined channel", "channel", name, "owner", session.State().IsOwner)
	case "start":
		if err := session.StartCall(); err != nil {
			slog.Error("start failed", "error", err)
			return false
		}
		slog.Info("call started")
	case "stop":
		session.StopCall()
		slog.Info("call stopped")
	case "leave":
		if err := session.LeaveChannel(); err != nil {
			slog.Error("leave failed", "error", err)
			return false
		}
		slog.Info("left channel")
	case "close":
		if err := session.CloseChannel(ctx); err != nil {
			slog.Error("close failed", "error", err)
			return false
		}
		slog.Info("channel closed")
	case "list":
		channels, err := session.ListChannels(ctx)
		if err != nil {
			slog.Error("list failed", "error", err)
			return false
		}
		for _, ch := range channels {
			fmt.Printf("%-30s %s\n", ch.ChannelName, ch.Status)
		}
	case "mute", "unmute":
		if err := session.MuteAudio(cmd == "mute"); err != nil {
			slog.Error("mute failed", "error", err)
		}
	case "pause", "resume":
		if err := session.PauseCall(cmd == "pause"); err != nil {
			slog.Error("pause failed", "error", err)
		}
	case "reconnect":
		name, err := session.ReconnectToChannel(ctx)
		if err != nil {
			slog.Error("reconnect failed", "error", err)
			return false
		}
		slog.Info("reconnected", "channel", name)
	case "analysis":
		if len(args) == 0 {
			fmt.Println("usage: analysis <call_id>")
			return false
		}
		rec, err := repo.GetAnalysisByCallID(ctx, args[0])
		if err != nil {
			slog.Error("analysis lookup failed", "error", err)
			return false
		}
		if rec == nil {
			fmt.Printf("no analysis recorded for %q\n", args[0])
			return false
		}
		fmt.Printf("call=%s prank=%t confidence=%.2f trust=%.2f status=%s\n  reasoning: %s\n  suggestion: %s\n",
			rec.CallID, rec.IsPrankCall, rec.ConfidenceScore, rec.TrustScore,
			rec.CurrentStatus, rec.Reasoning, rec.Suggestion)
	case "reports":
		reports, err := repo.ListReports(ctx, reportListLimit)
		if err != nil {
			slog.Error("report list failed", "error", err)
			return false
		}
		for _, rep := range reports {
			operator := "-"
			if rep.OperatorID != nil {
				if op, err := repo.GetOperator(ctx, *rep.OperatorID); err == nil && op != nil {
					operator = op.Name
				}
			}
			fmt.Printf("%-36s %-10s %-15s %s\n", rep.CallID, rep.Status, operator, rep.Description)
		}
	case "status":
		state := session.State()
		fmt.Printf("joined=%t started=%t owner=%t muted=%t paused=%t channel=%q peers=%v\n",
			state.Joined, state.CallStarted, state.IsOwner, state.Muted, state.Paused,
			state.ChannelName, state.ActivePeers)
	case "help":
		printHelp()
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q, type help\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println(`commands:
  join [channel]   create a channel (no argument) or join an existing one
  start            begin audio processing for all remote peers
  stop             stop audio processing, stay in the channel
  leave            leave the channel
  close            terminate the channel (owner only)
  list             show the channel roster
  mute / unmute    silence the microphone without unpublishing
  pause / resume   unpublish / republish the microphone
  reconnect        rejoin the last channel
  analysis <id>    show the stored AI analysis for a call
  reports          list recent incident reports
  status           print session state
  quit             exit`)
}

// loggingObserver prints everything the session surfaces. A real frontend
// would render these; the console just logs them.
type loggingObserver struct{}

func (loggingObserver) OnError(err error) {
	slog.Error("session error", "error", err)
}

func (loggingObserver) OnSocketMessage(peerID string, msg call.SocketMessage) {
	switch msg.Kind {
	case call.MessageKindBinary:
		slog.Debug("socket message", "peer_id", peerID, "kind", msg.Kind, "size", msg.Size)
	case call.MessageKindError:
		slog.Warn("socket error", "peer_id", peerID, "detail", msg.Detail)
	default:
		slog.Debug("socket message", "peer_id", peerID, "kind", msg.Kind)
	}
}

func (loggingObserver) OnConnectionStatusChange(peerID string, status call.ConnectionStatus) {
	slog.Info("analysis socket status", "peer_id", peerID, "status", status)
}

func (loggingObserver) OnChannelClosed() {
	slog.Info("channel closed")
}

func (loggingObserver) OnHeartbeatStatus(alive bool) {
	slog.Debug("heartbeat", "alive", alive)
}

func (loggingObserver) OnAnalysisReceived(event *analysis.Event) {
	slog.Info("analysis received",
		"call_id", event.CallID,
		"status", event.CurrentStatus,
		"prank", event.Analysis.IsPrankCall,
		"confidence", event.Analysis.ConfidenceScore,
		"suggestion", event.Analysis.Suggestion)
}
