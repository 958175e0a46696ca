package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/proposal-tools-mcp/internal/config"
	"github.com/ironsheep/proposal-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("proposal-tools-mcp - MCP server for region proposals and object detection")
	fmt.Println()
	fmt.Println("Usage: proposal-tools-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config, -c FILE  Load a JSON config file")
	fmt.Println("  --version, -v      Print version information")
	fmt.Println("  --help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  PROPOSAL_MCP_LOG_LEVEL=debug          Log level (debug, info, warn, error)")
	fmt.Println("  PROPOSAL_MCP_MODEL_PATH=model.onnx    Region classifier model")
	fmt.Println("  PROPOSAL_MCP_LABELS_PATH=labels.json  Classifier class names")
	fmt.Println("  PROPOSAL_MCP_ORT_LIBRARY=path         onnxruntime shared library")
	fmt.Println("  PROPOSAL_MCP_TARGET_LABEL=raccoon     Class kept by the detectors")
	fmt.Println("  PROPOSAL_MCP_SEARCH_METHOD=fast       Selective search mode (fast, quality)")
	fmt.Println("  PROPOSAL_MCP_MIN_PROBA=0.99           Detection probability threshold")
	fmt.Println("  PROPOSAL_MCP_OVERLAP_THRESH=0.3       Non-max suppression IoU threshold")
	fmt.Println("  PROPOSAL_MCP_MAX_PROPOSALS=200        Proposals classified per image")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func main() {
	var configPath string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v", "version":
			fmt.Printf("proposal-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		case "--config", "-c":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a file")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown option: %s\n", args[i])
			os.Exit(2)
		}
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("Config error: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		logrus.Fatalf("Config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Config error: %v", err)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Fatalf("Logger error: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("proposal MCP server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, server.WithLogger(logger))
	defer srv.Close()

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		logger.WithError(err).Error("server error")
		srv.Close()
		os.Exit(1)
	}
}
