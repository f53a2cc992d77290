// Command loadtest drives load or smoke checks against a running validator.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"api-rate-validator/internal/loadtest"
	"api-rate-validator/internal/logging"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found")
	}

	fs := pflag.NewFlagSet("loadtest", pflag.ExitOnError)
	concurrent := fs.Int("concurrent", intEnv("CONCURRENT", 10), "concurrent requests")
	total := fs.Int("total", intEnv("TOTAL", 1000), "total requests to send")
	ramp := fs.Int("ramp", intEnv("RAMP", 0), "ramp-up time in seconds (0 for constant load)")
	url := fs.String("url", getenv("API_URL", "http://localhost:3000"), "validator base URL")
	clientID := fs.String("client-id", getenv("CLIENT_ID", "load-test-client"), "value of the client header")
	smoke := fs.Bool("smoke", false, "run the functional smoke checks instead of load")
	ttlWait := fs.Duration("ttl-wait", 2500*time.Millisecond, "smoke: wait that must exceed the server cache TTL")
	logLevel := fs.String("log-level", "info", "log level")
	_ = fs.Parse(os.Args[1:])

	logger, err := logging.New(*logLevel, "console")
	if err != nil {
		log.Fatalf("[fatal] logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := loadtest.NewRunner(loadtest.Config{
		URL:        *url,
		ClientID:   *clientID,
		Concurrent: *concurrent,
		Total:      *total,
		Ramp:       time.Duration(*ramp) * time.Second,
		Progress: func(done, total int, elapsed time.Duration) {
			fmt.Printf("\rProgress: %d/%d requests | %.2f req/s     ", done, total, float64(done)/elapsed.Seconds())
		},
	}, logger)

	color.Blue("\nChecking connection to %s...", *url)
	if err := runner.CheckConnection(ctx); err != nil {
		color.Red("\nCould not connect: %v", err)
		color.Yellow("   Make sure the server is running.\n")
		os.Exit(1)
	}
	color.Green("Connected\n")

	if *smoke {
		results := runner.Smoke(ctx, *ttlWait)
		if loadtest.PrintSmoke(os.Stdout, results) != len(results) {
			os.Exit(1)
		}
		return
	}

	mode := "constant"
	if *ramp > 0 {
		mode = fmt.Sprintf("ramp-up over %ds", *ramp)
	}
	color.Cyan("Starting load test (%s)", mode)
	fmt.Printf("   - Total requests: %d\n   - Concurrency: %d\n   - URL: %s\n   - Client ID: %s\n\n",
		*total, *concurrent, *url, *clientID)
	color.Blue("Start: %s\n", time.Now().UTC().Format(time.RFC3339Nano))

	summary, err := runner.Run(ctx)
	color.Blue("End: %s", time.Now().UTC().Format(time.RFC3339Nano))
	loadtest.PrintReport(os.Stdout, summary)
	if err != nil {
		color.Red("Error during the test: %v", err)
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}
