// ABOUTME: Entry point for convo-gateway
// ABOUTME: Serves the conversation API and provides setup and maintenance commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/convo-gateway/internal/auth"
	"github.com/2389/convo-gateway/internal/config"
	"github.com/2389/convo-gateway/internal/gateway"
	"github.com/2389/convo-gateway/internal/logging"
	"github.com/2389/convo-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ ___  _ ____   _____         __ _  __ _| |_ _____      ____ _ _   _
 / __/ _ \| '_ \ \ / / _ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| (_) | | | \ V / (_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___\___/|_| |_|\_/ \___/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                 |___/                             |___/
`

func usage() {
	fmt.Println("Usage: convo-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                    Start the gateway server")
	fmt.Println("  init [--output PATH]                     Write a config file with defaults")
	fmt.Println("  token --username NAME --password PASS    Issue a JWT for a user")
	fmt.Println("  user add --username NAME --password PASS [--superuser]")
	fmt.Println("                                           Create a user")
	fmt.Println("  health                                   Check gateway health")
	fmt.Println()
	fmt.Println("The config file is read from $CONVO_CONFIG or ./config.yaml.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "user":
		err = runUser(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and installs it as the process config.
// Commands read it back through config.Get.
func loadConfig() (string, error) {
	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return configPath, fmt.Errorf("loading config: %w", err)
	}
	config.Set(cfg)
	return configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	configPath, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := config.Get()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logger.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.HTTP.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Data.DatabaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Upstream:  %s\n", cfg.RevChatGPT.BaseURL())
	green.Print("    ▶ ")
	fmt.Printf("History:   ")
	if cfg.Data.MongoDBURL != "" {
		cyan.Println("mongodb")
	} else {
		gray.Println("memory")
	}
	if cfg.RevChatGPT.AccessToken == "" {
		yellow.Println("    ! revchatgpt.access_token is empty; upstream calls will be rejected")
	}
	if cfg.Common.CreateInitialAdminUser && cfg.Common.InitialAdminUserPassword == config.Default().Common.InitialAdminUserPassword {
		yellow.Println("    ! initial admin uses the default password; change it after first login")
	}
	fmt.Println()

	logger.Info("starting convo-gateway",
		"version", version,
		"config", configPath,
		"http_addr", cfg.HTTP.Addr(),
	)

	gw, err := gateway.New(ctx, nil, logger.Logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	cfg := config.Get()

	url := fmt.Sprintf("http://%s/health/ready", cfg.HTTP.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// openStore opens the same database serve uses, without store logging.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return gateway.OpenStore(cfg, slog.New(slog.DiscardHandler))
}

// runToken issues a JWT for a user after checking their password.
func runToken(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, map[string]bool{"username": true, "password": true})
	if err != nil {
		return err
	}
	username, password := flags["username"], flags["password"]
	if username == "" {
		return errors.New("--username flag is required")
	}
	if password == "" {
		return errors.New("--password flag is required")
	}

	if _, err := loadConfig(); err != nil {
		return err
	}
	cfg := config.Get()
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := auth.Authenticate(ctx, s, username, password)
	if err != nil {
		return err
	}

	lifetime := cfg.Auth.JWTLifetime()
	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(user.ID, lifetime)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	fmt.Println(token)
	return nil
}

// runUser handles "user add".
func runUser(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return errors.New("usage: convo-gateway user add --username NAME --password PASS [--superuser]")
	}

	flags, err := parseFlags(args[1:], map[string]bool{"username": true, "password": true, "superuser": false})
	if err != nil {
		return err
	}
	username := strings.TrimSpace(flags["username"])
	if username == "" {
		return errors.New("--username flag is required")
	}
	_, superuser := flags["superuser"]

	if _, err := loadConfig(); err != nil {
		return err
	}
	cfg := config.Get()
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := gateway.CreateUser(ctx, s, username, flags["password"], superuser)
	if err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created user %s (%s)", user.Username, user.ID)
	if user.IsSuperuser {
		color.New(color.FgYellow).Print(" [superuser]")
	}
	fmt.Println()
	return nil
}

// runInit writes a config file populated with defaults and a random JWT secret.
func runInit(args []string) error {
	flags, err := parseFlags(args, map[string]bool{"output": true})
	if err != nil {
		return err
	}
	outputFile := flags["output"]
	if outputFile == "" {
		outputFile = config.DefaultPath()
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("convo-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.Default()

	fmt.Println("\n--- HTTP ---")
	cfg.HTTP.Host = prompt(reader, "Listen host", cfg.HTTP.Host)
	if port := prompt(reader, "Listen port", fmt.Sprint(cfg.HTTP.Port)); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &cfg.HTTP.Port); err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
	}

	fmt.Println("\n--- Data ---")
	cfg.Data.DatabaseURL = prompt(reader, "SQLite database path", cfg.Data.DatabaseURL)
	cfg.Data.MongoDBURL = prompt(reader, "MongoDB URL for history (empty keeps it in memory)", "")

	fmt.Println("\n--- Upstream ---")
	cfg.RevChatGPT.ChatGPTBaseURL = prompt(reader, "Backend API base URL", config.DefaultChatGPTBaseURL)
	cfg.RevChatGPT.AccessToken = prompt(reader, "Access token", "")

	fmt.Println("\n--- Initial admin ---")
	cfg.Common.InitialAdminUserUsername = prompt(reader, "Admin username", cfg.Common.InitialAdminUserUsername)
	cfg.Common.InitialAdminUserPassword = prompt(reader, "Admin password", cfg.Common.InitialAdminUserPassword)

	secret, err := randomSecret()
	if err != nil {
		return err
	}
	cfg.Auth.JWTSecret = secret
	if cfg.Auth.UserSecret, err = randomSecret(); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Save(outputFile); err != nil {
		return err
	}

	dataDir := filepath.Dir(cfg.Data.DatabaseURL)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	green.Printf("  ✓ Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Println("  convo-gateway serve")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// parseFlags parses "--name value", "--name=value" and bare boolean flags.
// known maps each accepted flag to whether it takes a value.
func parseFlags(args []string, known map[string]bool) (map[string]string, error) {
	out := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		takesValue, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !takesValue {
			if hasValue {
				return nil, fmt.Errorf("--%s does not take a value", name)
			}
			out[name] = "true"
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		out[name] = value
	}
	return out, nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
