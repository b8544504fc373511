package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/pushry/internal/config"
)

var (
	initOutput      string
	initDataDir     string
	initAPIKey      string
	initMode        string
	initProjectID   string
	initCredentials string
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize Pushry configuration",
	Long: `Interactive wizard to create a Pushry configuration file.

Examples:
  # Interactive mode - prompts for missing values
  pushry init

  # Non-interactive
  pushry init --project-id my-app --credentials /etc/pushry/service-account.json

  # Quick setup for testing, nothing leaves the machine
  pushry init --mode sandbox -o test.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/pushry", "Data directory for directory, cohorts and history")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initMode, "mode", "", "Dispatch mode: production, sandbox")
	initCmd.Flags().StringVar(&initProjectID, "project-id", "", "Firebase project id")
	initCmd.Flags().StringVar(&initCredentials, "credentials", "", "Firebase service account file (empty = FIREBASE_* env)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Pushry Configuration Wizard")
	fmt.Println("===========================")
	fmt.Println()

	if initMode == "" {
		initMode = prompt(reader, "Dispatch mode (production, sandbox)", config.ModeProduction)
	}
	if initMode != config.ModeProduction && initMode != config.ModeSandbox {
		return fmt.Errorf("invalid mode: %s", initMode)
	}

	initDataDir = prompt(reader, "Data directory", initDataDir)

	if initMode == config.ModeProduction {
		if initProjectID == "" {
			initProjectID = prompt(reader, "Firebase project id (empty = from service account)", "")
		}
		if initCredentials == "" {
			initCredentials = prompt(reader, "Service account file (empty = FIREBASE_* env)", "")
		}
	}

	if initAPIKey == "" {
		initAPIKey = generateRandomString(32)
		fmt.Printf("  Generated API key: %s\n", initAPIKey)
	}

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	fmt.Println()
	fmt.Println("Creating configuration...")

	if err := os.MkdirAll(initDataDir, 0755); err != nil {
		fmt.Printf("  Warning: Could not create data directory: %v\n", err)
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("  Configuration saved to: %s\n", initOutput)
	fmt.Println()

	printNextSteps()
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig() string {
	fcmSection := `fcm:
  # Credentials are read from FIREBASE_* environment variables
  # credentials_file: "/etc/pushry/service-account.json"
  timeout: 10s`
	if initCredentials != "" || initProjectID != "" {
		fcmSection = fmt.Sprintf(`fcm:
  project_id: "%s"
  credentials_file: "%s"
  timeout: 10s`, initProjectID, initCredentials)
	}

	return fmt.Sprintf(`# Pushry configuration
# Generated by: pushry init

%s

# Raw 64-hex APNs device tokens are sent directly when enabled
apns:
  enabled: false
  # key_file: "/etc/pushry/AuthKey.p8"
  # key_id: ""
  # team_id: ""
  # bundle_id: ""
  # production: true

dispatch:
  mode: %s
  batch_size: 100   # 50..500
  workers: 5        # 1..20
  pace: 10ms         # pause after each send in a batch
  max_rate: 0       # sends per second across all workers, 0 = unlimited
  click_action: "FLUTTER_NOTIFICATION_CLICK"
  force_platform: auto
  sandbox_error_rate: 0

directory:
  path: "%s/directory.db"

storage:
  cohorts_file: "%s/cohorts.json"
  campaigns_file: "%s/campaigns.json"
  sandbox_path: "%s/sandbox.db"

api:
  listen_addr: ":8080"
  api_key: "%s"
  max_header_bytes: 1048576  # 1 MB
  read_timeout: 30s
  write_timeout: 30s
  idle_timeout: 60s

metrics:
  enabled: false
  listen_addr: ":9090"
  path: "/metrics"
  allowed_ips:
    - "127.0.0.1"

logging:
  level: "info"
  format: "json"
`,
		fcmSection,
		initMode,
		initDataDir,
		initDataDir, initDataDir, initDataDir,
		initAPIKey,
	)
}

func printNextSteps() {
	fmt.Println("Next Steps")
	fmt.Println("==========")
	fmt.Println()
	fmt.Println("1. Import agents:")
	fmt.Printf("   pushry agents import -c %s agents.csv\n", initOutput)
	fmt.Println()
	fmt.Println("2. Send a test notification:")
	fmt.Printf("   pushry test send -c %s --token <device-token>\n", initOutput)
	fmt.Println()
	fmt.Println("3. Start the API server:")
	fmt.Printf("   pushry serve -c %s\n", initOutput)
	fmt.Println()
	fmt.Println("4. Send a campaign over the API:")
	fmt.Println("   curl -X POST http://localhost:8080/api/v1/send \\")
	fmt.Printf("     -H \"Authorization: Bearer %s\" \\\n", initAPIKey)
	fmt.Println("     -H \"Content-Type: application/json\" \\")
	fmt.Println(`     -d '{"title": "Hi {firstname}", "body": "New offers", "selection": {"all": true}}'`)
	fmt.Println()
	fmt.Println("Credentials")
	fmt.Println("-----------")
	fmt.Printf("API Key: %s\n", initAPIKey)
	fmt.Println()
}
