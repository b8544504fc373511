package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/pushry/internal/push"
)

var (
	testToken string
	testTitle string
	testBody  string
	testName  string
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test commands",
}

var testSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one test notification to a token",
	Long: `Send a single notification marked as a test to one device token.
Nothing is recorded in the campaign history.

Example:
  pushry test send -c config.yaml --token <fcm-token> --name "Jane Doe"`,
	RunE: runTestSend,
}

func init() {
	testSendCmd.Flags().StringVar(&testToken, "token", "", "device token")
	testSendCmd.Flags().StringVar(&testTitle, "title", "Test notification", "notification title")
	testSendCmd.Flags().StringVar(&testBody, "body", "Hello {firstname}, this is a test", "notification body")
	testSendCmd.Flags().StringVar(&testName, "name", "", "display name used for personalization")
	testSendCmd.MarkFlagRequired("token")

	testCmd.AddCommand(testSendCmd)
	rootCmd.AddCommand(testCmd)
}

func runTestSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	core, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	tmpl := push.MessageTemplate{Title: testTitle, Body: testBody}
	o, err := core.Runner.SendTest(ctx, testToken, tmpl, testName)
	if err != nil {
		return err
	}

	fmt.Printf("Token:   %s (%s)\n", push.TokenPrefix(testToken), push.Classify(testToken))
	fmt.Printf("Mode:    %s\n", core.Config.Dispatch.Mode)

	switch v := o.(type) {
	case push.Delivered:
		fmt.Printf("Result:  delivered\n")
		if v.ReceiptID != "" {
			fmt.Printf("Receipt: %s\n", v.ReceiptID)
		}
		return nil
	case push.InvalidToken:
		return fmt.Errorf("token rejected as invalid: %s", v.Message)
	case push.TransientError:
		return fmt.Errorf("send failed: %s", v.Message)
	}
	return fmt.Errorf("unexpected outcome: %s", push.OutcomeLabel(o))
}
