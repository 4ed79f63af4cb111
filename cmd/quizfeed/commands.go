package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/quizfeed/internal/config"
)

// --- feed ---

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Fetch the next batch of questions",
	Long: `Fetch the next batch of questions from the running engine.

Examples:
  quizfeed feed
  quizfeed feed --count 5 --answers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		showAnswers, _ := cmd.Flags().GetBool("answers")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/feed?count=%d", count))
		if err != nil {
			return err
		}

		var result struct {
			Items []struct {
				ID         string   `json:"id"`
				Text       string   `json:"text"`
				Answer     string   `json:"answer"`
				Choices    []string `json:"choices"`
				Topic      string   `json:"topic"`
				Difficulty string   `json:"difficulty"`
			} `json:"items"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Items) == 0 {
			fmt.Println("No questions available yet — the pool is refilling.")
			return nil
		}

		for i, item := range result.Items {
			header := fmt.Sprintf("%d. [%s]", i+1, item.Topic)
			fmt.Printf("\n%s %s\n", colorize(colorBold, header), item.Text)
			for j, choice := range item.Choices {
				fmt.Printf("   %c) %s\n", 'a'+j, choice)
			}
			if showAnswers && item.Answer != "" {
				fmt.Printf("   %s %s\n", colorize(colorGreen, "answer:"), item.Answer)
			}
			fmt.Printf("   %s\n", colorize(colorCyan, "id: "+item.ID))
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().Int("count", 8, "number of questions to fetch")
	feedCmd.Flags().Bool("answers", false, "show answers alongside questions")
}

// --- answer / skip ---

func postEvent(cmd *cobra.Command, itemID, outcome string, timeSpentMs int64) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	body := map[string]any{
		"item_id":       itemID,
		"outcome":       outcome,
		"time_spent_ms": timeSpentMs,
	}
	resp, err := client.post(cmd.Context(), "/events", body)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	printSuccess("Recorded %s for %s", outcome, itemID)
	return nil
}

var answerCmd = &cobra.Command{
	Use:   "answer <item-id>",
	Short: "Record an answer to a question",
	Long: `Record an answer outcome for a served question.

Examples:
  quizfeed answer q-123 --correct
  quizfeed answer q-123 --incorrect --time 12000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		correct, _ := cmd.Flags().GetBool("correct")
		incorrect, _ := cmd.Flags().GetBool("incorrect")
		timeSpent, _ := cmd.Flags().GetInt64("time")

		if correct == incorrect {
			return fmt.Errorf("exactly one of --correct or --incorrect is required")
		}

		outcome := "correct"
		if incorrect {
			outcome = "incorrect"
		}
		return postEvent(cmd, args[0], outcome, timeSpent)
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip <item-id>",
	Short: "Record a skipped question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeSpent, _ := cmd.Flags().GetInt64("time")
		return postEvent(cmd, args[0], "skipped", timeSpent)
	},
}

func init() {
	answerCmd.Flags().Bool("correct", false, "the answer was correct")
	answerCmd.Flags().Bool("incorrect", false, "the answer was incorrect")
	answerCmd.Flags().Int64("time", 0, "time spent on the question in milliseconds")
	skipCmd.Flags().Int64("time", 0, "time spent before skipping in milliseconds")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect the interest profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current interest profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profileSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending profile changes to the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/session/background", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Profile synced")
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSyncCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
