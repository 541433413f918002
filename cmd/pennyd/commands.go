package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/penny-assistant/penny/internal/calendar"
	"github.com/penny-assistant/penny/internal/config"
	"github.com/penny-assistant/penny/internal/lists"
	"github.com/penny-assistant/penny/internal/retrieval"
)

// envelope mirrors the wire shape of a capability result.
type envelope[T any] struct {
	Outcome    string `json:"outcome"`
	ServedBy   string `json:"served_by"`
	Payload    T      `json:"payload"`
	Diagnostic string `json:"diagnostic"`
}

// warnDegraded tells the user when a response came from a fallback tier.
func warnDegraded(outcome, servedBy string) {
	if outcome == "degraded" {
		printWarning("served by fallback tier %q", servedBy)
	}
}

func cliClient() *apiClient {
	loader := config.Load(configPath, nil)
	return newAPIClient(loader.Snapshot())
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from your stored context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		owner, _ := cmd.Flags().GetString("owner")

		resp, err := cliClient().post(context.Background(), "/v1/query", map[string]string{
			"question": question,
			"owner_id": owner,
		})
		if err != nil {
			return err
		}

		var result envelope[retrieval.QueryResult]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)

		fmt.Println(result.Payload.Answer)
		if len(result.Payload.Sources) > 0 {
			fmt.Printf("\n%s %s\n", colorize(colorBold, "Sources:"), strings.Join(result.Payload.Sources, ", "))
		}
		return nil
	},
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add content to your stored context",
	Long: `Add content to your stored context.

Examples:
  pennyd ingest --text "I prefer window seats on long flights"
  pennyd ingest --file ./tax-return-2025.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		owner, _ := cmd.Flags().GetString("owner")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		client := cliClient()

		if file != "" {
			resp, err := client.post(context.Background(), "/v1/documents", map[string]string{
				"path":     file,
				"owner_id": owner,
			})
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued document %s", result["id"])
			return nil
		}

		resp, err := client.post(context.Background(), "/v1/context", map[string]string{
			"content":  text,
			"owner_id": owner,
			"source":   "cli",
		})
		if err != nil {
			return err
		}
		var result envelope[retrieval.StoreResult]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)
		printSuccess("Stored %d chunk(s)", result.Payload.StoredCount)
		return nil
	},
}

// --- lists ---

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Manage your lists",
}

var listsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all lists with their items",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		resp, err := cliClient().get(context.Background(), "/v1/lists?owner_id="+owner)
		if err != nil {
			return err
		}

		var result envelope[[]lists.List]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)

		if len(result.Payload) == 0 {
			fmt.Println("No lists found.")
			return nil
		}
		for _, l := range result.Payload {
			fmt.Printf("\n%s  %s\n", colorize(colorBold, l.Name), colorize(colorCyan, shortID(l.ID)))
			for _, item := range l.Items {
				fmt.Printf("  - %s\n", item)
			}
		}
		return nil
	},
}

var listsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		resp, err := cliClient().post(context.Background(), "/v1/lists", map[string]string{
			"owner_id": owner,
			"name":     args[0],
		})
		if err != nil {
			return err
		}

		var result envelope[string]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)
		printSuccess("Created list %s", result.Payload)
		return nil
	},
}

var listsSetCmd = &cobra.Command{
	Use:   "set <id> <item>...",
	Short: "Replace a list's items",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := cliClient().put(context.Background(), "/v1/lists/"+args[0]+"/items", map[string]any{
			"items": args[1:],
		})
		if err != nil {
			return err
		}

		var result envelope[string]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)
		printSuccess("Updated list %s", args[0])
		return nil
	},
}

var listsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := cliClient().delete(context.Background(), "/v1/lists/"+args[0])
		if err != nil {
			return err
		}

		var result envelope[string]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)
		printSuccess("Deleted list %s", args[0])
		return nil
	},
}

// --- events ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage calendar events",
}

var eventsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show upcoming events",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		max, _ := cmd.Flags().GetInt("max")

		resp, err := cliClient().get(context.Background(), fmt.Sprintf("/v1/calendar/events?owner_id=%s&max=%d", owner, max))
		if err != nil {
			return err
		}

		var result envelope[[]calendar.Event]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)

		if len(result.Payload) == 0 {
			fmt.Println("No upcoming events.")
			return nil
		}
		for _, ev := range result.Payload {
			line := fmt.Sprintf("%s  %s", ev.Start.Local().Format("Mon Jan 2 15:04"), ev.Title)
			if ev.Location != "" {
				line += "  @ " + ev.Location
			}
			fmt.Println(line)
		}
		return nil
	},
}

var eventsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		startStr, _ := cmd.Flags().GetString("start")
		location, _ := cmd.Flags().GetString("location")

		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return fmt.Errorf("invalid --start (want RFC 3339, e.g. 2026-09-01T10:00:00Z): %w", err)
		}

		resp, err := cliClient().post(context.Background(), "/v1/calendar/events", map[string]any{
			"owner_id": owner,
			"title":    args[0],
			"start":    start,
			"location": location,
		})
		if err != nil {
			return err
		}

		var result envelope[calendar.Event]
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		warnDegraded(result.Outcome, result.ServedBy)
		printSuccess("Created event %s", result.Payload.ID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("owner", "default", "owner id")

	ingestCmd.Flags().String("text", "", "text content to store")
	ingestCmd.Flags().String("file", "", "file path to ingest (PDF or plain text)")
	ingestCmd.Flags().String("owner", "default", "owner id")

	listsShowCmd.Flags().String("owner", "default", "owner id")
	listsCreateCmd.Flags().String("owner", "default", "owner id")
	listsCmd.AddCommand(listsShowCmd)
	listsCmd.AddCommand(listsCreateCmd)
	listsCmd.AddCommand(listsSetCmd)
	listsCmd.AddCommand(listsDeleteCmd)

	eventsShowCmd.Flags().String("owner", "default", "owner id")
	eventsShowCmd.Flags().Int("max", 5, "maximum number of events")
	eventsAddCmd.Flags().String("owner", "default", "owner id")
	eventsAddCmd.Flags().String("start", "", "start time, RFC 3339")
	eventsCmd.AddCommand(eventsShowCmd)
	eventsCmd.AddCommand(eventsAddCmd)
}
