package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"restaurantrec/internal/models"
)

var (
	serverURL   string
	chatAddress string
	chatTimeout time.Duration
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server",
		Long:  "Interactive chat against the server's /api/v1/chat route. Type /reset to start a new session, exit to quit.",
		Run:   runChat,
	}
	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8000", "Server base URL")
	cmd.Flags().StringVar(&chatAddress, "address", "", "Your location, sent with every message")
	cmd.Flags().DurationVar(&chatTimeout, "timeout", 3*time.Minute, "Per-message timeout")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	client := newAPIClient(serverURL, chatTimeout)
	if err := chatLoop(cmd.Context(), client, os.Stdin, os.Stdout); err != nil {
		exitErr("chat", err)
	}
}

func chatLoop(ctx context.Context, client *apiClient, in io.Reader, out io.Writer) error {
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprintln(out, boldGreen("🍽️  Restaurant Recommendations"))
	fmt.Fprintf(out, "Server: %s\n", boldCyan(serverURL))
	fmt.Fprintln(out, "Type your message and press Enter. Type /reset for a new session or 'exit' to quit.")
	fmt.Fprintln(out)

	var location *models.UserLocation
	if chatAddress != "" {
		location = &models.UserLocation{Address: chatAddress}
	}

	sessionID := ""
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			if sessionID != "" {
				if err := client.DeleteSession(ctx, sessionID); err != nil {
					fmt.Fprintf(out, "%s %v\n", yellow("Could not clear session:"), err)
				}
			}
			sessionID = ""
			fmt.Fprintln(out, faint("Started a new session."))
			continue
		}

		resp, err := client.Chat(ctx, models.ChatRequest{
			Message:   input,
			SessionID: sessionID,
			Location:  location,
		})
		if err != nil {
			fmt.Fprintf(out, "%s %v\n\n", yellow("Error:"), err)
			continue
		}
		sessionID = resp.SessionID

		fmt.Fprintf(out, "%s %s\n", boldCyan("Assistant:"), resp.Message)
		for i, r := range resp.Restaurants {
			fmt.Fprintf(out, "  %d. %s  %s\n", i+1, r.Name, faint(formatRestaurantLine(r)))
		}
		if len(resp.Suggestions) > 0 {
			fmt.Fprintf(out, "%s %s\n", faint("Try:"), faint(strings.Join(resp.Suggestions, " | ")))
		}
		fmt.Fprintln(out)
	}
	return scanner.Err()
}

func formatRestaurantLine(r models.Restaurant) string {
	parts := []string{fmt.Sprintf("%.1f★ (%d reviews)", r.Rating, r.ReviewCount)}
	if r.Price != "" {
		parts = append(parts, r.Price)
	}
	if titles := r.CategoryTitles(); len(titles) > 0 {
		parts = append(parts, strings.Join(titles, ", "))
	}
	return strings.Join(parts, " · ")
}
