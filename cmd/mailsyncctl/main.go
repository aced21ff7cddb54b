// Command mailsyncctl is the operator CLI for mailsyncd: storing the
// Notion integration token, and inspecting/retrying dead-letter messages.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/chenyqthu/mailagent/internal/config"
	"github.com/chenyqthu/mailagent/internal/credentials"
	"github.com/chenyqthu/mailagent/internal/store"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "set-token":
		err = runSetToken()
	case "dead-letters":
		err = runDeadLetters(args[1:])
	case "retry":
		err = runRetry(args[1:])
	case "status":
		err = runStatus()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "mailsyncctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `mailsyncctl manages mailsyncd's credentials and dead-letter queue.

Usage:
  mailsyncctl set-token          Prompt for and store the Notion integration token
  mailsyncctl dead-letters       List dead-lettered messages
  mailsyncctl retry <internal_id> Reset a dead-lettered message back to pending
  mailsyncctl status             Show last checkpoint and dead-letter count`)
}

func runSetToken() error {
	creds, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("credential store unavailable: %w", err)
	}

	fmt.Print("Notion integration token: ")
	reader := bufio.NewReader(os.Stdin)
	token, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	token = trimNewline(token)

	if err := creds.SetNotionToken(token); err != nil {
		return err
	}
	fmt.Println("Notion token stored.")
	return nil
}

func runDeadLetters(args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	limit := 50
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}

	messages, err := st.GetDeadLetters(limit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Println("No dead-lettered messages.")
		return nil
	}
	for _, m := range messages {
		fmt.Printf("%d\t%s\t%s\t%s\n", m.InternalID, m.Subject.String, m.Mailbox, m.SyncError.String)
	}
	return nil
}

func runRetry(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mailsyncctl retry <internal_id>")
	}
	internalID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid internal_id %q: %w", args[0], err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RetryDeadLetter(internalID); err != nil {
		return err
	}
	fmt.Printf("Message %d reset to pending.\n", internalID)
	return nil
}

func runStatus() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	lastMax, err := st.LastMaxRowID()
	if err != nil {
		return err
	}
	deadLetters, err := st.GetDeadLetters(1000)
	if err != nil {
		return err
	}

	fmt.Printf("last_max_row_id: %d\n", lastMax)
	fmt.Printf("dead_letter_count: %d\n", len(deadLetters))
	return nil
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath, store.WithMaxRetries(cfg.MaxRetries))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
