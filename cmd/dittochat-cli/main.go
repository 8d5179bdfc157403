// Command dittochat-cli is a line-oriented client for interactive use and
// quick protocol checks against a running server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittochat/pkg/client"
)

const usage = `commands:
  register <username> <password>   create an account (two-phase)
  login <username> <password>      authenticate this connection
  send <recipient> <message...>    send a message
  unread                           show unread message count
  load-unread [n]                  list up to n unread messages (default 5)
  load-read [n]                    list up to n read messages (default 5)
  mark-read <message_id>           mark one message as read
  delete <message_id> [...]        delete messages by id
  accounts                         list all usernames
  delete-account                   delete the logged-in account
  quit                             log out and exit
`

func main() {
	addr := flag.String("addr", "127.0.0.1:5452", "Server address")
	flag.Parse()

	c, err := client.Dial(*addr, client.Options{
		DialTimeout:    10 * time.Second,
		RequestTimeout: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	fmt.Printf("connected to %s\n", *addr)
	fmt.Print(usage)

	// Pushes can arrive at any time, not just between commands.
	go func() {
		for event := range c.Events() {
			fmt.Printf("\n[push] %s\n> ", event.Message)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if run(c, strings.Fields(line)) {
			return
		}
		fmt.Print("> ")
	}
}

// run executes one command line and reports whether the session ended.
func run(c *client.Client, args []string) bool {
	cmd, args := args[0], args[1:]

	switch cmd {
	case "register":
		if len(args) != 2 {
			fmt.Println("usage: register <username> <password>")
			return false
		}
		available, err := c.CreateAccountUsername(args[0])
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if !available {
			fmt.Println("username already exists")
			return false
		}
		if err := c.CreateAccountPassword(args[0], args[1]); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("account created")

	case "login":
		if len(args) != 2 {
			fmt.Println("usage: login <username> <password>")
			return false
		}
		if err := c.Login(args[0], args[1]); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("logged in as", args[0])

	case "send":
		if len(args) < 2 {
			fmt.Println("usage: send <recipient> <message...>")
			return false
		}
		messageID, err := c.SendMessage(args[0], strings.Join(args[1:], " "))
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("sent:", messageID)

	case "unread":
		count, err := c.UnreadCount()
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("%d unread message(s)\n", count)

	case "load-unread", "load-read":
		n := 5
		if len(args) > 0 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil || parsed <= 0 {
				fmt.Println("usage:", cmd, "[n]")
				return false
			}
			n = parsed
		}
		load := c.LoadUnreadMessages
		if cmd == "load-read" {
			load = c.LoadReadMessages
		}
		messages, err := load(n)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if len(messages) == 0 {
			fmt.Println("no messages")
			return false
		}
		for _, m := range messages {
			fmt.Printf("%s  %s  from %s: %s\n",
				m.MessageID, m.Timestamp.Format(time.RFC3339), m.Sender, m.Body)
		}

	case "mark-read":
		if len(args) != 1 {
			fmt.Println("usage: mark-read <message_id>")
			return false
		}
		if err := c.ReadMessage(args[0]); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("marked as read")

	case "delete":
		if len(args) == 0 {
			fmt.Println("usage: delete <message_id> [...]")
			return false
		}
		deleted, err := c.DeleteMessages(args)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("deleted %d message(s)\n", len(deleted))

	case "accounts":
		accounts, err := c.ListAccounts()
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		for _, name := range accounts {
			fmt.Println(name)
		}

	case "delete-account":
		if err := c.DeleteAccount(); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("account deleted")

	case "quit":
		if err := c.Quit(); err != nil {
			fmt.Println("error:", err)
		}
		fmt.Println("bye")
		return true

	default:
		fmt.Print(usage)
	}

	return false
}
