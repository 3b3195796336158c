// slidectl is the control CLI for slidebridged.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"slidebridge/internal/config"
	"slidebridge/internal/ipc"
)

var (
	configPath = flag.String("config", "", "path to config file")
	timeout    = flag.Duration("timeout", 5*time.Second, "request timeout")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	switch cmd := flag.Arg(0); cmd {
	case "status":
		cmdStatus()
	case "next":
		cmdNavigate(1)
	case "prev":
		cmdNavigate(-1)
	case "focus-comment", "focus":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: slidectl focus-comment <ordinal>")
			os.Exit(1)
		}
		ordinal, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad ordinal: %s\n", flag.Arg(1))
			os.Exit(1)
		}
		cmdFocus(ordinal)
	case "read-notes", "notes":
		cmdNotes()
	case "refresh":
		cmdRefresh()
	case "log":
		count := 20
		if flag.NArg() >= 2 {
			n, err := strconv.Atoi(flag.Arg(1))
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "Bad count: %s\n", flag.Arg(1))
				os.Exit(1)
			}
			count = n
		}
		cmdLog(count)
	case "ping":
		cmdPing()
	case "shutdown":
		cmdShutdown()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `slidectl - Control utility for slidebridged

Usage: slidectl [options] <command> [args]

Commands:
  status                 Show bridge state: attachment, slide, comments, notes
  next                   Move the editor to the next slide
  prev                   Move the editor to the previous slide
  focus-comment <n>      Move input focus to the Nth comment card
  read-notes             Print the current slide's speaker notes
  refresh                Force a re-read of the current slide and announce it
  log [n]                Print the newest diagnostics journal entries
  ping                   Check the daemon is responding
  shutdown               Ask the daemon to stop
  help                   Show this help message

Options:
  -config <path>   Path to config file (default: platform data dir)
  -timeout <dur>   Request timeout (default: 5s)`)
}

func dial() *ipc.Client {
	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	client, err := ipc.Dial(cfg.IPC, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot reach slidebridged: %v\n", err)
		fmt.Fprintln(os.Stderr, "Is the daemon running? Start it with 'slidebridged run'.")
		os.Exit(1)
	}
	return client
}

func cmdStatus() {
	client := dial()
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		fail(err)
	}

	fmt.Printf("slidebridged %s, up %s\n", st.Version, time.Duration(st.UptimeSec)*time.Second)
	if !st.Attached {
		fmt.Println("Not attached to an editor")
		return
	}
	fmt.Printf("Presentation: %s\n", st.Presentation)
	fmt.Printf("Slide %d, %d comments (%d active, %d resolved, %d closed, %d unknown; %s)\n",
		st.SlideIndex, st.CommentCount, st.Active, st.Resolved, st.Closed, st.Unknown, st.Freshness)
	if st.NotesPresent {
		fmt.Println("Speaker notes present")
	}
}

func cmdNavigate(direction int) {
	client := dial()
	defer client.Close()

	slide, err := client.Navigate(direction)
	if err != nil {
		fail(err)
	}
	fmt.Println(slide.Announcement)
}

func cmdFocus(ordinal int) {
	client := dial()
	defer client.Close()

	res, err := client.FocusComment(ordinal)
	if err != nil {
		fail(err)
	}
	switch res.Status {
	case "ok":
		fmt.Printf("Focused comment %d\n", ordinal)
	default:
		fmt.Printf("Comment %d not focused: %s\n", ordinal, res.Status)
		os.Exit(1)
	}
}

func cmdNotes() {
	client := dial()
	defer client.Close()

	notes, err := client.ReadNotes()
	if err != nil {
		fail(err)
	}
	if notes.Text == "" {
		fmt.Println("No notes on this slide")
		return
	}
	fmt.Println(notes.Text)
}

func cmdRefresh() {
	client := dial()
	defer client.Close()

	slide, err := client.Refresh()
	if err != nil {
		fail(err)
	}
	fmt.Println(slide.Announcement)
}

func cmdLog(count int) {
	client := dial()
	defer client.Close()

	events, err := client.RecentEvents(count)
	if err != nil {
		fail(err)
	}
	if len(events) == 0 {
		fmt.Println("No journal entries (is journaling enabled?)")
		return
	}
	for _, ev := range events {
		ts := time.Unix(0, ev.TimestampNs).Format(time.RFC3339)
		line := fmt.Sprintf("%s  #%-5d %-18s %s", ts, ev.Seq, ev.Kind, ev.Window)
		if ev.SlideIndex > 0 {
			line += fmt.Sprintf(" slide %d", ev.SlideIndex)
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}
}

func cmdPing() {
	client := dial()
	defer client.Close()

	start := time.Now()
	if err := client.Ping(); err != nil {
		fail(err)
	}
	fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
}

func cmdShutdown() {
	client := dial()
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		fail(err)
	}
	fmt.Println("Shutdown requested")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
