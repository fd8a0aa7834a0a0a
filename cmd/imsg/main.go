package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/imsglab/imsg/internal/app"
	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/chatdb"
	"github.com/imsglab/imsg/internal/config"
	"github.com/imsglab/imsg/internal/engine"
	"github.com/imsglab/imsg/internal/home"
	"github.com/imsglab/imsg/internal/journal"
	"github.com/imsglab/imsg/internal/resolve"
	"go.uber.org/fx"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "config file path (default ~/.imsg/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	hoursFlag := flag.Int("hours", 24, "time window in hours")
	contactFlag := flag.String("contact", "", "narrow to one correspondent (name, phone or email)")
	thresholdFlag := flag.Int("threshold", 70, "minimum similarity score for search")
	groupFlag := flag.Bool("group", false, "send to a group chat by its identifier")
	verboseFlag := flag.Bool("verbose", false, "print engine events to stderr")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return 1
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = home.ConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	var (
		eng   *engine.Engine
		jnl   *journal.Journal
		evBus *bus.Bus
	)
	fxApp := fx.New(
		app.Module(app.Params{Config: *cfg}),
		fx.Populate(&eng, &jnl, &evBus),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = fxApp.Stop(stopCtx)
	}()

	if *verboseFlag {
		events, unsub := evBus.Subscribe("", 64)
		defer unsub()
		go func() {
			for evt := range events {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", evt.Timestamp.Format("15:04:05.000"), evt.Kind)
			}
		}()
	}

	ctx, opCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer opCancel()

	code := 0
	switch args[0] {
	case "recent":
		code = cmdRecent(ctx, eng, *hoursFlag, *contactFlag, *jsonFlag)
	case "unread":
		code = cmdUnread(ctx, eng, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: imsg search <term>")
			code = 1
			break
		}
		code = cmdSearch(ctx, eng, strings.Join(args[1:], " "), *hoursFlag, *thresholdFlag, *jsonFlag)
	case "chats":
		code = cmdChats(ctx, eng, *jsonFlag)
	case "contacts":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: imsg contacts <name>")
			code = 1
			break
		}
		code = cmdContacts(ctx, eng, strings.Join(args[1:], " "), *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: imsg send <recipient> <message>")
			code = 1
			break
		}
		code = cmdSend(ctx, eng, args[1], strings.Join(args[2:], " "), *groupFlag, *jsonFlag)
	case "check":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: imsg check <recipient>")
			code = 1
			break
		}
		code = cmdCheck(ctx, eng, args[1], *jsonFlag)
	case "doctor":
		code = cmdDoctor(ctx, eng, jnl, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		code = 1
	}
	return code
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: imsg [--json] [--hours <n>] [--contact <ref>] [--threshold <n>] [--group] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  recent               Show messages from the time window")
	fmt.Fprintln(os.Stderr, "  unread               Show unread incoming messages (best effort)")
	fmt.Fprintln(os.Stderr, "  search <term>        Fuzzy-search message bodies")
	fmt.Fprintln(os.Stderr, "  chats                List known conversations")
	fmt.Fprintln(os.Stderr, "  contacts <name>      Find directory contacts by name")
	fmt.Fprintln(os.Stderr, "  send <to> <message>  Send a message")
	fmt.Fprintln(os.Stderr, "  check <recipient>    Probe iMessage availability")
	fmt.Fprintln(os.Stderr, "  doctor               Run access diagnostics")
}

func cmdRecent(ctx context.Context, eng *engine.Engine, hours int, contact string, jsonOut bool) int {
	msgs, err := eng.RecentMessages(ctx, hours, contact)
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return outputJSON(msgs)
	}
	if len(msgs) == 0 {
		fmt.Println("No messages in the window.")
		return 0
	}
	printMessages(msgs)
	return 0
}

func cmdUnread(ctx context.Context, eng *engine.Engine, jsonOut bool) int {
	msgs, err := eng.UnreadMessages(ctx)
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return outputJSON(msgs)
	}
	if len(msgs) == 0 {
		fmt.Println("No unread messages.")
		return 0
	}
	printMessages(msgs)
	return 0
}

func cmdSearch(ctx context.Context, eng *engine.Engine, term string, hours, threshold int, jsonOut bool) int {
	results, err := eng.SearchMessages(ctx, term, hours, threshold)
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return outputJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return 0
	}
	for _, r := range results {
		fmt.Printf("[%3d] %s  %s: %s\n", r.Score, r.Message.SentAt.Format("2006-01-02 15:04"), senderLabel(r.Message), firstLine(r.Message.Body))
	}
	return 0
}

func cmdChats(ctx context.Context, eng *engine.Engine, jsonOut bool) int {
	chats, err := eng.ListChats(ctx)
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return outputJSON(chats)
	}
	if len(chats) == 0 {
		fmt.Println("No conversations found.")
		return 0
	}
	for _, c := range chats {
		fmt.Printf("%-40s %-12s %s\n", c.Name, c.Service, c.ExternalID)
	}
	return 0
}

func cmdContacts(ctx context.Context, eng *engine.Engine, name string, jsonOut bool) int {
	ranked, err := eng.FindContact(ctx, name)
	if err != nil && ranked == nil {
		return fail(err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (serving cached directory)\n", err)
	}
	if jsonOut {
		return outputJSON(ranked)
	}
	if len(ranked) == 0 {
		fmt.Println("No matching contacts.")
		return 0
	}
	for i, c := range ranked {
		fmt.Printf("%d. %s (score %d)\n", i+1, c.Contact.Name, c.Score)
		for _, p := range c.Contact.Phones {
			fmt.Printf("   phone: %s\n", p)
		}
		for _, e := range c.Contact.Emails {
			fmt.Printf("   email: %s\n", e)
		}
	}
	return 0
}

func cmdSend(ctx context.Context, eng *engine.Engine, recipient, body string, group, jsonOut bool) int {
	out, err := eng.SendMessage(ctx, recipient, body, group)

	var ambiguous *resolve.AmbiguousError
	if errors.As(err, &ambiguous) {
		fmt.Fprintf(os.Stderr, "recipient %q is ambiguous:\n", recipient)
		for i, c := range ambiguous.Candidates {
			fmt.Fprintf(os.Stderr, "  %d. %s <%s>\n", i+1, c.Name, c.Address)
		}
		fmt.Fprintln(os.Stderr, "re-run with \"candidate <n>\" as the recipient to choose one")
		return 1
	}
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return outputJSON(out)
	}
	fmt.Printf("Delivered to %s via %s\n", out.Target, out.Channel)
	return 0
}

func cmdCheck(ctx context.Context, eng *engine.Engine, recipient string, jsonOut bool) int {
	ok, err := eng.CheckIMessageAvailability(ctx, recipient)
	if err != nil {
		return fail(err)
	}
	if jsonOut {
		return outputJSON(map[string]bool{"imessage_available": ok})
	}
	if ok {
		fmt.Printf("%s is reachable over iMessage\n", recipient)
	} else {
		fmt.Printf("%s is not reachable over iMessage (SMS fallback would be used)\n", recipient)
	}
	return 0
}

func cmdDoctor(ctx context.Context, eng *engine.Engine, jnl *journal.Journal, jsonOut bool) int {
	store := eng.CheckStoreAccess()
	dir := eng.CheckDirectoryAccess(ctx)
	entries, jerr := jnl.Recent(5)

	if jsonOut {
		return outputJSON(map[string]any{
			"store":     store,
			"directory": dir,
			"journal":   entries,
		})
	}

	fmt.Printf("message store:      %s\n", diagLine(store))
	fmt.Printf("contact directory:  %s\n", diagLine(dir))
	if jerr != nil {
		fmt.Printf("delivery journal:   error: %v\n", jerr)
	} else {
		fmt.Printf("delivery journal:   ok, %d recent sends\n", len(entries))
		for _, e := range entries {
			status := "failed"
			if e.Delivered {
				status = "delivered via " + e.Channel
			}
			fmt.Printf("  %s  %-20s %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Recipient, status)
		}
	}

	if !store.Reachable || !dir.Reachable {
		return 1
	}
	return 0
}

func diagLine(d engine.Diagnostic) string {
	if d.Reachable {
		return "ok (" + d.Detail + ")"
	}
	return "UNREACHABLE: " + d.Detail
}

func printMessages(msgs []chatdb.Message) {
	for _, m := range msgs {
		dir := "from"
		if m.Outgoing {
			dir = "to"
		}
		fmt.Printf("%s  %s %s: %s\n", m.SentAt.Format("2006-01-02 15:04"), dir, senderLabel(m), firstLine(m.Body))
		for _, a := range m.Attachments {
			fmt.Printf("    attachment: %s (%s)\n", a.Filename, a.MimeType)
		}
	}
}

func senderLabel(m chatdb.Message) string {
	if m.Sender != "" {
		return m.Sender
	}
	return "(unknown)"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func fail(err error) int {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", verr)
		return 2
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func outputJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return 1
	}
	return 0
}
