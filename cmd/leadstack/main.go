package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/leadstack/leadstack/internal/api"
	"github.com/leadstack/leadstack/internal/app"
	"github.com/leadstack/leadstack/internal/config"
	"github.com/leadstack/leadstack/internal/realtime"
	"github.com/leadstack/leadstack/internal/session"
	"github.com/leadstack/leadstack/internal/store"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	application, err := app.New(app.Options{
		Config: cfg,
		Logger: log.Default(),
	})
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	ctx := context.Background()
	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "register":
		err = cmdRegister(ctx, application, args)
	case "login":
		err = cmdLogin(ctx, application, args)
	case "logout":
		err = application.Logout()
	case "me":
		err = cmdMe(ctx, application)
	case "leads":
		err = cmdLeads(ctx, application, args)
	case "lead":
		err = cmdLead(ctx, application, args)
	case "dashboard":
		err = cmdDashboard(ctx, application)
	case "users":
		err = cmdUsers(ctx, application)
	case "watch":
		err = cmdWatch(ctx, application)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, api.Message(err, "Command failed"))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: leadstack <command> [flags]

commands:
  register   create an account (prompts for password)
  login      authenticate (prompts for password)
  logout     clear the stored session
  me         show the current identity
  leads      list leads (--page, --search, --status)
  lead <id>  show one lead with its activities
  dashboard  show the aggregate snapshot
  users      list assignable owners
  watch      tail realtime events until interrupted`)
}

func promptCredentials(register bool) (session.Credentials, error) {
	reader := bufio.NewReader(os.Stdin)
	creds := session.Credentials{}
	if register {
		fmt.Print("Name: ")
		name, err := reader.ReadString('\n')
		if err != nil {
			return creds, err
		}
		creds.Name = strings.TrimSpace(name)
	}
	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return creds, err
	}
	creds.Email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return creds, err
	}
	creds.Password = string(password)
	return creds, nil
}

func cmdRegister(ctx context.Context, a *app.App, _ []string) error {
	creds, err := promptCredentials(true)
	if err != nil {
		return err
	}
	user, err := a.Session.Register(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Printf("registered as %s <%s>\n", user.Name, user.Email)
	return nil
}

func cmdLogin(ctx context.Context, a *app.App, _ []string) error {
	creds, err := promptCredentials(false)
	if err != nil {
		return err
	}
	user, err := a.Session.Login(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func cmdMe(ctx context.Context, a *app.App) error {
	user, err := a.Session.FetchProfile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> role=%s\n", user.Name, user.Email, user.Role)
	return nil
}

func cmdLeads(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("leads", flag.ExitOnError)
	page := fs.Int("page", 1, "page number")
	search := fs.String("search", "", "search term")
	status := fs.String("status", "", "status filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.Leads.List(ctx, store.Query{Page: *page, Search: *search, Status: *status})
	if err != nil {
		return err
	}
	for _, lead := range result.Items {
		fmt.Printf("%-12s %-24s %-12s $%.0f\n", lead.ID, lead.FirstName+" "+lead.LastName, lead.Status, lead.EstimatedValue)
	}
	fmt.Printf("page %d/%d, %d total\n", result.Page, result.Pages, result.Total)
	return nil
}

func cmdLead(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("lead id is required")
	}
	id := args[0]
	lead, err := a.Leads.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s <%s> status=%s value=$%.0f\n", lead.FirstName, lead.LastName, lead.Email, lead.Status, lead.EstimatedValue)
	if lead.Company != "" {
		fmt.Printf("company: %s\n", lead.Company)
	}
	if lead.Notes != "" {
		fmt.Printf("notes: %s\n", lead.Notes)
	}

	activities, err := a.Activities.List(ctx, store.Query{LeadID: id})
	if err != nil {
		return err
	}
	for _, act := range activities.Items {
		who := ""
		if act.User != nil {
			who = " by " + act.User.Name
		}
		fmt.Printf("  [%s] %s%s\n", act.Type, act.Title, who)
	}
	return nil
}

func cmdDashboard(ctx context.Context, a *app.App) error {
	snapshot, err := a.Dashboard.Fetch(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("leads: %d  value: $%.0f  this month: %d  conversion: %.1f%%\n",
		snapshot.TotalLeads, snapshot.TotalValue, snapshot.LeadsThisMonth, snapshot.ConversionRate)
	for _, sc := range snapshot.LeadsByStatus {
		fmt.Printf("  %-12s %d\n", sc.Status, sc.Count)
	}
	return nil
}

func cmdUsers(ctx context.Context, a *app.App) error {
	users, err := a.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		fmt.Printf("%-8s %-20s %s\n", user.ID, user.Name, user.Role)
	}
	return nil
}

func cmdWatch(ctx context.Context, a *app.App) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := a.ConnectRealtime(ctx)
	if ch == nil {
		return api.Unauthenticated("")
	}
	defer a.Realtime.Disconnect()

	for _, name := range []string{realtime.EventConnect, realtime.EventDisconnect, "lead-created", "lead-updated", "lead-deleted", "activity-created"} {
		ch.On(name, func(ev realtime.Event) {
			if len(ev.Data) > 0 {
				log.Printf("%s %s", ev.Name, ev.Data)
				return
			}
			log.Print(ev.Name)
		})
	}

	<-ctx.Done()
	return nil
}
