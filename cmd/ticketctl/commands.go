package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/go-ticket-client/gateway"
	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/internal/utils"
	"github.com/jrsteele09/go-ticket-client/session"
	"github.com/jrsteele09/go-ticket-client/tickets"
	"github.com/jrsteele09/go-ticket-client/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":     loginCmd,
	"logout":    logoutCmd,
	"whoami":    whoamiCmd,
	"watch":     watchCmd,
	"dashboard": dashboardCmd,
	"tickets":   ticketsCmd,
	"users":     usersCmd,
	"sync":      syncCmd,
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	redirect := fs.String("redirect", "", "page to report after sign in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ok, err := a.session.Init(ctx)
	if err != nil {
		return fmt.Errorf("initialise identity provider: %w", err)
	}
	if !ok {
		if err := a.session.Login(ctx, *redirect); err != nil {
			return err
		}
	}
	if _, err := a.reconciler.EnsureUserExists(ctx); err != nil {
		log.Warn().Err(err).Msg("backend user could not be ensured")
	}
	return whoami(a)
}

func logoutCmd(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("logout", pflag.ContinueOnError)
	redirect := fs.String("redirect", "", "post logout redirect target")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.session.Init(ctx); err != nil {
		return err
	}
	if err := a.session.Logout(ctx, *redirect); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

// whoamiCmd prints the signed-in user. When the identity provider cannot be
// reached it falls back to the last persisted session.
func whoamiCmd(ctx context.Context, a *app, _ []string) error {
	ok, err := a.session.Init(ctx)
	if err != nil {
		snap, snapErr := a.session.Snapshot(ctx)
		if snapErr != nil || !snap.Authenticated || snap.User == nil {
			return fmt.Errorf("restore session: %w", err)
		}
		log.Warn().Err(err).Msg("identity provider unreachable, showing last saved session")
		printUser(a.out, snap.User)
		fmt.Fprintf(a.out, "offline: session saved %s\n", snap.SavedAt.Local().Format(time.RFC1123))
		return nil
	}
	if !ok {
		return fmt.Errorf("not signed in, run \"ticketctl login\" first")
	}
	return whoami(a)
}

func whoami(a *app) error {
	s := a.session.Session()
	if s.User == nil {
		return errors.New("no user in session")
	}
	printUser(a.out, s.User)
	if s.Claims != nil {
		fmt.Fprintf(a.out, "token expires in %s\n", s.Claims.ExpiresIn(identity.NowTimeFunc()).Round(time.Second))
	}
	return nil
}

func printUser(w io.Writer, u *identity.User) {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, users.RoleLabel(r))
	}
	fmt.Fprintf(w, "%s (%s) <%s>\nroles: %s\n", u.FullName, u.Username, u.Email, strings.Join(roles, ", "))
}

// watchCmd keeps the session alive with scheduled renewals and polls the
// dashboard until interrupted
func watchCmd(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	addr := fs.String("metrics-addr", ":9464", "address serving /metrics")
	interval := fs.Duration("interval", time.Minute, "dashboard poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return errors.New("watch: --interval must be positive")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	unsubscribe := a.session.Subscribe(func(e session.Event) {
		ev := log.Info().Str("event", string(e.Type))
		if e.User != nil {
			ev = ev.Str("user", e.User.Username)
		}
		ev.Msg("session event")
	})
	defer unsubscribe()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go listenAndServe(server)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	pollDashboard(ctx, a, *interval)

	return shutdown(server)
}

// pollDashboard logs the dashboard counters every interval until ctx is done
func pollDashboard(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !a.session.IsAuthenticated() {
			log.Warn().Msg("session ended, run \"ticketctl login\" to sign in again")
			return
		}
		if d, err := a.tickets.Dashboard(ctx); err != nil {
			log.Warn().Err(err).Msg("dashboard poll")
		} else {
			log.Info().
				Int64("my_tickets", d.MyTicketsCount).
				Int64("assigned_to_me", d.AssignedToMeCount).
				Int64("open", d.MyOpenTickets).
				Int64("in_progress", d.MyInProgressTickets).
				Msg("dashboard")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Msgf("Metrics listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server")
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func dashboardCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	d, err := a.tickets.Dashboard(ctx)
	if err != nil {
		return apiFailure(err)
	}
	return a.printJSON(d)
}

func ticketsCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("tickets: missing subcommand")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	sub, args := args[0], args[1:]
	fs := pflag.NewFlagSet("tickets "+sub, pflag.ContinueOnError)

	var (
		result any
		err    error
	)
	switch sub {
	case "list":
		var f tickets.Filter
		fs.StringVar((*string)(&f.Status), "status", "", "ticket status")
		fs.StringVar((*string)(&f.Priority), "priority", "", "ticket priority")
		fs.StringVar(&f.SearchTerm, "search", "", "search term")
		fs.StringVar(&f.SortBy, "sort", "", "sort field")
		fs.IntVar(&f.Page, "page", 0, "zero based page")
		fs.IntVar(&f.Size, "size", 20, "page size")
		if err := fs.Parse(args); err != nil {
			return err
		}
		result, err = a.tickets.List(ctx, f)
	case "mine":
		result, err = a.tickets.MyTickets(ctx)
	case "assigned":
		result, err = a.tickets.AssignedToMe(ctx)
	case "stats":
		result, err = a.tickets.Statistics(ctx)
	case "get", "close", "reopen", "messages", "attachments":
		id, perr := ticketID(args)
		if perr != nil {
			return perr
		}
		result, err = ticketAction(ctx, a.tickets, sub, id)
	case "create":
		var req tickets.CreateRequest
		fs.StringVar(&req.Title, "title", "", "title")
		fs.StringVar(&req.Description, "description", "", "description")
		fs.StringVar((*string)(&req.Type), "type", string(tickets.TypeAssistance), "ticket type")
		fs.StringVar((*string)(&req.Priority), "priority", string(tickets.PriorityMedium), "priority")
		if err := fs.Parse(args); err != nil {
			return err
		}
		result, err = a.tickets.Create(ctx, req)
	case "update":
		title := fs.String("title", "", "title")
		description := fs.String("description", "", "description")
		status := fs.String("status", "", "status")
		priority := fs.String("priority", "", "priority")
		if err := fs.Parse(args); err != nil {
			return err
		}
		id, perr := ticketID(fs.Args())
		if perr != nil {
			return perr
		}
		result, err = a.tickets.Update(ctx, id, tickets.UpdateRequest{
			Title:       utils.PtrIfSet(*title),
			Description: utils.PtrIfSet(*description),
			Status:      utils.PtrIfSet(tickets.Status(*status)),
			Priority:    utils.PtrIfSet(tickets.Priority(*priority)),
		})
	case "assign":
		team := fs.String("team", "", "team")
		user := fs.String("user", "", "user id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		id, perr := ticketID(fs.Args())
		if perr != nil {
			return perr
		}
		switch {
		case *team != "":
			result, err = a.tickets.AssignTeam(ctx, id, tickets.Team(*team))
		case *user != "":
			result, err = a.tickets.AssignUser(ctx, id, *user)
		default:
			return errors.New("tickets assign: --team or --user is required")
		}
	case "comment":
		id, perr := ticketID(args)
		if perr != nil {
			return perr
		}
		if len(args) < 2 {
			return errors.New("tickets comment: missing text")
		}
		result, err = a.tickets.CreateMessage(ctx, id, strings.Join(args[1:], " "))
	case "uncomment", "detach":
		ids, perr := parseIDs(args, 2)
		if perr != nil {
			return perr
		}
		if sub == "uncomment" {
			err = a.tickets.DeleteMessage(ctx, ids[0], ids[1])
		} else {
			err = a.tickets.DeleteAttachment(ctx, ids[0], ids[1])
		}
	case "attach":
		id, perr := ticketID(args)
		if perr != nil {
			return perr
		}
		if len(args) < 2 {
			return errors.New("tickets attach: missing file")
		}
		f, ferr := os.Open(args[1])
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		result, err = a.tickets.Upload(ctx, id, filepath.Base(args[1]), f)
	case "download":
		out := fs.String("out", "", "output file, stdout when empty")
		if err := fs.Parse(args); err != nil {
			return err
		}
		ids, perr := parseIDs(fs.Args(), 2)
		if perr != nil {
			return perr
		}
		data, derr := a.tickets.Download(ctx, ids[0], ids[1])
		if derr != nil {
			return apiFailure(derr)
		}
		if *out == "" {
			_, err := a.out.Write(data)
			return err
		}
		return utils.WriteFileAtomic(*out, data)
	default:
		return fmt.Errorf("tickets: unknown subcommand %q", sub)
	}

	if err != nil {
		return apiFailure(err)
	}
	if result == nil {
		return nil
	}
	return a.printJSON(result)
}

func ticketAction(ctx context.Context, api *tickets.API, action string, id int64) (any, error) {
	switch action {
	case "get":
		return api.Get(ctx, id)
	case "close":
		return api.Close(ctx, id)
	case "reopen":
		return api.Reopen(ctx, id)
	case "messages":
		return api.Messages(ctx, id)
	default:
		return api.Attachments(ctx, id)
	}
}

func usersCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("users: missing subcommand")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	sub, args := args[0], args[1:]
	fs := pflag.NewFlagSet("users "+sub, pflag.ContinueOnError)

	var (
		result any
		err    error
	)
	switch sub {
	case "me":
		result, err = a.users.Me(ctx)
	case "update-me":
		var first, last, email, phone, company, department string
		fs.StringVar(&first, "first-name", "", "first name")
		fs.StringVar(&last, "last-name", "", "last name")
		fs.StringVar(&email, "email", "", "email")
		fs.StringVar(&phone, "phone", "", "phone number")
		fs.StringVar(&company, "company", "", "company")
		fs.StringVar(&department, "department", "", "department")
		if err := fs.Parse(args); err != nil {
			return err
		}
		result, err = a.users.UpdateMe(ctx, users.UpdateProfileRequest{
			FirstName:   utils.PtrIfSet(first),
			LastName:    utils.PtrIfSet(last),
			Email:       utils.PtrIfSet(email),
			PhoneNumber: utils.PtrIfSet(phone),
			Company:     utils.PtrIfSet(company),
			Department:  utils.PtrIfSet(department),
		})
	case "list":
		role := fs.String("role", "", "filter by role")
		status := fs.String("status", "", "filter by status")
		if err := fs.Parse(args); err != nil {
			return err
		}
		switch {
		case *role != "":
			result, err = a.users.ByRole(ctx, users.Role(strings.ToUpper(*role)))
		case *status != "":
			result, err = a.users.ByStatus(ctx, users.Status(strings.ToUpper(*status)))
		default:
			result, err = a.users.List(ctx)
		}
	case "technicians":
		result, err = a.users.Technicians(ctx)
	case "stats":
		result, err = a.users.Statistics(ctx)
	case "get", "search", "activate", "deactivate":
		if len(args) != 1 {
			return fmt.Errorf("users %s: expected one argument", sub)
		}
		result, err = userAction(ctx, a.users, sub, args[0])
	case "create":
		var req users.CreateRequest
		fs.StringVar(&req.Username, "username", "", "username")
		fs.StringVar(&req.Email, "email", "", "email")
		fs.StringVar(&req.FirstName, "first-name", "", "first name")
		fs.StringVar(&req.LastName, "last-name", "", "last name")
		role := fs.String("role", string(users.RoleUser), "role")
		if err := fs.Parse(args); err != nil {
			return err
		}
		req.Role = users.Role(strings.ToUpper(*role))
		result, err = a.users.Create(ctx, req)
	case "set-role", "set-status":
		if len(args) != 2 {
			return fmt.Errorf("users %s: expected <id> <value>", sub)
		}
		value := strings.ToUpper(args[1])
		if sub == "set-role" {
			result, err = a.users.UpdateRole(ctx, args[0], users.Role(value))
		} else {
			result, err = a.users.UpdateStatus(ctx, args[0], users.Status(value))
		}
	default:
		return fmt.Errorf("users: unknown subcommand %q", sub)
	}

	if err != nil {
		return apiFailure(err)
	}
	return a.printJSON(result)
}

func userAction(ctx context.Context, api *users.API, action, arg string) (any, error) {
	switch action {
	case "get":
		return api.Get(ctx, arg)
	case "search":
		return api.Search(ctx, arg)
	case "activate":
		return api.Activate(ctx, arg)
	default:
		return api.Deactivate(ctx, arg)
	}
}

func syncCmd(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("sync: expected one of ensure, exists, token-info, user-info, debug")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	var (
		result any
		err    error
	)
	switch args[0] {
	case "ensure":
		result, err = a.reconciler.EnsureUserExists(ctx)
	case "exists":
		result, err = a.users.CheckExists(ctx)
	case "token-info":
		result, err = a.users.TokenInfo(ctx)
	case "user-info":
		result, err = a.users.UserInfo(ctx)
	case "debug":
		result, err = a.users.DebugTokenInfo(ctx)
	default:
		return fmt.Errorf("sync: unknown subcommand %q", args[0])
	}
	if err != nil {
		return apiFailure(err)
	}
	return a.printJSON(result)
}

func ticketID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("missing ticket id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ticket id %q", args[0])
	}
	return id, nil
}

func parseIDs(args []string, n int) ([]int64, error) {
	if len(args) < n {
		return nil, fmt.Errorf("expected %d ids", n)
	}
	ids := make([]int64, n)
	for i := range ids {
		id, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", args[i])
		}
		ids[i] = id
	}
	return ids, nil
}

// apiFailure turns gateway errors into the server's message plus any field errors
func apiFailure(err error) error {
	msg := gateway.ErrorMessage(err)
	for field, problem := range gateway.ValidationErrors(err) {
		msg += fmt.Sprintf("\n  %s: %s", field, problem)
	}
	return errors.New(msg)
}
