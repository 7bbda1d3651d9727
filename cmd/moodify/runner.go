package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/go-moodify/internal/app"
	"github.com/justestif/go-moodify/internal/auth"
	"github.com/justestif/go-moodify/internal/config"
	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/web"
)

// Runner holds the dependencies shared by every command action.
type Runner struct {
	logger  *log.Logger
	output  io.Writer
	input   io.Reader
	appOpts []app.Option
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
	Input  io.Reader
	// AppOptions are passed to every App the runner builds.
	AppOptions []app.Option
}

// NewRunner creates a Runner, defaulting to the process's stdio.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.New(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	return &Runner{
		logger:  opts.Logger,
		output:  opts.Output,
		input:   opts.Input,
		appOpts: opts.AppOptions,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, loginCommand, logoutCommand, respondCommand, generateCommand, historyCommand, initConfigCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// loadConfig reads the --config file plus environment and validates it.
func (r *Runner) loadConfig(cmd *cli.Command, forServer bool) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(forServer); err != nil {
		return nil, err
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		r.logger.SetLevel(lvl)
	}
	return cfg, nil
}

func (r *Runner) open(ctx context.Context, cmd *cli.Command, forServer bool) (*app.App, *config.Config, error) {
	cfg, err := r.loadConfig(cmd, forServer)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, r.logger, r.appOpts...)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// signedIn opens the app and a flow that must already hold a token.
func (r *Runner) signedIn(ctx context.Context, cmd *cli.Command) (*app.App, *auth.Flow, error) {
	a, _, err := r.open(ctx, cmd, false)
	if err != nil {
		return nil, nil, err
	}
	flow, err := a.NewCLIFlow()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	if flow.State() == auth.StateUnauthenticated {
		a.Close()
		return nil, nil, errors.New("not signed in, run `moodify login` first")
	}
	return a, flow, nil
}

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	a, cfg, err := r.open(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := web.NewServer(web.ServerConfig{
		Addr:       cfg.Server.Addr,
		JWTSecret:  cfg.Server.JWTSecret,
		SessionTTL: cfg.Server.SessionTTL,
		Logger:     logging.With(r.logger, "component", "web"),
	}, a, a.Store())
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// Login prints the authorize URL and completes the flow from the redirect
// URL pasted back on stdin.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	a, _, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	flow, err := a.NewCLIFlow()
	if err != nil {
		return err
	}
	authURL, err := flow.Authorize()
	if err != nil {
		return err
	}

	fmt.Fprintf(r.output, "Open this URL in your browser:\n\n  %s\n\n", authURL)
	fmt.Fprint(r.output, "Paste the URL you were redirected to: ")

	line, err := bufio.NewReader(r.input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading redirect URL: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fmt.Errorf("%w: no redirect URL given", auth.ErrMissingCode)
	}

	if _, err := flow.CompleteRedirect(ctx, line); err != nil {
		return err
	}

	_, builder := a.Orchestrator(flow)
	userID, err := builder.OwnerID(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "\nSigned in as %s\n", userID)
	return nil
}

// Logout clears the stored token.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	a, _, err := r.open(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	flow, err := a.NewCLIFlow()
	if err != nil {
		return err
	}
	if err := flow.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(r.output, "Signed out")
	return nil
}

// Respond stores answers read from --file for the signed-in user.
func (r *Runner) Respond(ctx context.Context, cmd *cli.Command) error {
	responses, err := r.readResponses(cmd.String("file"))
	if err != nil {
		return err
	}
	if err := mood.ValidateResponses(responses); err != nil {
		return err
	}

	a, flow, err := r.signedIn(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	_, builder := a.Orchestrator(flow)
	userID, err := builder.OwnerID(ctx)
	if err != nil {
		return err
	}
	if err := a.Store().SubmitResponses(ctx, userID, responses); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "Stored %d answers\n", len(responses))
	return nil
}

// Generate runs the pipeline over the latest stored answers.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	a, flow, err := r.signedIn(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, builder := a.Orchestrator(flow)
	userID, err := builder.OwnerID(ctx)
	if err != nil {
		return err
	}

	result, err := orch.RunLatest(ctx, "cli:"+userID, userID, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result)
	}
	fmt.Fprintf(r.output, "Created %q (%s, %d tracks)\nhttps://open.spotify.com/playlist/%s\n",
		result.Title, result.Mood, result.TrackCount, result.PlaylistID)
	return nil
}

// History lists stored mood selections for the signed-in user.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	a, flow, err := r.signedIn(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	_, builder := a.Orchestrator(flow)
	userID, err := builder.OwnerID(ctx)
	if err != nil {
		return err
	}
	selections, err := a.Store().ListMoodSelections(ctx, userID, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(selections)
	}
	if len(selections) == 0 {
		fmt.Fprintln(r.output, "No playlists yet")
		return nil
	}
	for _, s := range selections {
		fmt.Fprintf(r.output, "%s  %-9s  %s  (%s)\n",
			s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Mood, s.Title, s.PlaylistID)
	}
	return nil
}

// InitConfig writes the example configuration to --config.
func (r *Runner) InitConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := config.CreateConfigFile(path); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "Wrote %s\n", path)
	return nil
}

func (r *Runner) readResponses(path string) ([]mood.Response, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(r.input)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading answers: %w", err)
	}

	var responses []mood.Response
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, fmt.Errorf("parsing answers: %w", err)
	}
	return responses, nil
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
