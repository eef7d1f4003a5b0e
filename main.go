// Package main provides the entry point for the hark CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/harklabs/hark/internal/playback"
	"github.com/harklabs/hark/internal/player"
	"github.com/harklabs/hark/internal/queue"
	"github.com/harklabs/hark/internal/session"
	"github.com/harklabs/hark/internal/store"
	"github.com/harklabs/hark/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	tui        bool
	addr       string
	voiceID    string
	sessionID  string
	speed      float64
	volume     float64
	dataDir    string

	keyword = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5FD2", Dark: "#FF5FD2"}).Render

	rootCmd = &cobra.Command{
		Use:   "hark [TEXT]",
		Short: "Queued text-to-speech for your terminal",
		Long: paragraph(
			fmt.Sprintf("\nQueue text and %s. Pipe into hark, pass text as an argument, or run it bare for the interactive queue.", keyword("hear it read aloud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadOptions(cmd)
		},
		RunE: execute,
	}
)

func paragraph(s string) string {
	return lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render(s)
}

func loadOptions(cmd *cobra.Command) error {
	addr = viper.GetString("addr")
	voiceID = viper.GetString("voice")
	sessionID = viper.GetString("session")
	speed = viper.GetFloat64("speed")
	volume = viper.GetFloat64("volume")
	dataDir = viper.GetString("data_dir")
	tui = viper.GetBool("tui")

	// Environment wins over config file and flags.
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	if cfg.Addr != "" {
		addr = cfg.Addr
	}
	if cfg.Voice != "" {
		voiceID = cfg.Voice
	}
	if cfg.Session != "" {
		sessionID = cfg.Session
	}
	if cfg.DataDir != "" {
		dataDir = cfg.DataDir
	}

	if sessionID == "" {
		sessionID = "terminal"
	}
	speed = playback.ClampSpeed(speed)
	volume = playback.ClampVolume(volume)

	if dataDir == "" {
		scope := gap.NewScope(gap.User, "hark")
		dir, err := scope.DataPath("")
		if err != nil {
			return fmt.Errorf("could not resolve data directory: %w", err)
		}
		dataDir = dir
	}
	dataDir, err = homedir.Expand(dataDir)
	if err != nil {
		return fmt.Errorf("could not expand data directory: %w", err)
	}

	// Bare invocation on a terminal means the interactive queue.
	if !cmd.Flags().Changed("tui") && !tui {
		piped, err := stdinIsPipe()
		if err != nil {
			return err
		}
		tui = !piped && len(cmd.Flags().Args()) == 0 && term.IsTerminal(int(os.Stdout.Fd()))
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// app bundles the wired control surfaces.
type app struct {
	ctrl     *queue.Controller
	speaker  *player.Player
	state    *playback.State
	sessions *session.Store
}

func buildApp() (*app, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}
	kv, err := store.NewFileKV(filepath.Join(dataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("could not open state store: %w", err)
	}

	sessions := session.NewStore(kv)
	state := playback.NewState()
	state.SetSpeed(speed)
	state.SetVolume(volume)

	speaker := player.New(player.NewDeviceSinkFactory(), player.NewClient(addr))
	ctrl := queue.NewController(store.NewMemoryQueue(), sessions, state, speaker, queue.NewCuePlayer())
	ctrl.SetVoice(voiceID)

	return &app{ctrl: ctrl, speaker: speaker, state: state, sessions: sessions}, nil
}

func execute(cmd *cobra.Command, args []string) error {
	// If stdin is a pipe, read it as the text to speak. A - argument
	// does the same explicitly.
	var text string
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("unable to read stdin: %w", err)
		}
		text = string(b)
	} else {
		text = strings.Join(args, " ")
	}
	text = strings.TrimSpace(text)

	if text == "" && !tui {
		return cmd.Help()
	}
	if tui {
		return runTUI(text)
	}
	return speakAndWait(text)
}

// speakAndWait queues the text and blocks until the queue drains or the
// user interrupts.
func speakAndWait(text string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if _, err := a.ctrl.Enqueue(ctx, text, sessionID); err != nil {
		return fmt.Errorf("unable to queue text: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.ctrl.StopAndClear(context.Background())
			return nil
		case <-ticker.C:
			if a.state.Current() == nil && !a.state.IsPlaying() {
				return nil
			}
		}
	}
}

func runTUI(text string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	prog := tea.NewProgram(ui.NewModel(a.ctrl, a.state, a.sessions), tea.WithAltScreen())

	a.speaker.OnStateChange(func(s player.State) {
		prog.Send(ui.PlayerStateMsg{State: s})
	})
	a.speaker.OnTimeUpdate(func(position, duration float64) {
		prog.Send(ui.PlayerTimeMsg{Position: position, Duration: duration})
	})
	a.ctrl.OnPlaybackError(func(message string) {
		prog.Send(ui.PlayerErrorMsg{Message: message})
	})

	if text != "" {
		if _, err := a.ctrl.Enqueue(context.Background(), text, sessionID); err != nil {
			log.Warn("Could not queue initial text", "err", err)
		}
	}

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	a.speaker.Stop()
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().BoolVarP(&tui, "tui", "t", false, "run the interactive queue")
	rootCmd.Flags().StringVar(&addr, "addr", "", "TTS service base URL")
	rootCmd.Flags().StringVar(&voiceID, "voice", "", "voice id for synthesis")
	rootCmd.Flags().StringVar(&sessionID, "session", "", "session to speak under")
	rootCmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed (0.5 to 3.0)")
	rootCmd.Flags().Float64Var(&volume, "volume", 1.0, "playback volume (0.0 to 1.0)")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for persistent state")

	_ = viper.BindPFlag("tui", rootCmd.Flags().Lookup("tui"))
	_ = viper.BindPFlag("addr", rootCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("session", rootCmd.Flags().Lookup("session"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("volume", rootCmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("data_dir", rootCmd.Flags().Lookup("data-dir"))

	viper.SetDefault("addr", "http://127.0.0.1:8100")
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("volume", 1.0)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "hark")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "hark")}, dirs...)
	}

	if c := os.Getenv("HARK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("hark")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("hark")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "hark.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
