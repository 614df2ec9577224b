package cmds

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/NH5pml30/virtual-machines/pkg/config"
	"github.com/NH5pml30/virtual-machines/pkg/logflags"
	"github.com/NH5pml30/virtual-machines/pkg/selftest"
	"github.com/NH5pml30/virtual-machines/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath overrides the location of the config file.
	configPath string
	// color overrides the color option of the config file.
	color string

	// randomProbes is the number of random addresses 'read' probes.
	randomProbes int
	// listScenarios makes 'selftest' print the scenario names and exit.
	listScenarios bool
	// verboseVersion adds build information to 'version'.
	verboseVersion bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const memprobeCommandLongDesc = `memprobe reads single bytes from arbitrary addresses of its own process.

An address that cannot be read, because it is unmapped, protected or backed
by a shared memory object that is too small, yields an empty result instead
of crashing the process. Results are printed as

    *0x7ffd5c8e5a4f == {1e}    (the byte at the address, in hex)
    *0x0 == {}                 (the address could not be read)`

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:               "memprobe",
		Short:             "memprobe probes memory without crashing on invalid addresses.",
		Long:              memprobeCommandLongDesc,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	addGlobalFlags(rootCommand.PersistentFlags())

	// 'read' subcommand.
	readCommand := &cobra.Command{
		Use:   "read [addr...]",
		Short: "Probe one byte at each address.",
		Long: `Probe one byte at each address given on the command line.

Addresses are parsed as Go integer literals (0x for hex, 0o or a leading 0
for octal, 0b for binary); a leading '*' is ignored. With --random, that many
random addresses are probed as well, seeded by random-seed from the config
file. The seed defaults to 0, so repeated runs read the same addresses
until random-seed is changed.`,
		RunE: readCmd,
	}
	readCommand.Flags().IntVar(&randomProbes, "random", 0, "Also probe this many random addresses (seeded by random-seed from the config file, 0 by default, so repeated runs read the same addresses).")
	rootCommand.AddCommand(readCommand)

	// 'selftest' subcommand.
	selftestCommand := &cobra.Command{
		Use:   "selftest [scenario...]",
		Short: "Check the probe against known readable and unreadable memory.",
		Long: `Run the probe against memory whose readability is known: the null address,
a stack variable, code, a global, a string literal, a page whose read
permission is removed, a shared memory object without storage and the
boundary between an accessible and an inaccessible page. It also checks
that signal handlers installed outside of the probe keep working and that
repeated probing leaves the fault configuration unchanged.

With no arguments every scenario runs. The exit status is non-zero if any
scenario fails.`,
		RunE: selftestCmd,
	}
	selftestCommand.Flags().BoolVar(&listScenarios, "list", false, "List the scenarios and exit.")
	rootCommand.AddCommand(selftestCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memprobe\n%s\n", version.MemprobeVersion)
			if verboseVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verboseVersion, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&log, "log", "", false, "Enable logging.")
	fs.StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (selftest, config).")
	fs.StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")
	fs.StringVar(&configPath, "config", "", "Path of the config file (default: $XDG_CONFIG_HOME/memprobe/config.yml or ~/.memprobe/config.yml).")
	fs.StringVar(&color, "color", "", "Color the self-test summary: auto, always or never (overrides the config file).")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	if configPath != "" {
		c, err := config.LoadConfigFrom(configPath)
		if err != nil {
			return err
		}
		conf = c
	} else {
		conf = config.LoadConfig()
	}
	if color != "" {
		conf.Color = color
		if err := conf.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func readCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && randomProbes <= 0 {
		return errors.New("you must provide at least one address or --random")
	}
	addrs := make([]uintptr, 0, len(args)+randomProbes)
	for _, arg := range args {
		addr, err := parseAddress(arg)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	rng := rand.New(rand.NewSource(conf.RandomSeed))
	for i := 0; i < randomProbes; i++ {
		addrs = append(addrs, uintptr(rng.Uint64()))
	}

	out := cmd.OutOrStdout()
	for _, addr := range addrs {
		fmt.Fprintln(out, selftest.Format(addr, selftest.Probe(addr)))
	}
	return nil
}

func parseAddress(s string) (uintptr, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "*"), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %v", s, err)
	}
	if uint64(uintptr(v)) != v {
		return 0, fmt.Errorf("address %q does not fit in a pointer", s)
	}
	return uintptr(v), nil
}

func selftestCmd(cmd *cobra.Command, args []string) error {
	scenarios := selftest.Scenarios()
	if len(args) > 0 {
		var err error
		scenarios, err = selftest.Lookup(args)
		if err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	if listScenarios {
		for _, s := range scenarios {
			fmt.Fprintln(out, s.Name)
		}
		return nil
	}

	results := selftest.Run(conf, scenarios)
	if err := selftest.Report(out, results); err != nil {
		return err
	}
	passed, failed := selftest.Summary(results)
	w, colored := summaryWriter(out)
	printSummary(w, colored, passed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, passed+failed)
	}
	return nil
}

// summaryWriter returns where the summary goes and whether it may contain
// ANSI color sequences.
func summaryWriter(out io.Writer) (io.Writer, bool) {
	f, isFile := out.(*os.File)
	switch conf.Color {
	case config.ColorNever:
		return out, false
	case config.ColorAlways:
		if isFile {
			return colorable.NewColorable(f), true
		}
		return out, true
	}
	if isFile && isatty.IsTerminal(f.Fd()) {
		return colorable.NewColorable(f), true
	}
	return out, false
}

func printSummary(w io.Writer, colored bool, passed, failed int) {
	status, code := "PASS", ansiGreen
	if failed > 0 {
		status, code = "FAIL", ansiRed
	}
	if colored {
		status = code + status + ansiReset
	}
	fmt.Fprintf(w, "%s: %d passed, %d failed\n", status, passed, failed)
}
