package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	"gitlab.com/stephen-fox/bredcrumb/config"
	"gitlab.com/stephen-fox/bredcrumb/patcher"
	"gitlab.com/stephen-fox/bredcrumb/snippet"
	"gitlab.com/stephen-fox/bredcrumb/storage"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	appName = "bredcrumb"

	defaultMinCaveSize = 16
)

// flags holds the parsed command line. Values left at their zero
// value fall back to the configuration file.
type flags struct {
	verbose    bool
	configPath string

	generate struct {
		length int
		tags   []string
		prefix string
		custom string
		name   string
		hex    bool
	}

	yara struct {
		value    string
		ascii    bool
		wide     bool
		nocase   bool
		fullword bool
		hexOnly  bool
		name     string
		author   string
		output   string
	}

	code struct {
		value    string
		language string
		output   string
	}

	patch struct {
		binary   string
		value    string
		output   string
		strategy string
		force    bool
		hex      bool
	}

	detect struct {
		binaries []string
	}

	caves struct {
		binary  string
		minSize int
	}

	verify struct {
		binary string
		value  string
		hex    bool
	}

	list struct {
		tag  string
		json bool
	}

	show struct {
		identifier string
	}
}

// app is the state shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
	logger log.Logger
	config *config.Config
	store  *storage.Store
	now    func() time.Time

	// optRand replaces crypto/rand when generating strings.
	optRand io.Reader
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, afero.NewOsFs()))
}

func run(args []string, stdout io.Writer, stderr io.Writer, fs afero.Fs) int {
	return runWith(&app{
		stdout: stdout,
		stderr: stderr,
		fs:     fs,
		now:    time.Now,
	}, args)
}

func runWith(a *app, args []string) int {
	var cfg flags

	kapp := kingpin.New(appName, "Generate tracking strings, YARA rules and code snippets, and patch them into binaries.").
		UsageWriter(a.stdout).
		ErrorWriter(a.stderr)
	kapp.Version(version.Print(appName))
	kapp.HelpFlag.Short('h')
	kapp.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)
	kapp.Flag("config", "Configuration file path. Defaults to $"+config.EnvConfigPath+
		" or the user configuration directory.").StringVar(&cfg.configPath)

	generateCmd := kapp.Command("generate", "Generate a new tracking string and store it in the database.")
	generateCmd.Flag("length", "Total length of the string, including the prefix.").Short('l').IntVar(&cfg.generate.length)
	generateCmd.Flag("tag", "Tag to attach to the string. May be repeated.").Short('t').StringsVar(&cfg.generate.tags)
	generateCmd.Flag("prefix", "String prefix.").Short('p').StringVar(&cfg.generate.prefix)
	generateCmd.Flag("custom", "Store this string instead of generating a random one.").Short('c').StringVar(&cfg.generate.custom)
	generateCmd.Flag("name", "Human readable name for the string.").Short('n').StringVar(&cfg.generate.name)
	generateCmd.Flag("hex", "Use upper case hex characters for the random part.").BoolVar(&cfg.generate.hex)

	yaraCmd := kapp.Command("yara", "Generate a YARA rule that matches a tracking string.")
	yaraCmd.Arg("string", "The tracking string.").Required().StringVar(&cfg.yara.value)
	yaraCmd.Flag("ascii", "Match the ASCII encoding.").Default("true").BoolVar(&cfg.yara.ascii)
	yaraCmd.Flag("wide", "Match the UTF-16 encoding.").BoolVar(&cfg.yara.wide)
	yaraCmd.Flag("nocase", "Match case-insensitively.").BoolVar(&cfg.yara.nocase)
	yaraCmd.Flag("fullword", "Only match when delimited by non-alphanumeric characters.").BoolVar(&cfg.yara.fullword)
	yaraCmd.Flag("hex-only", "Emit only the hex pattern.").BoolVar(&cfg.yara.hexOnly)
	yaraCmd.Flag("name", "Rule name.").Short('n').StringVar(&cfg.yara.name)
	yaraCmd.Flag("author", "Rule author.").StringVar(&cfg.yara.author)
	yaraCmd.Flag("output", "Write the rule to this file instead of stdout.").Short('o').StringVar(&cfg.yara.output)

	codeCmd := kapp.Command("code", "Generate a source code snippet that embeds a tracking string.")
	codeCmd.Arg("string", "The tracking string.").Required().StringVar(&cfg.code.value)
	codeCmd.Flag("language", fmt.Sprintf("Target language (%s).", strings.Join(snippet.Names(), ", "))).
		Short('l').Default(string(snippet.C)).StringVar(&cfg.code.language)
	codeCmd.Flag("output", "Write the snippet to this file instead of stdout.").Short('o').StringVar(&cfg.code.output)

	patchCmd := kapp.Command("patch", "Inject a tracking string into a PE, ELF or Mach-O binary.")
	patchCmd.Arg("binary", "The binary to patch.").Required().StringVar(&cfg.patch.binary)
	patchCmd.Arg("string", "The tracking string.").Required().StringVar(&cfg.patch.value)
	patchCmd.Flag("output", "Output path. Defaults to <name>_patched next to the input.").Short('o').StringVar(&cfg.patch.output)
	patchCmd.Flag("strategy", fmt.Sprintf("Patch strategy (%s).", strings.Join(patcher.Strategies(), ", "))).
		Short('s').StringVar(&cfg.patch.strategy)
	patchCmd.Flag("force", "Overwrite the output file if it exists.").BoolVar(&cfg.patch.force)
	patchCmd.Flag("hex", "The string argument is hex-encoded bytes.").BoolVar(&cfg.patch.hex)

	detectCmd := kapp.Command("detect", "Print the container format of one or more binaries.")
	detectCmd.Arg("binary", "Binaries to inspect.").Required().StringsVar(&cfg.detect.binaries)

	cavesCmd := kapp.Command("caves", "List runs of zero bytes in a binary's sections.")
	cavesCmd.Arg("binary", "The binary to inspect.").Required().StringVar(&cfg.caves.binary)
	cavesCmd.Flag("min", "Minimum cave size in bytes.").Short('m').Default(fmt.Sprint(defaultMinCaveSize)).IntVar(&cfg.caves.minSize)

	verifyCmd := kapp.Command("verify", "Check that a binary contains a tracking string.")
	verifyCmd.Arg("binary", "The binary to check.").Required().StringVar(&cfg.verify.binary)
	verifyCmd.Arg("string", "The tracking string.").Required().StringVar(&cfg.verify.value)
	verifyCmd.Flag("hex", "The string argument is hex-encoded bytes.").BoolVar(&cfg.verify.hex)

	listCmd := kapp.Command("list", "List tracked strings.")
	listCmd.Flag("tag", "Only list strings with a tag containing this value.").Short('t').StringVar(&cfg.list.tag)
	listCmd.Flag("json", "Output JSON.").BoolVar(&cfg.list.json)

	showCmd := kapp.Command("show", "Show a tracked string and its patch history.")
	showCmd.Arg("id", "The string's ID or value.").Required().StringVar(&cfg.show.identifier)

	parsedCmd, err := kapp.Parse(args)
	if err != nil {
		return a.checkError(err)
	}

	a.logger = log.NewLogfmtLogger(log.NewSyncWriter(a.stderr))
	if !cfg.verbose {
		a.logger = level.NewFilter(a.logger, level.AllowInfo())
	}

	err = a.setup(cfg.configPath)
	if err != nil {
		return a.checkError(err)
	}

	switch parsedCmd {
	case generateCmd.FullCommand():
		err = a.generate(&cfg)
	case yaraCmd.FullCommand():
		err = a.yaraRule(&cfg)
	case codeCmd.FullCommand():
		err = a.code(&cfg)
	case patchCmd.FullCommand():
		err = a.patch(&cfg)
	case detectCmd.FullCommand():
		err = a.detect(&cfg)
	case cavesCmd.FullCommand():
		err = a.caves(&cfg)
	case verifyCmd.FullCommand():
		err = a.verify(&cfg)
	case listCmd.FullCommand():
		err = a.list(&cfg)
	case showCmd.FullCommand():
		err = a.show(&cfg)
	default:
		level.Error(a.logger).Log("msg", "unknown command", "cmd", parsedCmd)
		return 1
	}

	return a.checkError(err)
}

func (o *app) setup(configPath string) error {
	path, err := config.Path(configPath)
	if err != nil {
		return err
	}

	o.config, err = config.Load(o.fs, path)
	if err != nil {
		return err
	}

	level.Debug(o.logger).Log("msg", "loaded configuration", "path", path)

	dbPath := o.config.DatabasePath
	if dbPath == "" {
		dbPath, err = storage.DefaultPath()
		if err != nil {
			return err
		}
	}

	o.store = &storage.Store{
		Path:  dbPath,
		OptFs: o.fs,
	}

	return nil
}

func (o *app) checkError(err error) int {
	if err == nil {
		return 0
	}

	fmt.Fprintln(o.stderr, color.RedString("error:"), err)

	return 1
}
