package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/bradleyjkemp/memviz"
	"golang.org/x/term"

	"github.com/sarchlab/nrfsim/config"
	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/loader"
	"github.com/sarchlab/nrfsim/logging"
	"github.com/sarchlab/nrfsim/periph"
	"github.com/sarchlab/nrfsim/session"
	"github.com/sarchlab/nrfsim/svd"
)

// errUsage is returned after a command printed its usage.
var errUsage = errors.New("invalid arguments")

// addrValue is a flag holding a 32-bit address written in any base.
type addrValue uint32

func (a *addrValue) String() string {
	return fmt.Sprintf("0x%x", uint32(*a))
}

func (a *addrValue) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return err
	}
	*a = addrValue(v)
	return nil
}

func newFlagSet(name, args string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: nrfsim %s [options] %s\n\nOptions:\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func runCommand(args []string, _, stderr io.Writer) error {
	fs := newFlagSet("run", "<firmware>", stderr)
	configPath := fs.String("config", "", "Path to session configuration YAML file")
	var base addrValue
	fs.Var(&base, "base", "Load address of a raw binary image")
	deadline := fs.Duration("deadline", 0, "Wall-clock limit of the run (default from config, 20s)")
	maxInsts := fs.Uint64("max", 0, "Maximum instructions to execute (0 = unlimited)")
	scriptPath := fs.String("script", "", "Lua scenario script")
	svdPath := fs.String("svd", "", "SVD device description for MMIO lookup")
	verbosity := fs.Int("v", -1, "Log verbosity; 1 logs every MMIO access (default 0 on a terminal, 1 otherwise)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base":
			cfg.Base = uint32(base)
		case "deadline":
			cfg.Deadline = *deadline
		case "max":
			cfg.MaxInstructions = *maxInsts
		case "script":
			cfg.Script = *scriptPath
		case "svd":
			cfg.SVD = *svdPath
		case "v":
			cfg.Verbosity = *verbosity
		}
	})
	if fs.NArg() > 0 {
		cfg.Firmware = fs.Arg(0)
	}
	if cfg.Firmware == "" {
		fs.Usage()
		return errUsage
	}
	if *verbosity < 0 && *configPath == "" {
		cfg.Verbosity = defaultVerbosity(stderr)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	fw, err := loader.Load(cfg.Firmware, cfg.Base)
	if err != nil {
		return err
	}

	log := logging.New(stderr, cfg.Verbosity).WithName("nrfsim")
	sub := emu.NewEmulator(emu.WithLogger(log.WithName("emu")))

	s, err := session.New(sub, fw, cfg, session.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := s.Run(ctx)
	closeErr := s.Close()

	log.Info("done", "instructions", sub.InstructionCount())

	return errors.Join(runErr, closeErr)
}

// defaultVerbosity keeps the terminal quiet and gives redirected output
// the full MMIO trace.
func defaultVerbosity(w io.Writer) int {
	f, ok := w.(*os.File)
	if ok && term.IsTerminal(int(f.Fd())) {
		return 0
	}
	return 1
}

func vectorsCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("vectors", "<firmware>", stderr)
	var base addrValue
	fs.Var(&base, "base", "Load address of a raw binary image")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	fw, err := loader.Load(fs.Arg(0), uint32(base))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "base: 0x%08x\nsize: %d\n", fw.Base, fw.Size())
	fmt.Fprint(stdout, fw.Vectors.String())
	return nil
}

// deviceNode is the shape rendered into the dot graph.
type deviceNode struct {
	Name      string
	Base      uint32
	Registers []*periph.Register
}

func devicesCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("devices", "", stderr)
	dotPath := fs.String("dot", "", "Write a Graphviz dot rendering of the devices to this file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	devices, err := newDevices()
	if err != nil {
		return err
	}

	if *dotPath != "" {
		nodes := make([]deviceNode, 0, len(devices))
		for _, d := range devices {
			nodes = append(nodes, deviceNode{
				Name:      d.Name(),
				Base:      d.Base(),
				Registers: d.Registers().Registers(),
			})
		}

		f, err := os.Create(*dotPath)
		if err != nil {
			return err
		}
		memviz.Map(f, &nodes)
		return f.Close()
	}

	for _, d := range devices {
		fmt.Fprintf(stdout, "%s 0x%08x-0x%08x\n", d.Name(), d.Base(), d.Base()+d.Size()-1)
		for _, r := range d.Registers().Registers() {
			fmt.Fprintf(stdout, "  0x%08x %-24s reset=0x%08x\n", r.Addr, r.Name, r.Reset)
		}
	}
	return nil
}

// newDevices builds the peripheral set detached from any firmware.
func newDevices() ([]periph.Device, error) {
	clock, err := periph.NewClock(periph.ClockBase)
	if err != nil {
		return nil, err
	}
	gpio, err := periph.NewGPIO(periph.P0Base)
	if err != nil {
		return nil, err
	}
	rtc, err := periph.NewRTC(periph.RTC1Base)
	if err != nil {
		return nil, err
	}
	radio, err := periph.NewRadio(periph.RadioBase, emu.NewEmulator())
	if err != nil {
		return nil, err
	}
	timer, err := periph.NewTimer("TIMER0", periph.Timer0Base, periph.WithTickInterval(time.Second))
	if err != nil {
		return nil, err
	}

	return []periph.Device{clock, radio, timer, rtc, gpio}, nil
}

func analyzeCommand(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("analyze", "<addresses.txt>", stderr)
	svdPath := fs.String("svd", "", "SVD device description (required)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *svdPath == "" || fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	dev, err := svd.Load(*svdPath)
	if err != nil {
		return err
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	addrs, err := svd.ReadAddressList(f)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	fmt.Fprintf(stdout, "read %d addresses\n", len(addrs))

	_, err = svd.Analyze(dev, addrs).WriteTo(stdout)
	return err
}
