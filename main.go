package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// localControlCC is the Control Change controller number for Local Control:
// value 0 disconnects a synth's keyboard from its sound engine, 127
// reconnects it.
const localControlCC = 122

const (
	defaultValue   = 0
	defaultChannel = 0
)

// Error kinds surfaced to the user. Helpers wrap these with %w so the top
// level can tell them apart with errors.Is.
var (
	errNoPorts           = errors.New("no MIDI output ports available")
	errInvalidSelection  = errors.New("invalid port selection")
	errDeviceUnavailable = errors.New("device unavailable")
	errTransmission      = errors.New("transmission failed")
	errInvalidInput      = errors.New("invalid input")
	errInvalidParameter  = errors.New("invalid parameter")
)

// Config holds the message parameters. The selected port is deliberately not
// part of it; device selection is always interactive.
type Config struct {
	Value   int `json:"value"`
	Channel int `json:"channel"`
}

func main() {
	listOnly := flag.Bool("list", false, "List available MIDI output ports and exit")
	saveConfigFile := flag.String("save-config", "", "Prompt for value/channel, save them to the specified file, and exit (does not send)")
	configFile := flag.String("config", "", "Load value/channel from the specified file instead of prompting")
	flag.Parse()

	drv, err := rtmididrv.New()
	if err != nil {
		log.Fatalf("Failed to create MIDI driver: %v", err)
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		log.Fatalf("Failed to get MIDI outputs: %v", err)
	}

	if *listOnly {
		if len(outs) == 0 {
			fmt.Println("No MIDI output ports available.")
			return
		}
		printPorts(os.Stdout, portNames(outs))
		return
	}

	fmt.Println("MIDI Command 122 (Local Control) Sender")
	fmt.Println("---------------------------------------")

	if *saveConfigFile != "" {
		cfg, err := promptParams(bufio.NewReader(os.Stdin), os.Stdout)
		if err != nil {
			log.Fatalf("Configuration error: %v", err)
		}
		if err := saveConfig(cfg, *saveConfigFile); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Configuration saved to %s\n", *saveConfigFile)
		return
	}

	var cfg *Config
	if *configFile != "" {
		cfg, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	if err := run(outs, cfg, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errNoPorts) {
			// Already reported inline; the no-ports case ends the run
			// without further action.
			return
		}
		log.Fatalf("Error: %v", err)
	}
}

// run drives one complete invocation: gather parameters, pick a port, build
// the message, send it, confirm. cfg may be nil, in which case the value and
// channel are prompted for.
func run(outs []drivers.Out, cfg *Config, in io.Reader, w io.Writer) error {
	reader := bufio.NewReader(in)

	if cfg == nil {
		var err error
		cfg, err = promptParams(reader, w)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Using value %d (%s) on channel %d\n",
		cfg.Value, localControlState(cfg.Value), cfg.Channel)

	if len(outs) == 0 {
		fmt.Fprintln(w, "No MIDI output ports available.")
		return errNoPorts
	}

	msg, err := buildCC122(cfg.Value, cfg.Channel)
	if err != nil {
		return err
	}

	out, err := promptPort(reader, w, outs)
	if err != nil {
		return err
	}

	if err := send(out, msg); err != nil {
		return err
	}

	fmt.Fprintf(w, "Sent MIDI CC #122 (Local Control) with value %d on channel %d\n",
		cfg.Value, cfg.Channel)
	return nil
}

// promptParams asks for the message value and channel.
func promptParams(reader *bufio.Reader, w io.Writer) (*Config, error) {
	fmt.Fprint(w, "Enter value (0=Off, 127=On, default=0): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	value, err := parseBounded(line, defaultValue, 0, 127, w)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(w, "Enter MIDI channel (0-15, default=0): ")
	line, err = reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	channel, err := parseBounded(line, defaultChannel, 0, 15, w)
	if err != nil {
		return nil, err
	}

	return &Config{Value: value, Channel: channel}, nil
}

// parseBounded parses raw as an integer in [lo, hi]. Empty input yields def.
// Out-of-range input warns and falls back to def; non-numeric input is an
// error and aborts the run.
func parseBounded(raw string, def, lo, hi int, w io.Writer) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errInvalidInput, s)
	}

	if n < lo || n > hi {
		fmt.Fprintf(w, "Warning: %d is out of range (%d-%d). Using default %d.\n", n, lo, hi, def)
		return def, nil
	}

	return n, nil
}

// portNames extracts port names for listing and error messages.
func portNames(outs []drivers.Out) []string {
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names
}

func printPorts(w io.Writer, names []string) {
	fmt.Fprintln(w, "Available MIDI ports:")
	for i, name := range names {
		fmt.Fprintf(w, "%d: %s\n", i, name)
	}
}

// promptPort lists the available output ports and asks for a selection.
func promptPort(reader *bufio.Reader, w io.Writer, outs []drivers.Out) (drivers.Out, error) {
	printPorts(w, portNames(outs))

	fmt.Fprint(w, "Select a port by number: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	index, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", errInvalidSelection, strings.TrimSpace(line))
	}

	return selectPort(index, outs)
}

// selectPort resolves an index into an opened output port. The caller owns
// the port and must close it.
func selectPort(index int, outs []drivers.Out) (drivers.Out, error) {
	if index < 0 || index >= len(outs) {
		return nil, fmt.Errorf("%w: port %d does not exist (available: 0-%d)",
			errInvalidSelection, index, len(outs)-1)
	}

	out := outs[index]
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errDeviceUnavailable, out.String(), err)
	}

	return out, nil
}

// buildCC122 constructs the Local Control message. Callers clamp their
// inputs already; the range check here guards direct callers.
func buildCC122(value, channel int) (midi.Message, error) {
	if value < 0 || value > 127 {
		return nil, fmt.Errorf("%w: value %d must be 0-127", errInvalidParameter, value)
	}
	if channel < 0 || channel > 15 {
		return nil, fmt.Errorf("%w: channel %d must be 0-15", errInvalidParameter, channel)
	}
	return midi.ControlChange(uint8(channel), localControlCC, uint8(value)), nil
}

// send writes msg to an opened port. The port is closed on every exit path.
func send(out drivers.Out, msg midi.Message) error {
	defer out.Close()

	if err := out.Send(msg); err != nil {
		return fmt.Errorf("%w: %s: %v", errTransmission, out.String(), err)
	}
	return nil
}

// localControlState describes what a given CC #122 value does.
func localControlState(value int) string {
	switch value {
	case 0:
		return "Local Control Off"
	case 127:
		return "Local Control On"
	default:
		return "Custom Local Control Value"
	}
}

// saveConfig saves the configuration to a JSON file.
func saveConfig(cfg *Config, filename string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// loadConfig loads and validates configuration from a JSON file. Unlike
// prompt input, an out-of-range config value is an error rather than a
// clamp: config files are authored ahead of time and should fail loudly.
func loadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig checks the configured ranges.
func validateConfig(cfg *Config) error {
	if cfg.Value < 0 || cfg.Value > 127 {
		return fmt.Errorf("invalid value: %d (must be 0-127)", cfg.Value)
	}
	if cfg.Channel < 0 || cfg.Channel > 15 {
		return fmt.Errorf("invalid channel: %d (must be 0-15)", cfg.Channel)
	}
	return nil
}
