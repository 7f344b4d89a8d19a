// machoasm drives the macho package end to end from a line-oriented
// textual event script — a stand-in for a real assembler front end,
// which this repository does not implement — so the library has a
// runnable entry point.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/segasm/machobe/macho"
)

const versionString = "machoasm 1.0.0"

// VerboseMode gates the trace lines the script interpreter prints as
// it executes each event; diagnostics raised by the backend itself
// (WARNING/NONFATAL/FATAL/PANIC) always print regardless.
var VerboseMode bool

func main() {
	var (
		profileFlag = flag.String("profile", "x86-64", "target profile (i386, x86-64)")
		outputFlag  = flag.String("o", "", "output object file (default: derived from input name)")
		verbose     = flag.Bool("v", false, "verbose mode (trace each event)")
		verboseLong = flag.Bool("verbose", false, "verbose mode (trace each event)")
		version     = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(versionString)
		return
	}
	VerboseMode = *verbose || *verboseLong

	args := flag.Args()
	if len(args) != 1 {
		log.Fatalf("usage: machoasm [flags] <script-file>")
	}
	inname := args[0]

	profile, err := macho.ParseProfile(*profileFlag)
	if err != nil {
		log.Fatalf("invalid --profile: %v", err)
	}

	outname := *outputFlag
	if outname == "" {
		outname = macho.Filename(inname)
	}

	f, err := os.Open(inname)
	if err != nil {
		log.Fatalf("opening %s: %v", inname, err)
	}
	defer f.Close()

	diag := &macho.StderrDiag{Verbose: VerboseMode}
	asm := newAssembler(profile, diag)
	if err := asm.run(f); err != nil {
		log.Fatalf("%s: %v", inname, err)
	}

	asm.backend.Finalize()

	out, err := os.Create(outname)
	if err != nil {
		log.Fatalf("creating %s: %v", outname, err)
	}
	defer out.Close()

	n, err := asm.backend.WriteTo(out)
	if err != nil {
		log.Fatalf("writing %s: %v", outname, err)
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "wrote %s: %d bytes\n", outname, n)
	}
}

// assembler interprets the textual event script, resolving section
// names to the front-end segment indices the backend hands back and
// tracking which section subsequent data events target.
type assembler struct {
	backend *macho.Backend
	byName  map[string]int32
	current int32
}

func newAssembler(profile macho.Profile, diag macho.Diag) *assembler {
	return &assembler{
		backend: macho.New(profile, diag),
		byName:  make(map[string]int32),
		current: macho.NoSeg,
	}
}

func (a *assembler) resolve(name string) (int32, error) {
	if name == "-" {
		return macho.NoSeg, nil
	}
	idx, ok := a.byName[name]
	if !ok {
		return 0, fmt.Errorf("undefined section %q", name)
	}
	return idx, nil
}

func (a *assembler) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if VerboseMode {
			fmt.Fprintf(os.Stderr, "%4d: %s\n", lineno, line)
		}
		if err := a.execute(line); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	return scanner.Err()
}

func (a *assembler) execute(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "section":
		rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))
		idx, err := a.backend.Section(rest)
		if err != nil {
			return err
		}
		name := strings.Fields(rest)[0]
		a.byName[name] = idx
		return nil

	case "in":
		if len(args) != 1 {
			return fmt.Errorf("usage: in <section>")
		}
		idx, err := a.resolve(args[0])
		if err != nil {
			return err
		}
		a.current = idx
		return nil

	case "sectalign":
		if len(args) != 2 {
			return fmt.Errorf("usage: sectalign <section> <value>")
		}
		idx, err := a.resolve(args[0])
		if err != nil {
			return err
		}
		value, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return err
		}
		a.backend.Sectalign(idx, uint32(value))
		return nil

	case "symdef":
		if len(args) < 3 {
			return fmt.Errorf("usage: symdef <name> <section|-> <offset> [global|common|local] [special]")
		}
		section, err := a.resolve(args[1])
		if err != nil {
			return err
		}
		offset, err := strconv.ParseUint(args[2], 0, 64)
		if err != nil {
			return err
		}
		linkage := macho.LinkageLocal
		if len(args) >= 4 {
			switch args[3] {
			case "global":
				linkage = macho.LinkageGlobal
			case "common":
				linkage = macho.LinkageCommon
			case "local":
				linkage = macho.LinkageLocal
			default:
				return fmt.Errorf("unknown linkage %q", args[3])
			}
		}
		special := ""
		if len(args) >= 5 {
			special = args[4]
		}
		return a.backend.Symdef(args[0], section, offset, linkage, special)

	case "rawdata":
		data, err := parseHexBytes(args)
		if err != nil {
			return err
		}
		a.backend.Out(a.current, macho.OutRawData, 0, len(data), macho.NoSeg, macho.NoSeg, data)
		return nil

	case "reserve":
		if len(args) != 1 {
			return fmt.Errorf("usage: reserve <size>")
		}
		size, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		a.backend.Out(a.current, macho.OutReserve, 0, size, macho.NoSeg, macho.NoSeg, nil)
		return nil

	case "address", "rel2", "rel4":
		return a.executeReference(cmd, args)

	default:
		return fmt.Errorf("unknown event %q", cmd)
	}
}

// executeReference handles "address", "rel2" and "rel4", each of the
// shape: <value> <size> [section=<name>] [wrt=<name>].
func (a *assembler) executeReference(cmd string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <value> <size> [section=<name>] [wrt=<name>]", cmd)
	}
	value, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	section, wrt := macho.NoSeg, macho.NoSeg
	for _, kv := range args[2:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed option %q", kv)
		}
		idx, err := a.resolve(parts[1])
		if err != nil {
			return err
		}
		switch parts[0] {
		case "section":
			section = idx
		case "wrt":
			wrt = idx
		default:
			return fmt.Errorf("unknown option %q", parts[0])
		}
	}

	kind := map[string]macho.OutKind{
		"address": macho.OutAddress,
		"rel2":    macho.OutRel2Adr,
		"rel4":    macho.OutRel4Adr,
	}[cmd]
	a.backend.Out(a.current, kind, value, size, section, wrt, nil)
	return nil
}

func parseHexBytes(fields []string) ([]byte, error) {
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q: %w", f, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
