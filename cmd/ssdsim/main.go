// Command ssdsim is the interactive test shell for the SSD simulator.
//
// Commands: W <idx> <0xXXXXXXXX>, R <idx>, fullwrite <0xXXXXXXXX>,
// fullread, testapp1, testapp2, testapp3, stats, l2p, gc, help, exit.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sonoasy/ssdsim"
	"github.com/sonoasy/ssdsim/internal/host"
)

var (
	flagConfig = flag.String("config", "", "YAML config file (optional)")
	flagImage  = flag.String("image", "", "Device image path (overrides config)")
	flagResult = flag.String("result", "", "Read mirror file path (overrides config)")
	flagTrace  = flag.String("trace", "", "SQLite trace export path (optional)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	ssd, err := ssdsim.Open(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}

	fmt.Println("========================================")
	fmt.Println("  SSD Simulator with FTL & GC")
	fmt.Println("  Type 'help' for available commands")
	fmt.Println("========================================")
	fmt.Println()

	os.Exit(runShell(ssd))
}

func loadConfig() (ssdsim.Config, error) {
	cfg := ssdsim.DefaultConfig()
	if *flagConfig != "" {
		var err error
		cfg, err = loadConfigFile(*flagConfig)
		if err != nil {
			return cfg, err
		}
	}
	if *flagImage != "" {
		cfg.ImagePath = *flagImage
	}
	if *flagResult != "" {
		cfg.ResultPath = *flagResult
	}
	if *flagTrace != "" {
		cfg.TracePath = *flagTrace
	}
	return cfg, nil
}

func runShell(ssd *ssdsim.SSD) int {
	h := ssd.Host()

	sc := bufio.NewScanner(os.Stdin)
	// Suppress prompts when input is redirected from a file.
	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	for {
		if interactive {
			fmt.Print("ssd> ")
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				fmt.Fprintln(os.Stderr, "read error:", err)
			}
			shutdown(ssd)
			return 0
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			fmt.Println("Shutting down SSD simulator...")
			shutdown(ssd)
			fmt.Println("Goodbye!")
			return 0
		}
		execute(h, line)
	}
}

func shutdown(ssd *ssdsim.SSD) {
	if err := ssd.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown error:", err)
	}
}

func execute(h *host.Host, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "W":
		if len(args) != 2 {
			fmt.Println("usage: W <idx> <0xXXXXXXXX>")
			return
		}
		idx, ok := parseIndex(h, args[0])
		if !ok {
			return
		}
		if err := h.Write(idx, args[1]); err != nil {
			fmt.Println("write failed:", err)
		}

	case "R":
		if len(args) != 1 {
			fmt.Println("usage: R <idx>")
			return
		}
		idx, ok := parseIndex(h, args[0])
		if !ok {
			return
		}
		fmt.Println(host.FormatHexWord(h.Read(idx)))

	case "fullwrite":
		if len(args) != 1 {
			fmt.Println("usage: fullwrite <0xXXXXXXXX>")
			return
		}
		if _, err := host.ParseHexWord(args[0]); err != nil {
			fmt.Println(err)
			return
		}
		if err := h.FullWrite(args[0]); err != nil {
			fmt.Println("fullwrite failed:", err)
		}

	case "fullread":
		h.FullRead()

	case "testapp1":
		testApp1(h)
	case "testapp2":
		testApp2(h)
	case "testapp3":
		testApp3(h)

	case "stats":
		h.PrintStatistics()
	case "l2p":
		h.PrintL2P()
	case "gc":
		res, err := h.ForceGC()
		if err != nil {
			fmt.Println("gc:", err)
			return
		}
		fmt.Printf("gc: victim block %d, migrated %d valid pages, erased=%v\n",
			res.Victim, res.Migrated, res.Erased)

	case "help":
		printHelp()

	default:
		fmt.Println("unknown command, type 'help'")
	}
}

func parseIndex(h *host.Host, s string) (int, bool) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 || idx >= h.LogicalPages() {
		fmt.Printf("index out of range (0~%d)\n", h.LogicalPages()-1)
		return 0, false
	}
	return idx, true
}

func printHelp() {
	fmt.Println("==================== Available commands ====================")
	fmt.Println("  W <idx> <data>   - write one LBA (e.g. W 3 0xAAAABBBB)")
	fmt.Println("  R <idx>          - read one LBA (e.g. R 3)")
	fmt.Println("  fullwrite <data> - write the same value to every LBA")
	fmt.Println("  fullread         - read every LBA")
	fmt.Println("  testapp1         - full write/read verification")
	fmt.Println("  testapp2         - aging write and overwrite verification")
	fmt.Println("  testapp3         - garbage collection verification")
	fmt.Println("  stats            - FTL and NAND statistics (incl. WAF)")
	fmt.Println("  l2p              - L2P mapping table")
	fmt.Println("  gc               - force a garbage collection pass")
	fmt.Println("  help             - this text")
	fmt.Println("  exit             - persist and quit")
	fmt.Println("============================================================")
}
