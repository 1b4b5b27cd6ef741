/*
 * threeb1 - Main process
 *
 * Copyright (c) 2026, the threeb1 authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"threeb1/machine"
	"threeb1/util/logger"
)

// nullCPU stands in for the 68010 interpreter, which is out of scope
// for this core (spec.md §1): it only needs to observe fault pulses
// and report its supervisor bit for this command loop to exercise the
// bus directly.
type nullCPU struct {
	supervisor bool
	log        *slog.Logger
}

func (c *nullCPU) PulseBusError() {
	c.log.Warn("bus error pulsed")
}

func (c *nullCPU) EndTimeslice() {}

func (c *nullCPU) StatusRegister() uint16 {
	if c.supervisor {
		return 0x2000
	}
	return 0
}

func main() {
	optROM := getopt.StringLong("rom", 'r', "", "ROM image path")
	optFloppy := getopt.StringLong("floppy", 'f', "", "Floppy image path")
	optSectorSize := getopt.IntLong("sector-size", 0, 512, "Floppy sector size in bytes")
	optSectors := getopt.IntLong("sectors", 0, 10, "Floppy sectors per track")
	optHeads := getopt.IntLong("heads", 0, 1, "Floppy head count")
	optWritable := getopt.BoolLong("writable", 'w', "Attach the floppy image read-write")
	optBaseRAM := getopt.IntLong("base-ram", 0, 2*1024*1024, "Base RAM size in bytes")
	optExpRAM := getopt.IntLong("exp-ram", 0, 2*1024*1024, "Expansion RAM size in bytes")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optSupervisor := getopt.BoolLong("supervisor", 's', "Start the null CPU in supervisor mode")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "threeb1: create log file:", err)
			os.Exit(1)
		}
	}
	log := logger.New(file, slog.LevelInfo, false)
	slog.SetDefault(log)

	cpu := &nullCPU{supervisor: *optSupervisor, log: log}
	m := machine.New(cpu, machine.Options{
		BaseRAM: *optBaseRAM,
		ExpRAM:  *optExpRAM,
		Log:     log,
	})

	if *optROM != "" {
		if err := m.LoadROM(*optROM); err != nil {
			log.Error("load ROM", "err", err)
			os.Exit(1)
		}
	}
	if *optFloppy != "" {
		if err := m.LoadFloppy(*optFloppy, *optSectorSize, *optSectors, *optHeads, *optWritable); err != nil {
			log.Error("load floppy", "err", err)
			os.Exit(1)
		}
	}

	log.Info("threeb1 started", "rom", *optROM, "floppy", *optFloppy)
	runConsole(m, log)
}

// runConsole is a tiny interactive poke loop for manually exercising
// the bus: it is not a CPU and does not execute 68010 code.
func runConsole(m *machine.Machine, log *slog.Logger) {
	fmt.Println("threeb1 core console. Commands: r8/r16/r32 <addr>, w8/w16/w32 <addr> <val>, reset, irq, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := dispatchCommand(m, fields); err != nil {
			if err == errQuit {
				return
			}
			log.Error("command failed", "err", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func dispatchCommand(m *machine.Machine, fields []string) error {
	switch fields[0] {
	case "quit", "exit":
		return errQuit
	case "reset":
		m.Reset()
		return nil
	case "irq":
		fmt.Println("IRQ:", m.IRQAsserted())
		return nil
	case "r8", "r16", "r32":
		addr, err := parseAddr(fields)
		if err != nil {
			return err
		}
		switch fields[0] {
		case "r8":
			fmt.Printf("%#02x\n", m.Read8(addr))
		case "r16":
			fmt.Printf("%#04x\n", m.Read16(addr))
		default:
			fmt.Printf("%#08x\n", m.Read32(addr))
		}
		return nil
	case "w8", "w16", "w32":
		if len(fields) < 3 {
			return fmt.Errorf("usage: %s <addr> <value>", fields[0])
		}
		addr, err := parseAddr(fields)
		if err != nil {
			return err
		}
		val, err := strconv.ParseUint(fields[2], 0, 32)
		if err != nil {
			return fmt.Errorf("bad value %q: %w", fields[2], err)
		}
		switch fields[0] {
		case "w8":
			m.Write8(addr, uint8(val))
		case "w16":
			m.Write16(addr, uint16(val))
		default:
			m.Write32(addr, uint32(val))
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseAddr(fields []string) (uint32, error) {
	if len(fields) < 2 {
		return 0, fmt.Errorf("usage: %s <addr>", fields[0])
	}
	v, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", fields[1], err)
	}
	return uint32(v), nil
}
