// service_console.go - operator debug console (spec section 4, "supplemented features")

// License: GPLv3 or later

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/term"
)

// ServiceConsole is a line-oriented operator console over stdin, in the
// spirit of terminal_host.go's raw-mode stdin reader and
// debug_commands.go's command dispatch, but driving the service loop's
// resource table, replay stats, and device status instead of a CPU
// monitor. It is entirely optional tooling: no wire behavior depends on
// it, and ServiceLoop.RunSupervised runs fine with a nil console.
type ServiceConsole struct {
	engine *ReplayEngine
	table  *ResourceTable
	device NativeDevice
	out    io.Writer
}

// NewServiceConsole builds a console bound to the running service's
// collaborators. out is normally os.Stdout; tests pass a buffer instead.
func NewServiceConsole(engine *ReplayEngine, table *ResourceTable, device NativeDevice, out io.Writer) *ServiceConsole {
	if out == nil {
		out = os.Stdout
	}
	return &ServiceConsole{engine: engine, table: table, device: device, out: out}
}

// Run reads commands from stdin in raw mode until ctx is cancelled or
// stdin is closed, matching the shape RunSupervised expects of its
// console argument. Raw mode is used so the console can be interrupted
// by context cancellation without stdin itself blocking a normal read.
func (c *ServiceConsole) Run(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Not a terminal (e.g. piped stdin in a test harness): fall back
		// to line-buffered reads without raw mode.
		return c.runLineLoop(ctx, os.Stdin)
	}
	defer term.Restore(fd, oldState)

	lines := make(chan string)
	go c.readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if c.dispatch(strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// readLines assembles raw bytes into CR/LF-terminated lines, translating
// CR to LF the same way terminal_host.go does for raw-mode stdin.
func (c *ServiceConsole) readLines(r io.Reader, out chan<- string) {
	defer close(out)
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b := buf[0]
			if b == '\r' {
				b = '\n'
			}
			if b == '\n' {
				out <- string(line)
				line = line[:0]
				continue
			}
			if b == 0x7F || b == 0x08 {
				if len(line) > 0 {
					line = line[:len(line)-1]
				}
				continue
			}
			line = append(line, b)
		}
		if err != nil {
			return
		}
	}
}

func (c *ServiceConsole) runLineLoop(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if c.dispatch(strings.TrimSpace(scanner.Text())) {
			return nil
		}
	}
	return nil
}

// dispatch runs one console command. It returns true when the console
// should stop reading further input.
func (c *ServiceConsole) dispatch(line string) bool {
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "stats":
		c.cmdStats()
	case "resources":
		c.cmdResources()
	case "lost":
		c.cmdForceDeviceLost()
	case "preview":
		c.cmdPreview(args)
	case "lua":
		c.cmdLua(strings.TrimPrefix(line, cmd))
	case "help", "?":
		c.cmdHelp()
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(c.out, "unknown command: %s (try \"help\")\n", cmd)
	}
	_ = args
	return false
}

func (c *ServiceConsole) cmdStats() {
	s := c.engine.Stats()
	fmt.Fprintf(c.out, "commands=%d draws=%d presents=%d created=%d destroyed=%d errors=%d fence=%d\n",
		s.CommandsProcessed, s.DrawCalls, s.Presents, s.ResourcesCreated, s.ResourcesDestroyed, s.Errors, c.engine.CurrentFence())
}

func (c *ServiceConsole) cmdResources() {
	counts := c.table.Counts()
	if len(counts) == 0 {
		fmt.Fprintln(c.out, "resource table is empty")
		return
	}
	for kind, n := range counts {
		fmt.Fprintf(c.out, "%-20s %d\n", kind.String(), n)
	}
}

// cmdForceDeviceLost is a test/operator hook: it cannot flip the real
// native device's status (that is owned by the driver), but on the
// fakeDevice used in harnesses it is observable through Status().
func (c *ServiceConsole) cmdForceDeviceLost() {
	if f, ok := c.device.(interface{ forceLost() }); ok {
		f.forceLost()
		fmt.Fprintln(c.out, "device marked lost")
		return
	}
	fmt.Fprintln(c.out, "device does not support forced loss")
}

// cmdPreview maps an RGBA8 texture resource and prints its three most
// common colors as web-safe palette indices, a quick sanity check on a
// render target's contents without a GUI (spec section 4, "supplemented
// features").
func (c *ServiceConsole) cmdPreview(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: preview <resource_id>")
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(c.out, "preview: invalid resource id %q\n", args[0])
		return
	}
	tex, ok := c.table.GetTexture2D(uint32(id))
	if !ok {
		fmt.Fprintf(c.out, "preview: no texture at id %d\n", id)
		return
	}
	if tex.Format != FormatRGBA8Unorm && tex.Format != FormatBGRA8Unorm {
		fmt.Fprintf(c.out, "preview: resource %d is not an 8-bit RGBA/BGRA texture\n", id)
		return
	}
	pixels, _, err := c.device.MapTexture2D(tex.Native, 0, MapRead)
	if err != nil {
		fmt.Fprintf(c.out, "preview: map failed: %v\n", err)
		return
	}
	defer c.device.UnmapTexture2D(tex.Native, 0)

	indices := QuantizeRGBA8ToWebSafe(pixels)
	for _, dc := range DominantWebSafeColors(indices, 3) {
		fmt.Fprintf(c.out, "palette[%d] x%d\n", dc.Index, dc.Count)
	}
}

// cmdLua evaluates a snippet of Lua, exposing host introspection as
// global functions: pvgpu_stats(), pvgpu_resource_count() (live entries
// across all kinds).
func (c *ServiceConsole) cmdLua(snippet string) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		fmt.Fprintln(c.out, "usage: lua <expression>")
		return
	}
	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("pvgpu_stats", L.NewFunction(func(L *lua.LState) int {
		s := c.engine.Stats()
		tbl := L.NewTable()
		tbl.RawSetString("commands", lua.LNumber(s.CommandsProcessed))
		tbl.RawSetString("draws", lua.LNumber(s.DrawCalls))
		tbl.RawSetString("presents", lua.LNumber(s.Presents))
		tbl.RawSetString("created", lua.LNumber(s.ResourcesCreated))
		tbl.RawSetString("destroyed", lua.LNumber(s.ResourcesDestroyed))
		tbl.RawSetString("errors", lua.LNumber(s.Errors))
		L.Push(tbl)
		return 1
	}))
	L.SetGlobal("pvgpu_resource_count", L.NewFunction(func(L *lua.LState) int {
		total := 0
		for _, n := range c.table.Counts() {
			total += n
		}
		L.Push(lua.LNumber(total))
		return 1
	}))
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, top)
		for i := 1; i <= top; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		fmt.Fprintln(c.out, strings.Join(parts, "\t"))
		return 0
	}))

	if err := L.DoString(snippet); err != nil {
		fmt.Fprintf(c.out, "lua error: %v\n", err)
	}
}

func (c *ServiceConsole) cmdHelp() {
	fmt.Fprint(c.out, "commands: stats, resources, lost, preview <id>, lua <expr>, help, quit\n")
}
