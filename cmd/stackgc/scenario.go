// ABOUTME: Built-in heap scenarios that drive a machine through the collector's cases
// ABOUTME: Each explicit collection and the final teardown are reported to the user

package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/prateek/stackgc/heapdump"
	"github.com/prateek/stackgc/vm"
	"github.com/urfave/cli/v2"
)

// output prints scenario progress
type output struct {
	w io.Writer
}

// report prints the outcome of a collection under a label
func (o *output) report(label string, stats vm.Stats) {
	fmt.Fprintf(o.w, "%-20s %s %s\n", label+":",
		color.RedString("-%d", stats.Collected),
		color.GreenString("%d live", stats.Remaining))
}

func (o *output) notef(format string, args ...any) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

type scenario struct {
	usage string
	run   func(m *vm.Machine, out *output) error
}

var scenarios = map[string]scenario{
	"roots": {
		usage: "objects on the stack survive a collection",
		run: func(m *vm.Machine, out *output) error {
			if err := pushInts(m, 1, 2); err != nil {
				return err
			}
			out.report("gc", m.GC())
			return nil
		},
	},
	"unreachable": {
		usage: "popped objects are reclaimed by the next collection",
		run: func(m *vm.Machine, out *output) error {
			if err := pushInts(m, 1, 2); err != nil {
				return err
			}
			if err := pop(m, 2); err != nil {
				return err
			}
			out.report("gc", m.GC())
			return nil
		},
	},
	"nested": {
		usage: "nested pairs keep every leaf alive",
		run: func(m *vm.Machine, out *output) error {
			for _, pair := range [][2]int64{{1, 2}, {3, 4}} {
				if err := pushInts(m, pair[0], pair[1]); err != nil {
					return err
				}
				if _, err := m.PushPair(); err != nil {
					return err
				}
			}
			if _, err := m.PushPair(); err != nil {
				return err
			}
			out.report("gc", m.GC())
			return nil
		},
	},
	"cycle": {
		usage: "two pairs linked to each other are reclaimed once unrooted",
		run: func(m *vm.Machine, out *output) error {
			var pairs [2]vm.Ref
			for i := range pairs {
				if err := pushInts(m, int64(2*i+1), int64(2*i+2)); err != nil {
					return err
				}
				ref, err := m.PushPair()
				if err != nil {
					return err
				}
				pairs[i] = ref
			}
			if err := m.SetFirst(pairs[0], pairs[1]); err != nil {
				return err
			}
			if err := m.SetFirst(pairs[1], pairs[0]); err != nil {
				return err
			}
			out.report("gc (rooted cycle)", m.GC())
			if err := pop(m, 2); err != nil {
				return err
			}
			out.report("gc (detached cycle)", m.GC())
			return nil
		},
	},
	"churn": {
		usage: "sustained allocation with automatic collections",
		run: func(m *vm.Machine, out *output) error {
			before := m.Collections()
			for i := int64(0); i < 1000; i++ {
				if err := pushInts(m, i); err != nil {
					return err
				}
				// Pair up the top two roots on odd steps
				if i%2 == 1 && m.Depth() >= 2 {
					if _, err := m.PushPair(); err != nil {
						return err
					}
				}
				if i%3 == 0 {
					if err := pop(m, 1); err != nil {
						return err
					}
				}
			}
			out.notef("%d automatic collections, threshold %d", m.Collections()-before, m.Threshold())
			out.report("gc", m.GC())
			return nil
		},
	},
	"teardown": {
		usage: "objects still rooted at shutdown are reclaimed by teardown",
		run: func(m *vm.Machine, out *output) error {
			return pushInts(m, 1, 2, 3, 4, 5)
		},
	},
}

func pushInts(m *vm.Machine, vals ...int64) error {
	for _, v := range vals {
		if _, err := m.PushInt(v); err != nil {
			return err
		}
	}
	return nil
}

func pop(m *vm.Machine, n int) error {
	for i := 0; i < n; i++ {
		if _, err := m.Pop(); err != nil {
			return err
		}
	}
	return nil
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func scenarioHelp() string {
	var sb strings.Builder
	sb.WriteString("Scenarios:\n")
	for _, name := range scenarioNames() {
		fmt.Fprintf(&sb, "   %-12s %s\n", name, scenarios[name].usage)
	}
	return sb.String()
}

var scenarioCommand = &cli.Command{
	Name:        "scenario",
	Usage:       "Run a built-in heap scenario",
	ArgsUsage:   "<name>",
	Description: scenarioHelp(),
	Flags:       []cli.Flag{DumpFlag},
	Action: func(ctx *cli.Context) error {
		if ctx.Args().Len() != 1 {
			return fmt.Errorf("expected one scenario name, one of %s", strings.Join(scenarioNames(), ", "))
		}
		name := ctx.Args().First()
		sc, ok := scenarios[name]
		if !ok {
			return fmt.Errorf("unknown scenario %q, want one of %s", name, strings.Join(scenarioNames(), ", "))
		}
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		logger, err := newLogger(ctx)
		if err != nil {
			return err
		}
		m, err := vm.New(cfg, vm.WithLogger(logger))
		if err != nil {
			return err
		}
		return runScenario(ctx.App.Writer, m, sc, ctx.String(DumpFlag.Name))
	},
}

// runScenario always tears the machine down, even when the scenario fails
func runScenario(w io.Writer, m *vm.Machine, sc scenario, dumpFile string) error {
	out := &output{w: w}
	defer func() {
		out.report("teardown", m.Close())
	}()

	if err := sc.run(m, out); err != nil {
		return err
	}
	if dumpFile != "" {
		if err := writeDump(dumpFile, m); err != nil {
			return err
		}
		out.notef("heap dump written to %s", dumpFile)
	}
	return nil
}

func writeDump(file string, m *vm.Machine) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := heapdump.Write(f, m.Snapshot()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
