// ABOUTME: analyze command: explains a heap dump object by object
// ABOUTME: Shows why each object is alive, what each root retains and what is garbage

package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prateek/stackgc/graph"
	"github.com/prateek/stackgc/heapdump"
	"github.com/urfave/cli/v2"
)

var analyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "Analyse a heap dump",
	ArgsUsage: "<dump>",
	Flags:     []cli.Flag{MaxPathsFlag},
	Action: func(ctx *cli.Context) error {
		if ctx.Args().Len() != 1 {
			return fmt.Errorf("expected one dump file")
		}
		f, err := os.Open(ctx.Args().First())
		if err != nil {
			return err
		}
		defer f.Close()

		g, err := heapdump.Open(f)
		if err != nil {
			return fmt.Errorf("%s: %w (known formats: %s)", ctx.Args().First(), err, strings.Join(heapdump.Formats(), ", "))
		}
		analyze(ctx.App.Writer, g, ctx.Int(MaxPathsFlag.Name))
		return nil
	},
}

func analyze(w io.Writer, g graph.Graph, maxPaths int) {
	var ids []graph.ObjID
	g.ForEachObject(func(obj *graph.Object) {
		ids = append(ids, obj.ID)
	})
	slices.Sort(ids)

	live := graph.Reachable(g)

	objects := tablewriter.NewWriter(w)
	objects.SetHeader([]string{"ID", "Kind", "Contents", "Path to root"})
	for _, id := range ids {
		obj := g.GetObject(id)
		path := color.RedString("unreachable")
		if live.Contains(id) {
			var shown []string
			for _, p := range graph.PathsToRoots(g, id, maxPaths) {
				shown = append(shown, formatIDs(p.IDs, " <- "))
			}
			path = strings.Join(shown, "; ")
		}
		objects.Append([]string{formatID(id), obj.Kind, contents(obj), path})
	}
	objects.Render()

	roots := g.GetRoots().IDs
	if len(roots) > 0 {
		retained := graph.RetainedAll(g)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Slot", "Root", "Retains"})
		for i, id := range roots {
			table.Append([]string{strconv.Itoa(i), formatID(id), strconv.Itoa(retained[i])})
		}
		table.Render()
	}

	garbage := len(ids) - live.Cardinality()
	fmt.Fprintf(w, "%d objects, %s, %s\n", len(ids),
		color.GreenString("%d reachable", live.Cardinality()),
		color.RedString("%d garbage", garbage))
}

func contents(obj *graph.Object) string {
	if obj.Kind == graph.KindInt {
		return strconv.FormatInt(obj.Value, 10)
	}
	return "(" + formatIDs(obj.Ptrs, ", ") + ")"
}

func formatID(id graph.ObjID) string {
	if id == graph.NilID {
		return "nil"
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}

func formatIDs(ids []graph.ObjID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = formatID(id)
	}
	return strings.Join(parts, sep)
}
