package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

type label struct {
	Name string
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Replay the capacity-3 allocate/free scenario",
		Long: `Initialize a pool of capacity 3, allocate A and B, free A, then allocate
C, D and E. C reuses A's slot, D takes the last free slot and E is refused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Log.Logger()); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.With(zap.String("command", "demo"))

			out := cmd.OutOrStdout()
			p := pool.New[label](pool.WithName("demo"), pool.WithLogger(log))
			if err := p.Init(3); err != nil {
				return err
			}
			defer p.Term()
			fmt.Fprintln(out, "init capacity=3")

			named := make(map[string]*label)
			alloc := func(name string) {
				v, ok := p.Allocate(func(id pool.SlotID, v *label) { v.Name = name })
				if !ok {
					fmt.Fprintf(out, "allocate %s -> exhausted\n", name)
					return
				}
				id, _ := p.SlotOf(v)
				named[name] = v
				fmt.Fprintf(out, "allocate %s -> slot %d\n", name, id)
			}
			free := func(name string) error {
				if err := p.Deallocate(named[name]); err != nil {
					return err
				}
				delete(named, name)
				fmt.Fprintf(out, "free %s\n", name)
				return nil
			}

			alloc("A")
			alloc("B")
			if err := free("A"); err != nil {
				return err
			}
			alloc("C")
			alloc("D")
			alloc("E")

			fmt.Fprintf(out, "used=%d available=%d size=%d\n", p.UsedCount(), p.AvailableCount(), p.Size())
			if err := p.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(out, "invariants ok")
			return nil
		},
	}
}
