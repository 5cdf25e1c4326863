// Chord is a demo CLI for the chord audio engine: it builds a small
// sine-through-gain graph and either renders it to a file or plays it
// on the default output device.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dudk/chord/engine"
	"github.com/dudk/chord/nodes"
)

var rootCmd = &cobra.Command{
	Use:           "chord",
	Short:         "Chord is a demo host for the chord audio engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildDemo wires sine -> gain -> stream out into the engine's graph.
func buildDemo(e *engine.Engine, freq, gain float64) error {
	g := e.Graph()
	sine := g.AddNode(&nodes.Sine{Freq: freq})
	amp := g.AddNode(&nodes.Gain{Gain: gain})
	if _, err := g.Connect(sine, 0, amp, 0, true); err != nil {
		return err
	}
	if _, err := g.Connect(sine, 0, amp, 1, true); err != nil {
		return err
	}
	if _, err := g.Connect(amp, 0, g.GraphOut(), 0, true); err != nil {
		return err
	}
	_, err := g.Connect(amp, 1, g.GraphOut(), 1, true)
	return err
}
