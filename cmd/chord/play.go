package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dudk/chord/backend/portaudio"
	"github.com/dudk/chord/engine"
)

var playFlags struct {
	duration time.Duration
	rate     uint32
	freq     float64
	gain     float64
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the demo graph on the default output device",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engine.New()
		defer e.Close()
		if err := buildDemo(e, playFlags.freq, playFlags.gain); err != nil {
			return err
		}

		b := portaudio.New(portaudio.SampleRate(playFlags.rate))
		if err := e.StartStream(b); err != nil {
			return err
		}

		deadline := time.After(playFlags.duration)
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				if err := e.Update(); err != nil {
					_ = e.StopStream()
					return err
				}
			case <-deadline:
				return e.StopStream()
			}
		}
	},
}

func init() {
	playCmd.Flags().DurationVar(&playFlags.duration, "duration", 2*time.Second, "how long to play")
	playCmd.Flags().Uint32Var(&playFlags.rate, "rate", 44100, "sample rate")
	playCmd.Flags().Float64Var(&playFlags.freq, "freq", 440, "oscillator frequency in Hz")
	playCmd.Flags().Float64Var(&playFlags.gain, "gain", 0.5, "output gain")
	rootCmd.AddCommand(playCmd)
}
