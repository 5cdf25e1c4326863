package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudk/chord/backend/render"
	"github.com/dudk/chord/engine"
)

var renderFlags struct {
	out      string
	duration time.Duration
	rate     uint32
	freq     float64
	gain     float64
	bitRate  int
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the demo graph to a wav or mp3 file",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engine.New()
		defer e.Close()
		if err := buildDemo(e, renderFlags.freq, renderFlags.gain); err != nil {
			return err
		}

		b := render.New(render.SampleRate(renderFlags.rate))
		if err := e.StartStream(b); err != nil {
			return err
		}

		f, err := os.Create(renderFlags.out)
		if err != nil {
			return err
		}
		defer f.Close()

		switch strings.ToLower(filepath.Ext(renderFlags.out)) {
		case ".wav":
			err = b.WAV(f, renderFlags.duration)
		case ".mp3":
			err = b.MP3(f, renderFlags.duration, renderFlags.bitRate)
		default:
			err = fmt.Errorf("cannot tell format from extension of %q, use .wav or .mp3", renderFlags.out)
		}
		if err != nil {
			return err
		}
		return e.StopStream()
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderFlags.out, "out", "out.wav", "output file, format by extension")
	renderCmd.Flags().DurationVar(&renderFlags.duration, "duration", 2*time.Second, "length of audio to render")
	renderCmd.Flags().Uint32Var(&renderFlags.rate, "rate", 44100, "sample rate")
	renderCmd.Flags().Float64Var(&renderFlags.freq, "freq", 440, "oscillator frequency in Hz")
	renderCmd.Flags().Float64Var(&renderFlags.gain, "gain", 0.5, "output gain")
	renderCmd.Flags().IntVar(&renderFlags.bitRate, "bitrate", 192, "mp3 bit rate in kbps")
	rootCmd.AddCommand(renderCmd)
}
