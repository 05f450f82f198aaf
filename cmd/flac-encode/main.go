// flac-encode converts WAV files to FLAC.
package main

import (
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/pkg/osutil"
	"github.com/mewkiz/pkg/pathutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/encoder"
)

var (
	force  bool
	level  int
	verify bool
)

var rootCmd = &cobra.Command{
	Use:   "flac-encode [flags] FILE.wav...",
	Short: "Encode WAV files to FLAC",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, wavPath := range args {
			if err := wav2flac(wavPath); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "force overwrite of existing FLAC files")
	rootCmd.Flags().IntVarP(&level, "level", "l", 5, "compression level (0-8)")
	rootCmd.Flags().BoolVar(&verify, "verify", false, "decode each frame while encoding and compare against the input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func wav2flac(wavPath string) error {
	r, err := os.Open(wavPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer r.Close()
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return errors.Errorf("invalid WAV file %q", wavPath)
	}
	sampleRate, nchannels, bps := int(dec.SampleRate), int(dec.NumChans), int(dec.BitDepth)

	flacPath := pathutil.TrimExt(wavPath) + ".flac"
	if !force && osutil.Exists(flacPath) {
		return errors.Errorf("FLAC file %q already present; use -f flag to force overwrite", flacPath)
	}
	w, err := os.Create(flacPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer w.Close()

	enc, err := flac.NewEncoder(w, encoder.Options{
		Channels:         nchannels,
		BitsPerSample:    bps,
		SampleRate:       sampleRate,
		CompressionLevel: level,
		Verify:           verify,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if err := dec.FwdToPCM(); err != nil {
		return errors.WithStack(err)
	}
	const samplesPerChannel = 4096
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: nchannels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, nchannels*samplesPerChannel),
		SourceBitDepth: bps,
	}
	interleaved := make([]int32, 0, len(buf.Data))
	for !dec.EOF() {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return errors.WithStack(err)
		}
		if n == 0 {
			break
		}
		interleaved = interleaved[:0]
		for _, s := range buf.Data[:n] {
			interleaved = append(interleaved, int32(s))
		}
		if err := enc.WriteSamplesInterleaved(interleaved); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(enc.Close())
}
