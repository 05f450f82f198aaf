// flac-decode converts FLAC files to WAV.
package main

import (
	"io"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/pkg/osutil"
	"github.com/mewkiz/pkg/pathutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mewkiz/flac"
)

var force bool

var rootCmd = &cobra.Command{
	Use:   "flac-decode [flags] FILE.flac...",
	Short: "Decode FLAC files to WAV",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, flacPath := range args {
			if err := flac2wav(flacPath); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "force overwrite of existing WAV files")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func flac2wav(flacPath string) error {
	stream, err := flac.Open(flacPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer stream.Close()

	wavPath := pathutil.TrimExt(flacPath) + ".wav"
	if !force && osutil.Exists(wavPath) {
		return errors.Errorf("WAV file %q already present; use -f flag to force overwrite", wavPath)
	}
	fw, err := os.Create(wavPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer fw.Close()

	info := stream.Info
	enc := wav.NewEncoder(fw, int(info.SampleRate), int(info.BitsPerSample), int(info.ChannelCount), 1)
	defer enc.Close()

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(info.ChannelCount),
			SampleRate:  int(info.SampleRate),
		},
		SourceBitDepth: int(info.BitsPerSample),
	}
	for {
		f, err := stream.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.WithStack(err)
		}
		n := int(f.Header.BlockSize)
		buf.Data = buf.Data[:0]
		for i := 0; i < n; i++ {
			for _, sf := range f.Subframes {
				buf.Data = append(buf.Data, int(sf.Samples[i]))
			}
		}
		if err := enc.Write(buf); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
