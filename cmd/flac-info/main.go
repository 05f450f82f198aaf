// flac-info dumps the metadata blocks of FLAC files.
package main

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"
)

var rootCmd = &cobra.Command{
	Use:   "flac-info FILE.flac...",
	Short: "Print the metadata blocks of FLAC files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := info(path); err != nil {
				return err
			}
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func info(path string) error {
	stream, err := flac.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer stream.Close()

	fmt.Println(path)
	for i, block := range stream.Blocks {
		fmt.Printf("  block %d: %v (%d bytes)\n", i, block.Header.Type, block.Header.Length)
		switch body := block.Body.(type) {
		case *meta.StreamInfo:
			fmt.Printf("    sample rate:     %d Hz\n", body.SampleRate)
			fmt.Printf("    channels:        %d\n", body.ChannelCount)
			fmt.Printf("    bits per sample: %d\n", body.BitsPerSample)
			fmt.Printf("    total samples:   %d\n", body.SampleCount)
			fmt.Printf("    blocksize:       %d-%d\n", body.MinBlockSize, body.MaxBlockSize)
			fmt.Printf("    frame size:      %d-%d bytes\n", body.MinFrameSize, body.MaxFrameSize)
			fmt.Printf("    MD5:             %x\n", body.MD5sum)
		case *meta.SeekTable:
			fmt.Printf("    seek points: %d\n", len(body.Points))
		case *meta.VorbisComment:
			fmt.Printf("    vendor: %s\n", body.Vendor)
			for _, e := range body.Entries {
				fmt.Printf("    %s=%s\n", e.Name, e.Value)
			}
		case *meta.Picture:
			fmt.Printf("    type %d, %s, %dx%d, %d bytes\n", body.Type, body.MIME, body.Width, body.Height, len(body.Data))
		case *meta.CueSheet:
			fmt.Printf("    catalog %q, %d tracks\n", body.MCN, len(body.Tracks))
		}
	}
	return nil
}
