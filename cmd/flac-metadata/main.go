// flac-metadata lists and edits the metadata blocks of FLAC files: Vorbis
// comment tags and embedded pictures. Edits rewrite the metadata region in
// place when trailing padding can absorb the size change, falling back to
// a temp-file-and-rename full rewrite otherwise.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mewkiz/flac/meta"
)

var rootCmd = &cobra.Command{
	Use:   "flac-metadata",
	Short: "Inspect and edit FLAC metadata",
}

var listCmd = &cobra.Command{
	Use:   "list FILE.flac",
	Short: "List metadata blocks and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, _, err := readChain(args[0])
		if err != nil {
			return err
		}
		for i, block := range chain.Blocks {
			fmt.Printf("block %d: %v\n", i, block.Header.Type)
			if vc, ok := block.Body.(*meta.VorbisComment); ok {
				fmt.Printf("  vendor: %s\n", vc.Vendor)
				for _, e := range vc.Entries {
					fmt.Printf("  %s=%s\n", e.Name, e.Value)
				}
			}
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set FILE.flac NAME=VALUE...",
	Short: "Set Vorbis comment tags",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editChain(args[0], func(chain *meta.Chain) error {
			vc := chain.VorbisComment("flac-metadata")
			for _, arg := range args[1:] {
				name, value, ok := strings.Cut(arg, "=")
				if !ok {
					return errors.Errorf("malformed tag %q; want NAME=VALUE", arg)
				}
				if err := vc.Set(name, value); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var pictureCmd = &cobra.Command{
	Use:   "picture FILE.flac IMAGE",
	Short: "Attach an image as the front cover",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return errors.WithStack(err)
		}
		mime := "image/jpeg"
		if strings.EqualFold(filepath.Ext(args[1]), ".png") {
			mime = "image/png"
		}
		return editChain(args[0], func(chain *meta.Chain) error {
			const frontCover = meta.PictureType(3)
			chain.SetPictureData(frontCover, mime, data, 0, 0, 0, 0)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd, setCmd, pictureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

// readChain loads path's metadata chain, returning it along with the byte
// offset of the first audio frame.
func readChain(path string) (*meta.Chain, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer f.Close()
	chain, audioStart, err := readChainFrom(f)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reading metadata of %q", path)
	}
	return chain, audioStart, nil
}

func readChainFrom(f *os.File) (*meta.Chain, int64, error) {
	var marker [4]byte
	if _, err := io.ReadFull(f, marker[:]); err != nil {
		return nil, 0, err
	}
	if string(marker[:]) != "fLaC" {
		return nil, 0, errors.Errorf("not a FLAC file (marker %q)", marker)
	}
	chain, err := meta.ReadChain(f)
	if err != nil {
		return nil, 0, err
	}
	audioStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}
	return chain, audioStart, nil
}

// editChain applies edit to path's metadata chain and commits it: in place
// when the new metadata fits the old region (growing or shrinking trailing
// padding as needed), via temp-file-and-rename otherwise.
func editChain(path string, edit func(*meta.Chain) error) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	chain, audioStart, err := readChainFrom(f)
	if err != nil {
		return errors.Wrapf(err, "reading metadata of %q", path)
	}
	if err := edit(chain); err != nil {
		return err
	}

	oldMetaLen := int(audioStart - 4)
	fits, err := chain.FitsInPlace(oldMetaLen)
	if err != nil {
		return err
	}
	if !fits {
		if fits, err = chain.PadToFit(oldMetaLen); err != nil {
			return err
		}
	}
	if fits {
		if _, err := f.Seek(4, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		return chain.Write(f)
	}

	// Full rewrite: stream the audio region into a fresh file that then
	// replaces the original.
	if _, err := f.Seek(audioStart, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	return chain.WriteFile(path, f)
}
