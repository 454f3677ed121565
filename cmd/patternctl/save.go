package main

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/webp" // WebP sources

	"pattern-sync/internal/bitmap"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/syncer"
)

var (
	saveFit       bool
	saveThreshold uint8
)

var saveCmd = &cobra.Command{
	Use:   "save <tag> <image>...",
	Short: "Convert images to patterns and save them under fresh tags",
	Long: `Convert each image (BMP, PNG, JPEG, GIF, TIFF or WebP) to a pattern and
save it into the store root as <tag>!<n> with the first free n. A tag given
as "cat!4" starts probing at 4.

Images must already match the store's size bounds unless --fit is set, in
which case they are resized to the minimum width and the required height.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession()
		if err != nil {
			return err
		}
		bounds := sess.store.Policy().Bounds

		items := make([]syncer.SaveItem, 0, len(args)-1)
		for _, src := range args[1:] {
			img, err := imaging.Open(src, imaging.AutoOrientation(true))
			if err != nil {
				return fmt.Errorf("open %s: %w", src, err)
			}
			p, err := toPattern(img, bounds, saveFit, saveThreshold)
			if err != nil {
				return fmt.Errorf("convert %s: %w", src, err)
			}
			items = append(items, syncer.SaveItem{Tag: args[0], Pattern: p})
		}

		saver := &syncer.Saver{Writer: bitmap.NewWriter(pattern.NewBMPCodec())}
		written, err := saver.SaveBatch(sess.store, items)
		for _, path := range written {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return err
	},
}

func init() {
	saveCmd.Flags().BoolVar(&saveFit, "fit", false, "resize images to the store's pattern size")
	saveCmd.Flags().Uint8Var(&saveThreshold, "threshold", 128, "luminance below which a pixel is ink")
	rootCmd.AddCommand(saveCmd)
}

func toPattern(img image.Image, bounds pattern.Bounds, fit bool, threshold uint8) (*pattern.Pattern, error) {
	if fit {
		b := img.Bounds()
		width := min(max(b.Dx(), bounds.MinWidth), bounds.MaxWidth)
		img = imaging.Resize(img, width, bounds.Height, imaging.Lanczos)
	}
	return pattern.FromImage(img, threshold)
}
