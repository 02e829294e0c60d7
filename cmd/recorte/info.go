package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	infoURL     string
	infoFormats bool
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show video metadata without downloading",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Service.Info(cmd.Context(), infoURL)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Title:     %s\n", info.Title)
		fmt.Fprintf(w, "Author:    %s\n", info.Author)
		fmt.Fprintf(w, "Duration:  %s (%ds)\n", info.FormattedDuration(), info.DurationSeconds())
		fmt.Fprintf(w, "Thumbnail: %s\n", info.Thumbnail)
		if !infoFormats {
			return nil
		}

		formats, err := a.YouTube.GetAudioFormats(cmd.Context(), infoURL)
		if err != nil {
			return fmt.Errorf("failed to list audio formats: %w", err)
		}
		fmt.Fprintln(w, "\nAudio formats:")
		for _, f := range formats {
			line := fmt.Sprintf("  itag %-4d %-5s %4d kbps  %6.2f MB  %s", f.ItagNo, f.Extension(), f.Bitrate/1000,
				float64(f.ContentLength)/(1024*1024), f.Quality)
			if f.LanguageName != "" {
				line += "  " + f.LanguageName
				if f.IsDefault {
					line += " (default)"
				}
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVar(&infoURL, "url", "", "YouTube video URL (required)")
	infoCmd.Flags().BoolVar(&infoFormats, "formats", false, "Also list the available audio-only formats")
	infoCmd.MarkFlagRequired("url")
}
