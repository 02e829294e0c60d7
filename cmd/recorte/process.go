package main

import (
	"fmt"

	"recorte/internal/jobs"

	"github.com/spf13/cobra"
)

var (
	processURL   string
	processStart string
	processEnd   string
	processName  string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Download and cut one clip synchronously",
	Long: `Download the audio of a video and cut [start, end) into the output directory.

Offsets are seconds or clock notation (m:ss, h:mm:ss).

Example:
  recorte process --url "https://www.youtube.com/watch?v=dQw4w9WgXcQ" --start 60 --end 1:30 --name intro`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVar(&processURL, "url", "", "YouTube video URL (required)")
	processCmd.Flags().StringVar(&processStart, "start", "0", "Start offset")
	processCmd.Flags().StringVar(&processEnd, "end", "30", "End offset")
	processCmd.Flags().StringVar(&processName, "name", "", "Output file name (defaults to the video title)")
	processCmd.MarkFlagRequired("url")
}

func runProcess(cmd *cobra.Command, args []string) error {
	start, err := parseOffset(processStart)
	if err != nil {
		return err
	}
	end, err := parseOffset(processEnd)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	job, out, err := a.Service.Execute(cmd.Context(), jobs.SubmitRequest{
		URL:   processURL,
		Start: start,
		End:   end,
		Name:  processName,
	})
	if err != nil {
		if job != nil {
			return fmt.Errorf("job %s failed: %w", job.ID, err)
		}
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Job:      %s\n", job.ID)
	fmt.Fprintf(w, "File:     %s\n", out.Path)
	fmt.Fprintf(w, "Size:     %.2f MB\n", out.SizeMB)
	fmt.Fprintf(w, "Duration: %ds (%s)\n", out.Duration, out.Mode)
	fmt.Fprintf(w, "Attempts: %d\n", out.Attempts)
	return nil
}
