// Package main provides the CLI entry point for audioface.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/normanking/audioface/internal/remote"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	version = "dev"

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "audioface",
		Short: "Drive facial blendshapes from live audio",
		Long: titleStyle.Render("audioface") + `

Animates the morph targets of a character model from speech, either by
mapping loudness and pitch locally or by replaying frames from a hosted
audio-to-face model.

` + dimStyle.Render("Use 'audioface [command] --help' for more information."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config-dir", "", "directory holding config.yaml (default ~/.audioface)")

	rootCmd.AddCommand(newRunCmd(), newInspectCmd(), newMapCmd(), newPresetsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newMapCmd() *cobra.Command {
	var volume, pitch float32
	var speaking bool
	cfg := avatar3d.DefaultMapperConfig()

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Print the blendshape frame for one audio sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			frame := avatar3d.Map(avatar3d.AudioSample{Volume: volume, Pitch: pitch, IsSpeaking: speaking}, cfg)

			fmt.Println(titleStyle.Render("Frame"))
			fmt.Println()
			for b := avatar3d.Blendshape(0); b < avatar3d.BlendshapeCount; b++ {
				v := frame.Get(b)
				line := fmt.Sprintf("  %-18s %.3f  %s", b, v, strings.Repeat("█", int(v*20)))
				if v == 0 {
					line = dimStyle.Render(line)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().Float32Var(&volume, "volume", 0, "normalized volume in [0,1]")
	cmd.Flags().Float32Var(&pitch, "pitch", 0.5, "normalized pitch in [0,1]")
	cmd.Flags().BoolVar(&speaking, "speaking", true, "whether speech is detected")
	cmd.Flags().Float32Var(&cfg.VolumeSensitivity, "volume-sensitivity", cfg.VolumeSensitivity, "jaw response to volume")
	cmd.Flags().Float32Var(&cfg.PitchSensitivity, "pitch-sensitivity", cfg.PitchSensitivity, "mouth shape response to pitch")
	cmd.Flags().Float32Var(&cfg.BaseMouthOpen, "base-mouth-open", cfg.BaseMouthOpen, "jaw opening at zero volume while speaking")
	cmd.Flags().Float32Var(&cfg.MaxMouthOpen, "max-mouth-open", cfg.MaxMouthOpen, "jaw opening cap")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List remote model presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(titleStyle.Render("Model presets"))
			fmt.Println()
			for _, p := range remote.Presets() {
				marker := dimStyle.Render("○")
				if p == remote.DefaultPreset {
					marker = successStyle.Render("●")
				}
				fmt.Printf("%s %-8s %s\n", marker, p, dimStyle.Render(p.ModelID()))
			}
		},
	}
}
