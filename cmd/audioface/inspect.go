package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/normanking/audioface/internal/avatar3d"
	"github.com/normanking/audioface/internal/renderer"
	"github.com/spf13/cobra"
)

const placeholderModel = "placeholder"

func newInspectCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "inspect [model.glb|placeholder]",
		Short: "Show which blendshapes a model can animate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := openModel(args[0])
			if err != nil && !errors.Is(err, renderer.ErrNoMorphTargets) {
				return err
			}

			fmt.Println(titleStyle.Render("Model " + model.Name))
			fmt.Println()
			for _, mesh := range model.Meshes() {
				fmt.Printf("  %s %s\n", mesh.ID, dimStyle.Render(fmt.Sprintf("(%d vertices, %d targets)", len(mesh.BasePositions), len(mesh.MorphTargets))))
			}
			fmt.Println()

			reg := avatar3d.ResolveRegistry(model, prefix)
			if reg.Empty() {
				fmt.Println(errorStyle.Render("✗ No mesh carries morph targets; nothing can be animated."))
				return nil
			}

			for _, e := range reg.Entries() {
				fmt.Println(titleStyle.Render(e.MeshID))
				var missing []string
				for b := avatar3d.Blendshape(0); b < avatar3d.BlendshapeCount; b++ {
					if e.Resolved(b) {
						fmt.Printf("  %s %-18s → %d\n", successStyle.Render("✓"), b, e.Index[b])
					} else {
						missing = append(missing, b.String())
					}
				}
				if len(missing) > 0 {
					fmt.Printf("  %s %s\n", errorStyle.Render("✗"), dimStyle.Render(strings.Join(missing, ", ")))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", avatar3d.DefaultVendorPrefix, "vendor prefix tried before bare names")
	return cmd
}

// openModel loads a glTF file, or builds the placeholder head.
func openModel(path string) (*renderer.Model, error) {
	if path == "" || path == placeholderModel {
		return renderer.NewPlaceholderHead(avatar3d.BlendshapeNames[:]), nil
	}
	return renderer.LoadModel(path)
}
