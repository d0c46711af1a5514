package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/comfypanel/comfypanel/client"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Browse and manage the gallery store",
	Long: `Browse and manage the gallery store.

Examples:
  comfypanel gallery list
  comfypanel gallery list --workflow portraits
  comfypanel gallery delete 42
  comfypanel gallery clear --yes`,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery items, newest first",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete gallery items (image files stay on the backend)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGalleryDelete,
}

var galleryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every gallery item",
	Args:  cobra.NoArgs,
	RunE:  runGalleryClear,
}

var (
	galleryWorkflow string
	galleryConfirm  bool
)

func init() {
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryDeleteCmd)
	galleryCmd.AddCommand(galleryClearCmd)

	galleryListCmd.Flags().StringVarP(&galleryWorkflow, "workflow", "w", "", "Only list items of this workflow")
	galleryClearCmd.Flags().BoolVar(&galleryConfirm, "yes", false, "Confirm deleting every item")
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	items, err := galleryClient().ListGallery(cmd.Context(), galleryWorkflow)
	if err != nil {
		return err
	}
	printGallery(cmd, items)
	return nil
}

func printGallery(cmd *cobra.Command, items []client.GalleryItem) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFILE\tSIZE\tSTEPS\tCFG\tMODEL\tPROMPT")
	for _, it := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%dx%d\t%d\t%.1f\t%s\t%s\n",
			it.ID,
			it.CreatedAt.Local().Format("2006-01-02 15:04"),
			imagePath(it.Subfolder, it.Filename),
			it.Width, it.Height,
			it.Steps,
			it.CFG,
			it.Model,
			truncate(it.PromptPositive, 48),
		)
	}
	w.Flush()
}

func runGalleryDelete(cmd *cobra.Command, args []string) error {
	gc := galleryClient()
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", arg)
		}
		if err := gc.DeleteGalleryItem(cmd.Context(), id); err != nil {
			if errors.Is(err, client.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "item %d not found\n", id)
				continue
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
	}
	return nil
}

func runGalleryClear(cmd *cobra.Command, args []string) error {
	if !galleryConfirm {
		return errors.New("refusing to clear the gallery without --yes")
	}
	if err := galleryClient().ClearGallery(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "gallery cleared")
	return nil
}

func imagePath(subfolder, filename string) string {
	if subfolder == "" {
		return filename
	}
	return subfolder + "/" + filename
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
