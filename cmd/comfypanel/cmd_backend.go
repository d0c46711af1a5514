package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/comfypanel/comfypanel/client"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend can reach ComfyUI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		health := backendClient().Health(cmd.Context())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status: %s\n", health.Status)
		if health.ComfyUIURL != "" {
			fmt.Fprintf(out, "comfyui: %s\n", health.ComfyUIURL)
		}
		for _, d := range health.Devices {
			fmt.Fprintf(out, "device %d: %s (%s) vram %s free of %s\n",
				d.Index, d.Name, d.Type, formatBytes(d.VRAMFree), formatBytes(d.VRAMTotal))
		}
		if !health.Connected() {
			return fmt.Errorf("backend is %s", health.Status)
		}
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List checkpoint and unet models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := backendClient().Models(cmd.Context())
		if err != nil {
			return err
		}
		printLines(cmd, models)
		return nil
	},
}

var lorasCmd = &cobra.Command{
	Use:   "loras",
	Short: "List LoRA files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loras, err := backendClient().Loras(cmd.Context())
		if err != nil {
			return err
		}
		printLines(cmd, loras)
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show running and pending prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, err := backendClient().Queue(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATE\tPROMPT ID")
		for _, id := range queue.PromptIDs(queue.Running) {
			fmt.Fprintf(w, "running\t%s\n", id)
		}
		for _, id := range queue.PromptIDs(queue.Pending) {
			fmt.Fprintf(w, "pending\t%s\n", id)
		}
		return w.Flush()
	},
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt",
	Short: "Interrupt the running job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backendClient().Interrupt(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "interrupted")
		return nil
	},
}

var clearVRAMCmd = &cobra.Command{
	Use:   "clear-vram",
	Short: "Unload models and free GPU memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backendClient().ClearVRAM(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "vram cleared")
		return nil
	},
}

var imageOpts struct {
	subfolder string
	imageType string
	output    string
	metadata  bool
}

var imageCmd = &cobra.Command{
	Use:   "image FILENAME",
	Short: "Download an output image, or print its embedded prompt and workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runImage,
}

func init() {
	f := imageCmd.Flags()
	f.StringVarP(&imageOpts.subfolder, "subfolder", "s", "", "Subfolder of the image")
	f.StringVarP(&imageOpts.imageType, "type", "t", "output", "Image type: output, input or temp")
	f.StringVarP(&imageOpts.output, "output", "o", "", "Write the image here (default: FILENAME in the working directory)")
	f.BoolVar(&imageOpts.metadata, "metadata", false, "Print the PNG text chunks instead of saving the image")
}

func runImage(cmd *cobra.Command, args []string) error {
	ref := client.OutputRef{Filename: args[0], Subfolder: imageOpts.subfolder, Type: imageOpts.imageType}
	c := backendClient()

	if imageOpts.metadata {
		meta, err := c.ImageMetadata(cmd.Context(), ref)
		if err != nil {
			return err
		}
		return printMetadata(cmd, meta)
	}

	data, err := c.GetImage(cmd.Context(), ref)
	if err != nil {
		return err
	}
	path := imageOpts.output
	if path == "" {
		path = filepath.Base(ref.Filename)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", path, formatBytes(int64(len(data))))
	return nil
}

func printMetadata(cmd *cobra.Command, meta map[string]string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	for _, k := range keys {
		value := meta[k]
		// prompt and workflow are JSON; pretty print them when they parse
		var doc interface{}
		if err := json.Unmarshal([]byte(value), &doc); err == nil {
			if pretty, err := json.MarshalIndent(doc, "", "  "); err == nil {
				value = string(pretty)
			}
		}
		fmt.Fprintf(out, "%s:\n%s\n", k, value)
	}
	return nil
}

func printLines(cmd *cobra.Command, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
